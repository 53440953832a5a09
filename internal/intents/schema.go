// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package intents

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/cyb3rdog/escapepod-sdk-go/pkg/proxyerr"
)

// SchemaID is the $id of the intent document schema.
const SchemaID = "https://escapepod.dev/schemas/intent.schema.json"

var (
	compileOnce sync.Once
	compiled    *jschema.Schema
	compileErr  error
)

// GenerateSchema returns the JSON Schema of intent documents.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(&Intent{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "EscapePod Intent"
	schema.Description = "Intent document stored by the EscapePod extension proxy"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE").Wrapf(err, "marshal schema")
	}
	return data, nil
}

func schema() (*jschema.Schema, error) {
	compileOnce.Do(func() {
		data, err := GenerateSchema()
		if err != nil {
			compileErr = err
			return
		}
		doc, err := jschema.UnmarshalJSON(strings.NewReader(string(data)))
		if err != nil {
			compileErr = oops.Code("SCHEMA_COMPILE").Wrapf(err, "parse schema")
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource(SchemaID, doc); err != nil {
			compileErr = oops.Code("SCHEMA_COMPILE").Wrapf(err, "add schema resource")
			return
		}
		compiled, compileErr = c.Compile(SchemaID)
	})
	return compiled, compileErr
}

// Validate checks an intent document against the schema before it is sent
// to the proxy.
func Validate(doc string) error {
	if strings.TrimSpace(doc) == "" {
		return proxyerr.InvalidArgument("intent_data", "intent document is empty")
	}
	v, err := jschema.UnmarshalJSON(strings.NewReader(doc))
	if err != nil {
		return oops.Code(proxyerr.CodeInvalidArgument).
			With("field", "intent_data").
			Wrapf(err, "intent document is not valid JSON")
	}
	sch, err := schema()
	if err != nil {
		return err
	}
	if err := sch.Validate(v); err != nil {
		return oops.Code(proxyerr.CodeInvalidArgument).
			With("field", "intent_data").
			Hint("run `escapepod schema` to print the intent document schema").
			Wrapf(err, "intent document does not match the schema")
	}
	return nil
}
