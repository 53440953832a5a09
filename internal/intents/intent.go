// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

// Package intents manages the intents stored by the extension proxy.
package intents

import (
	"encoding/json"
	"strings"

	"github.com/samber/oops"
	"github.com/tidwall/gjson"
)

// ExtendedOptions are the EscapePod routing options of an intent.
type ExtendedOptions struct {
	// ExternalParser routes the intent to the extension proxy instead of the
	// built-in behavior.
	ExternalParser    bool   `json:"external_parser" yaml:"external_parser"`
	ExternalParserURL string `json:"external_parser_url,omitempty" yaml:"external_parser_url,omitempty" jsonschema:"format=uri"`
}

// Intent is an EscapePod intent document.
type Intent struct {
	// ID is the database object id. It is empty until the intent is stored.
	ID          string `json:"-" yaml:"id,omitempty"`
	Name        string `json:"name" yaml:"name" jsonschema:"minLength=1,maxLength=128"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Intent is the name events for this intent are reported under.
	Intent string `json:"intent" yaml:"intent" jsonschema:"minLength=1,maxLength=128"`
	// UtteranceList is the comma-separated list of phrases that trigger it.
	UtteranceList      string          `json:"utterance_list" yaml:"utterance_list"`
	ExtendedOptions    ExtendedOptions `json:"extended_options,omitempty" yaml:"extended_options"`
	ResponseParameters map[string]any  `json:"response_parameters,omitempty" yaml:"response_parameters,omitempty"`

	raw string
}

// New builds an intent routed to the extension proxy. An empty intent name
// defaults to intent_<name>.
func New(name, keywords, description, intent string) Intent {
	if intent == "" {
		intent = "intent_" + name
	}
	return Intent{
		Name:            name,
		Description:     description,
		Intent:          intent,
		UtteranceList:   keywords,
		ExtendedOptions: ExtendedOptions{ExternalParser: true},
	}
}

// Utterances returns the trimmed, non-empty phrases of UtteranceList.
func (i Intent) Utterances() []string {
	var out []string
	for _, u := range strings.Split(i.UtteranceList, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// JSON returns the document as sent to the proxy. The id is not included.
func (i Intent) JSON() (string, error) {
	b, err := json.Marshal(i)
	if err != nil {
		return "", oops.Code("INTENT_ENCODE").With("intent", i.Intent).Wrap(err)
	}
	return string(b), nil
}

// Raw returns the document exactly as the proxy returned it, or "" for an
// intent that was built locally.
func (i Intent) Raw() string { return i.raw }

// Parse decodes a document returned by the proxy. The object id is read from
// either {"_id": {"$oid": ...}} or a plain string _id.
func Parse(doc string) (Intent, error) {
	if !gjson.Valid(doc) {
		return Intent{}, oops.Code("INTENT_DECODE").Errorf("intent document is not valid JSON")
	}
	res := gjson.Parse(doc)
	if !res.IsObject() {
		return Intent{}, oops.Code("INTENT_DECODE").With("type", res.Type.String()).Errorf("intent document is not a JSON object")
	}

	in := Intent{
		ID:            objectID(res.Get("_id")),
		Name:          res.Get("name").String(),
		Description:   res.Get("description").String(),
		Intent:        res.Get("intent").String(),
		UtteranceList: res.Get("utterance_list").String(),
		ExtendedOptions: ExtendedOptions{
			ExternalParser:    res.Get("extended_options.external_parser").Bool(),
			ExternalParserURL: res.Get("extended_options.external_parser_url").String(),
		},
		raw: doc,
	}
	if params := res.Get("response_parameters"); params.IsObject() {
		if m, ok := params.Value().(map[string]any); ok {
			in.ResponseParameters = m
		}
	}
	return in, nil
}

func objectID(id gjson.Result) string {
	if id.IsObject() {
		return id.Get("$oid").String()
	}
	return id.String()
}
