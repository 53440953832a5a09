// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package cybervectorv1

import (
	"fmt"

	"github.com/samber/oops"
	"google.golang.org/grpc"

	"github.com/cyb3rdog/escapepod-sdk-go/pkg/proxyerr"
)

// Codec is a grpc encoding.Codec for the messages of this package. It reports
// the "proto" content subtype so peers see ordinary protobuf traffic.
type Codec struct{}

// Marshal encodes v, which must be a Message.
func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, codecError(v).Errorf("cybervector codec: cannot marshal %T", v)
	}
	b, err := m.MarshalWire()
	if err != nil {
		return nil, codecError(v).Wrapf(err, "cybervector codec: marshal")
	}
	return b, nil
}

// Unmarshal decodes data into v, which must be a Message.
func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return codecError(v).Errorf("cybervector codec: cannot unmarshal into %T", v)
	}
	if err := m.UnmarshalWire(data); err != nil {
		return codecError(v).With("size", len(data)).Wrapf(err, "cybervector codec: unmarshal")
	}
	return nil
}

func codecError(v any) oops.OopsErrorBuilder {
	return oops.Code(proxyerr.CodeCodec).With("type", fmt.Sprintf("%T", v))
}

// Name returns the content subtype.
func (Codec) Name() string { return "proto" }

// ServerOptions returns the options a grpc.Server needs to serve this package's
// messages.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{grpc.ForceServerCodec(Codec{})}
}
