// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package cybervectorv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Full method names of the proxy service.
const (
	ServiceName = "cybervector.CyberVectorProxyService"

	GetStatusFullMethodName     = "/cybervector.CyberVectorProxyService/GetStatus"
	SubscribeFullMethodName     = "/cybervector.CyberVectorProxyService/Subscribe"
	UnSubscribeFullMethodName   = "/cybervector.CyberVectorProxyService/UnSubscribe"
	InsertIntentFullMethodName  = "/cybervector.CyberVectorProxyService/InsertIntent"
	SelectIntentsFullMethodName = "/cybervector.CyberVectorProxyService/SelectIntents"
	DeleteIntentFullMethodName  = "/cybervector.CyberVectorProxyService/DeleteIntent"
)

// CyberVectorProxyServiceClient is the client API of the proxy service.
type CyberVectorProxyServiceClient interface {
	GetStatus(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error)
	Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[ProxyMessage], error)
	UnSubscribe(ctx context.Context, in *UnsubscribeRequest, opts ...grpc.CallOption) (*ProxyMessage, error)
	InsertIntent(ctx context.Context, in *InsertIntentRequest, opts ...grpc.CallOption) (*InsertIntentResponse, error)
	SelectIntents(ctx context.Context, in *SelectIntentRequest, opts ...grpc.CallOption) (*SelectIntentResponse, error)
	DeleteIntent(ctx context.Context, in *DeleteIntentRequest, opts ...grpc.CallOption) (*DeleteIntentResponse, error)
}

type cyberVectorProxyServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCyberVectorProxyServiceClient returns a client bound to cc. Every call
// is forced onto this package's Codec.
func NewCyberVectorProxyServiceClient(cc grpc.ClientConnInterface) CyberVectorProxyServiceClient {
	return &cyberVectorProxyServiceClient{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
}

func (c *cyberVectorProxyServiceClient) GetStatus(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, GetStatusFullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *cyberVectorProxyServiceClient) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[ProxyMessage], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], SubscribeFullMethodName, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[SubscribeRequest, ProxyMessage]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *cyberVectorProxyServiceClient) UnSubscribe(ctx context.Context, in *UnsubscribeRequest, opts ...grpc.CallOption) (*ProxyMessage, error) {
	out := new(ProxyMessage)
	if err := c.cc.Invoke(ctx, UnSubscribeFullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *cyberVectorProxyServiceClient) InsertIntent(ctx context.Context, in *InsertIntentRequest, opts ...grpc.CallOption) (*InsertIntentResponse, error) {
	out := new(InsertIntentResponse)
	if err := c.cc.Invoke(ctx, InsertIntentFullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *cyberVectorProxyServiceClient) SelectIntents(ctx context.Context, in *SelectIntentRequest, opts ...grpc.CallOption) (*SelectIntentResponse, error) {
	out := new(SelectIntentResponse)
	if err := c.cc.Invoke(ctx, SelectIntentsFullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *cyberVectorProxyServiceClient) DeleteIntent(ctx context.Context, in *DeleteIntentRequest, opts ...grpc.CallOption) (*DeleteIntentResponse, error) {
	out := new(DeleteIntentResponse)
	if err := c.cc.Invoke(ctx, DeleteIntentFullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// CyberVectorProxyServiceServer is the server API of the proxy service.
type CyberVectorProxyServiceServer interface {
	GetStatus(context.Context, *StatusRequest) (*StatusResponse, error)
	Subscribe(*SubscribeRequest, grpc.ServerStreamingServer[ProxyMessage]) error
	UnSubscribe(context.Context, *UnsubscribeRequest) (*ProxyMessage, error)
	InsertIntent(context.Context, *InsertIntentRequest) (*InsertIntentResponse, error)
	SelectIntents(context.Context, *SelectIntentRequest) (*SelectIntentResponse, error)
	DeleteIntent(context.Context, *DeleteIntentRequest) (*DeleteIntentResponse, error)
}

// UnimplementedCyberVectorProxyServiceServer answers every method with
// codes.Unimplemented. Embed it to implement a subset of the service.
type UnimplementedCyberVectorProxyServiceServer struct{}

func (UnimplementedCyberVectorProxyServiceServer) GetStatus(context.Context, *StatusRequest) (*StatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStatus not implemented")
}

func (UnimplementedCyberVectorProxyServiceServer) Subscribe(*SubscribeRequest, grpc.ServerStreamingServer[ProxyMessage]) error {
	return status.Error(codes.Unimplemented, "method Subscribe not implemented")
}

func (UnimplementedCyberVectorProxyServiceServer) UnSubscribe(context.Context, *UnsubscribeRequest) (*ProxyMessage, error) {
	return nil, status.Error(codes.Unimplemented, "method UnSubscribe not implemented")
}

func (UnimplementedCyberVectorProxyServiceServer) InsertIntent(context.Context, *InsertIntentRequest) (*InsertIntentResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method InsertIntent not implemented")
}

func (UnimplementedCyberVectorProxyServiceServer) SelectIntents(context.Context, *SelectIntentRequest) (*SelectIntentResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SelectIntents not implemented")
}

func (UnimplementedCyberVectorProxyServiceServer) DeleteIntent(context.Context, *DeleteIntentRequest) (*DeleteIntentResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DeleteIntent not implemented")
}

// RegisterCyberVectorProxyServiceServer registers srv on s. The server must be
// created with ServerOptions.
func RegisterCyberVectorProxyServiceServer(s grpc.ServiceRegistrar, srv CyberVectorProxyServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(CyberVectorProxyServiceServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CyberVectorProxyServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CyberVectorProxyServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CyberVectorProxyServiceServer).Subscribe(in, &grpc.GenericServerStream[SubscribeRequest, ProxyMessage]{ServerStream: stream})
}

// ServiceDesc describes the proxy service for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CyberVectorProxyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatus",
			Handler: unaryHandler(GetStatusFullMethodName, func(s CyberVectorProxyServiceServer, ctx context.Context, in *StatusRequest) (*StatusResponse, error) {
				return s.GetStatus(ctx, in)
			}),
		},
		{
			MethodName: "UnSubscribe",
			Handler: unaryHandler(UnSubscribeFullMethodName, func(s CyberVectorProxyServiceServer, ctx context.Context, in *UnsubscribeRequest) (*ProxyMessage, error) {
				return s.UnSubscribe(ctx, in)
			}),
		},
		{
			MethodName: "InsertIntent",
			Handler: unaryHandler(InsertIntentFullMethodName, func(s CyberVectorProxyServiceServer, ctx context.Context, in *InsertIntentRequest) (*InsertIntentResponse, error) {
				return s.InsertIntent(ctx, in)
			}),
		},
		{
			MethodName: "SelectIntents",
			Handler: unaryHandler(SelectIntentsFullMethodName, func(s CyberVectorProxyServiceServer, ctx context.Context, in *SelectIntentRequest) (*SelectIntentResponse, error) {
				return s.SelectIntents(ctx, in)
			}),
		},
		{
			MethodName: "DeleteIntent",
			Handler: unaryHandler(DeleteIntentFullMethodName, func(s CyberVectorProxyServiceServer, ctx context.Context, in *DeleteIntentRequest) (*DeleteIntentResponse, error) {
				return s.DeleteIntent(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "cybervector_proxy.proto",
}
