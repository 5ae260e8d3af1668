// Package bridgegrpc carries engine calls and events over gRPC. Messages are
// google.protobuf.Struct and Value so the bridge needs no generated stubs.
package bridgegrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service and health check names.
const (
	ServiceName   = "maestro.bridge.v1.Bridge"
	HealthEngine  = "maestro.engine"
	HealthSidecar = "maestro.sidecar"

	invokeMethod    = "/maestro.bridge.v1.Bridge/Invoke"
	subscribeMethod = "/maestro.bridge.v1.Bridge/Subscribe"
)

// BridgeServer is the server API for the bridge service.
type BridgeServer interface {
	// Invoke runs {op, args} and returns the result value.
	Invoke(context.Context, *structpb.Struct) (*structpb.Value, error)
	// Subscribe streams {channel, seq, payload} events for {channels}.
	Subscribe(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// RegisterBridgeServer registers srv on s.
func RegisterBridgeServer(s grpc.ServiceRegistrar, srv BridgeServer) {
	s.RegisterService(&bridgeServiceDesc, srv)
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BridgeServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: invokeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BridgeServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BridgeServer).Subscribe(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

var bridgeServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BridgeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: invokeHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "maestro/bridge/v1/bridge.proto",
}

// bridgeClient is the client API for the bridge service.
type bridgeClient struct {
	cc grpc.ClientConnInterface
}

func (c *bridgeClient) Invoke(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	out := new(structpb.Value)
	if err := c.cc.Invoke(ctx, invokeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *bridgeClient) Subscribe(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &bridgeServiceDesc.Streams[0], subscribeMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
