package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "mirador.utilization.v1.UtilizationEngine"

const (
	methodGetStateOverview   = "GetStateOverview"
	methodGetStateTimeline   = "GetStateTimeline"
	methodGetMachineTimeline = "GetMachineTimeline"
)

// UtilizationEngineServer is the server API for the UtilizationEngine service. Messages
// are google.protobuf.Struct documents whose fields mirror the JSON wire shape.
type UtilizationEngineServer interface {
	GetStateOverview(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetStateTimeline(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetMachineTimeline(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// UtilizationEngineServiceDesc describes the service for grpc.Server registration.
var UtilizationEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*UtilizationEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: methodGetStateOverview,
			Handler: unaryHandler(methodGetStateOverview, func(srv UtilizationEngineServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return srv.GetStateOverview(ctx, req)
			}),
		},
		{
			MethodName: methodGetStateTimeline,
			Handler: unaryHandler(methodGetStateTimeline, func(srv UtilizationEngineServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return srv.GetStateTimeline(ctx, req)
			}),
		},
		{
			MethodName: methodGetMachineTimeline,
			Handler: unaryHandler(methodGetMachineTimeline, func(srv UtilizationEngineServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return srv.GetMachineTimeline(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/utilization/v1/utilization.proto",
}

// RegisterUtilizationEngineServer registers srv on s.
func RegisterUtilizationEngineServer(s grpc.ServiceRegistrar, srv UtilizationEngineServer) {
	s.RegisterService(&UtilizationEngineServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type structCall func(srv UtilizationEngineServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call structCall) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(UtilizationEngineServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// UtilizationEngineClient calls the UtilizationEngine service.
type UtilizationEngineClient struct {
	cc grpc.ClientConnInterface
}

// NewUtilizationEngineClient wraps a client connection.
func NewUtilizationEngineClient(cc grpc.ClientConnInterface) *UtilizationEngineClient {
	return &UtilizationEngineClient{cc: cc}
}

// GetStateOverview invokes the overview RPC.
func (c *UtilizationEngineClient) GetStateOverview(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGetStateOverview, req, opts...)
}

// GetStateTimeline invokes the fleet timeline RPC.
func (c *UtilizationEngineClient) GetStateTimeline(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGetStateTimeline, req, opts...)
}

// GetMachineTimeline invokes the single-machine timeline RPC.
func (c *UtilizationEngineClient) GetMachineTimeline(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGetMachineTimeline, req, opts...)
}

func (c *UtilizationEngineClient) invoke(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
