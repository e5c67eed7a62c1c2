package reducerapi

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "spacetimedb.engine.v1.ReducerService"

// ReducerServiceServer is the server-side contract this package's
// ServiceDesc dispatches to.
type ReducerServiceServer interface {
	CallReducer(ctx context.Context, req *CallReducerRequest) (*ReducerResult, error)
}

func callReducerHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CallReducerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReducerServiceServer).CallReducer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/CallReducer"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReducerServiceServer).CallReducer(ctx, req.(*CallReducerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ReducerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CallReducer", Handler: callReducerHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "reducerapi.proto",
}

// RegisterReducerServiceServer registers srv to handle CallReducer RPCs
// on s.
func RegisterReducerServiceServer(s *grpc.Server, srv ReducerServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// ReducerServiceClient is the client-side contract for CallReducer RPCs.
type ReducerServiceClient interface {
	CallReducer(ctx context.Context, req *CallReducerRequest, opts ...grpc.CallOption) (*ReducerResult, error)
}

type reducerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewReducerServiceClient returns a ReducerServiceClient issuing calls
// over cc, using this package's JSON codec.
func NewReducerServiceClient(cc grpc.ClientConnInterface) ReducerServiceClient {
	return &reducerServiceClient{cc: cc}
}

func (c *reducerServiceClient) CallReducer(ctx context.Context, req *CallReducerRequest, opts ...grpc.CallOption) (*ReducerResult, error) {
	out := new(ReducerResult)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/CallReducer", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
