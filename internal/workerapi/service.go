package workerapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName         = "ingestkeeper.worker.OutcomeReporter"
	ReportOutcomeMethod = "/" + ServiceName + "/ReportOutcome"
)

type OutcomeReporterServer interface {
	ReportOutcome(ctx context.Context, req *ReportOutcomeRequest) (*ReportOutcomeResponse, error)
}

// reportOutcomeHandler hands interceptors the wire message and decodes it
// inside the final handler, so authentication runs before decoding errors.
func reportOutcomeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		r, err := RequestFromProto(req.(*structpb.Struct))
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		resp, err := srv.(OutcomeReporterServer).ReportOutcome(ctx, r)
		if err != nil {
			return nil, err
		}
		return resp.Proto(), nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ReportOutcomeMethod,
	}
	return interceptor(ctx, in, info, handler)
}

var OutcomeReporterServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OutcomeReporterServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ReportOutcome",
			Handler:    reportOutcomeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ingestkeeper/worker",
}

func RegisterOutcomeReporterServer(s grpc.ServiceRegistrar, srv OutcomeReporterServer) {
	s.RegisterService(&OutcomeReporterServiceDesc, srv)
}

type OutcomeReporterClient interface {
	ReportOutcome(ctx context.Context, in *ReportOutcomeRequest, opts ...grpc.CallOption) (*ReportOutcomeResponse, error)
}

type outcomeReporterClient struct {
	cc grpc.ClientConnInterface
}

func NewOutcomeReporterClient(cc grpc.ClientConnInterface) OutcomeReporterClient {
	return &outcomeReporterClient{cc}
}

func (c *outcomeReporterClient) ReportOutcome(ctx context.Context, in *ReportOutcomeRequest, opts ...grpc.CallOption) (*ReportOutcomeResponse, error) {
	msg, err := in.Proto()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ReportOutcomeMethod, msg, out, opts...); err != nil {
		return nil, err
	}
	return ResponseFromProto(out)
}
