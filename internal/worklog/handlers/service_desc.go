package handlers

import (
	"context"

	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "worklog.v1.WorkLogService"

// FullMethod returns the gRPC method path for method, e.g. /worklog.v1.WorkLogService/GetWorkLog.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// WorkLogServiceServer is the server API for the work-log service. Requests
// and responses are JSON-shaped structs; ExportInvoice answers with raw CSV.
type WorkLogServiceServer interface {
	SubmitWorkLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordWorkLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListWorkLogs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetWorkLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EditWorkLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApproveWorkLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectWorkLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteWorkLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmWorkLogEdit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ContestWorkLogEdit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ArchiveWorkLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ArchiveWorkLogs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListWorkers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCostSummary(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMyWorkLogs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PreviewInvoice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmInvoice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportInvoice(context.Context, *structpb.Struct) (*httpbody.HttpBody, error)
}

type rpc func(srv WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error)

// rpcs lists every method with its dispatch, in declaration order.
var rpcs = []struct {
	name string
	call rpc
}{
	{"SubmitWorkLog", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.SubmitWorkLog(ctx, in)
	}},
	{"RecordWorkLog", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.RecordWorkLog(ctx, in)
	}},
	{"ListWorkLogs", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.ListWorkLogs(ctx, in)
	}},
	{"GetWorkLog", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.GetWorkLog(ctx, in)
	}},
	{"EditWorkLog", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.EditWorkLog(ctx, in)
	}},
	{"ApproveWorkLog", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.ApproveWorkLog(ctx, in)
	}},
	{"RejectWorkLog", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.RejectWorkLog(ctx, in)
	}},
	{"CompleteWorkLog", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.CompleteWorkLog(ctx, in)
	}},
	{"ConfirmWorkLogEdit", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.ConfirmWorkLogEdit(ctx, in)
	}},
	{"ContestWorkLogEdit", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.ContestWorkLogEdit(ctx, in)
	}},
	{"ArchiveWorkLog", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.ArchiveWorkLog(ctx, in)
	}},
	{"ArchiveWorkLogs", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.ArchiveWorkLogs(ctx, in)
	}},
	{"ListWorkers", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.ListWorkers(ctx, in)
	}},
	{"GetCostSummary", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.GetCostSummary(ctx, in)
	}},
	{"ListMyWorkLogs", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.ListMyWorkLogs(ctx, in)
	}},
	{"PreviewInvoice", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.PreviewInvoice(ctx, in)
	}},
	{"ConfirmInvoice", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.ConfirmInvoice(ctx, in)
	}},
	{"ExportInvoice", func(s WorkLogServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
		return s.ExportInvoice(ctx, in)
	}},
}

// WorkLogService_ServiceDesc is the grpc.ServiceDesc for WorkLogService.
var WorkLogService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WorkLogServiceServer)(nil),
	Methods:     methodDescs(),
	Streams:     []grpc.StreamDesc{},
	Metadata:    "worklog/v1/worklog.proto",
}

func methodDescs() []grpc.MethodDesc {
	descs := make([]grpc.MethodDesc, 0, len(rpcs))
	for _, r := range rpcs {
		descs = append(descs, grpc.MethodDesc{
			MethodName: r.name,
			Handler:    unaryHandler(r.name, r.call),
		})
	}
	return descs
}

func unaryHandler(name string, call rpc) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(WorkLogServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(name),
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(WorkLogServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RegisterWorkLogServiceServer registers srv on s.
func RegisterWorkLogServiceServer(s grpc.ServiceRegistrar, srv WorkLogServiceServer) {
	s.RegisterService(&WorkLogService_ServiceDesc, srv)
}

// WorkLogServiceClient calls WorkLogService over a client connection.
type WorkLogServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewWorkLogServiceClient(cc grpc.ClientConnInterface) *WorkLogServiceClient {
	return &WorkLogServiceClient{cc: cc}
}

// Call invokes a struct-to-struct method by its short name.
func (c *WorkLogServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportInvoice fetches the invoice as CSV.
func (c *WorkLogServiceClient) ExportInvoice(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*httpbody.HttpBody, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(httpbody.HttpBody)
	if err := c.cc.Invoke(ctx, FullMethod("ExportInvoice"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
