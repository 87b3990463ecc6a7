package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The Lake service is declared by hand over the protobuf well-known types, so
// it needs no generated code.
const (
	LakeServiceName = "nexuslake.v1.Lake"

	LakeService_Insert_FullMethodName   = "/nexuslake.v1.Lake/Insert"
	LakeService_Lookup_FullMethodName   = "/nexuslake.v1.Lake/Lookup"
	LakeService_Latest_FullMethodName   = "/nexuslake.v1.Lake/Latest"
	LakeService_Delete_FullMethodName   = "/nexuslake.v1.Lake/Delete"
	LakeService_Rebuild_FullMethodName  = "/nexuslake.v1.Lake/Rebuild"
	LakeService_ListKeys_FullMethodName = "/nexuslake.v1.Lake/ListKeys"
	LakeService_Stats_FullMethodName    = "/nexuslake.v1.Lake/Stats"
)

// LakeServiceServer is the server API of the Lake service.
type LakeServiceServer interface {
	// Insert stores a document and returns its location as
	// {"file_id", "offset"}.
	Insert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Lookup returns every version of a key, oldest first.
	Lookup(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	// Latest returns the newest version of a key or NotFound.
	Latest(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Delete(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	Rebuild(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListKeys(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterLakeServiceServer registers srv on s.
func RegisterLakeServiceServer(s grpc.ServiceRegistrar, srv LakeServiceServer) {
	s.RegisterService(&LakeService_ServiceDesc, srv)
}

func unaryMethod[Req proto.Message, Resp proto.Message](
	name, fullMethod string,
	newReq func() Req,
	call func(LakeServiceServer, context.Context, Req) (Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LakeServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(LakeServiceServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func newStringValue() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }
func newEmpty() *emptypb.Empty                { return &emptypb.Empty{} }
func newStruct() *structpb.Struct             { return &structpb.Struct{} }

// LakeService_ServiceDesc is the grpc.ServiceDesc for the Lake service.
var LakeService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: LakeServiceName,
	HandlerType: (*LakeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Insert", LakeService_Insert_FullMethodName, newStruct, LakeServiceServer.Insert),
		unaryMethod("Lookup", LakeService_Lookup_FullMethodName, newStringValue, LakeServiceServer.Lookup),
		unaryMethod("Latest", LakeService_Latest_FullMethodName, newStringValue, LakeServiceServer.Latest),
		unaryMethod("Delete", LakeService_Delete_FullMethodName, newStringValue, LakeServiceServer.Delete),
		unaryMethod("Rebuild", LakeService_Rebuild_FullMethodName, newEmpty, LakeServiceServer.Rebuild),
		unaryMethod("ListKeys", LakeService_ListKeys_FullMethodName, newEmpty, LakeServiceServer.ListKeys),
		unaryMethod("Stats", LakeService_Stats_FullMethodName, newEmpty, LakeServiceServer.Stats),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nexuslake/v1/lake.proto",
}

// LakeServiceClient is the client API of the Lake service.
type LakeServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLakeServiceClient returns a client that calls the Lake service over cc.
func NewLakeServiceClient(cc grpc.ClientConnInterface) *LakeServiceClient {
	return &LakeServiceClient{cc: cc}
}

func (c *LakeServiceClient) Insert(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, LakeService_Insert_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LakeServiceClient) Lookup(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, LakeService_Lookup_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LakeServiceClient) Latest(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, LakeService_Latest_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LakeServiceClient) Delete(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, LakeService_Delete_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LakeServiceClient) Rebuild(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, LakeService_Rebuild_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LakeServiceClient) ListKeys(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, LakeService_ListKeys_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LakeServiceClient) Stats(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, LakeService_Stats_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
