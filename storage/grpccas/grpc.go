package grpccas

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified name of the asset store service.
//
// Messages are protobuf well-known wrapper types, so no codegen step is
// needed:
//
//	service AssetStore {
//	  rpc Put(google.protobuf.BytesValue) returns (google.protobuf.StringValue); // body -> asset_id
//	  rpc Get(google.protobuf.StringValue) returns (google.protobuf.BytesValue); // asset_id -> body
//	  rpc Has(google.protobuf.StringValue) returns (google.protobuf.BoolValue);
//	}
const ServiceName = "gep.archive.v1.AssetStore"

const (
	methodPut = "/" + ServiceName + "/Put"
	methodGet = "/" + ServiceName + "/Get"
	methodHas = "/" + ServiceName + "/Has"
)

// AssetStoreServer is the server API for the AssetStore service.
type AssetStoreServer interface {
	Put(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
}

// UnimplementedAssetStoreServer can be embedded to have forward compatible implementations.
type UnimplementedAssetStoreServer struct{}

func (UnimplementedAssetStoreServer) Put(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Put not implemented")
}
func (UnimplementedAssetStoreServer) Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Get not implemented")
}
func (UnimplementedAssetStoreServer) Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Has not implemented")
}

func RegisterAssetStoreServer(s grpc.ServiceRegistrar, srv AssetStoreServer) {
	s.RegisterService(&AssetStore_ServiceDesc, srv)
}

// AssetStoreClient is the client API for the AssetStore service.
type AssetStoreClient interface {
	Put(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Get(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Has(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
}

type assetStoreClient struct{ cc grpc.ClientConnInterface }

func NewAssetStoreClient(cc grpc.ClientConnInterface) AssetStoreClient {
	return &assetStoreClient{cc: cc}
}

func (c *assetStoreClient) Put(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, methodPut, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *assetStoreClient) Get(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodGet, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *assetStoreClient) Has(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, methodHas, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func unaryHandler[In any, Out any](method string, call func(AssetStoreServer, context.Context, *In) (*Out, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(In)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AssetStoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(AssetStoreServer), ctx, req.(*In))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AssetStore_ServiceDesc is the grpc.ServiceDesc for the AssetStore service.
var AssetStore_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AssetStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Put", Handler: unaryHandler(methodPut, AssetStoreServer.Put)},
		{MethodName: "Get", Handler: unaryHandler(methodGet, AssetStoreServer.Get)},
		{MethodName: "Has", Handler: unaryHandler(methodHas, AssetStoreServer.Has)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gep/archive/v1/asset_store.proto",
}
