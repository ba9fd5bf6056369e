// Package grpcfeed carries the snapshot feed, static info and process
// termination across a process boundary over gRPC. Messages are
// google.protobuf.Struct built from the JSON wire form, so every transport
// sees the same field names.
package grpcfeed

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "sysmon.v1.Statistics"

const (
	subscribeMethod  = "/" + serviceName + "/Subscribe"
	staticInfoMethod = "/" + serviceName + "/StaticInfo"
	terminateMethod  = "/" + serviceName + "/Terminate"
)

// StatisticsServer is the server side of sysmon.v1.Statistics.
type StatisticsServer interface {
	Subscribe(*emptypb.Empty, grpc.ServerStream) error
	StaticInfo(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Terminate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*StatisticsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StaticInfo", Handler: staticInfoHandler},
		{MethodName: "Terminate", Handler: terminateHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "sysmon/v1/statistics.proto",
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(StatisticsServer).Subscribe(in, stream)
}

func staticInfoHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatisticsServer).StaticInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: staticInfoMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StatisticsServer).StaticInfo(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func terminateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatisticsServer).Terminate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: terminateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StatisticsServer).Terminate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// toStruct converts v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	st := new(structpb.Struct)
	if err := protojson.Unmarshal(b, st); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return st, nil
}

// fromStruct decodes st into the value pointed to by v.
func fromStruct(st *structpb.Struct, v any) error {
	b, err := protojson.Marshal(st)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}
