package models

import (
	"context"
	"fmt"

	"github.com/MrCodeEU/livecheck/internal/geometry"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Inference service method names. Messages are protobuf well-known types.
const (
	inferenceService = "livecheck.inference.v1.Inference"
	methodHealth     = "/" + inferenceService + "/Health"
	methodSegment    = "/" + inferenceService + "/Segment"
	methodLandmarks  = "/" + inferenceService + "/Landmarks"
)

// InferenceServer is the server side of the inference service.
// Health returns a Struct with healthy, version and device fields.
// Segment takes a JPEG frame and returns a PNG grayscale mask.
// Landmarks takes a JPEG frame and returns a list of [x, y, z] lists, empty when no face is found.
type InferenceServer interface {
	Health(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Segment(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Landmarks(context.Context, *wrapperspb.BytesValue) (*structpb.ListValue, error)
}

// RegisterInferenceServer registers srv on s
func RegisterInferenceServer(s grpc.ServiceRegistrar, srv InferenceServer) {
	s.RegisterService(&inferenceServiceDesc, srv)
}

var inferenceServiceDesc = grpc.ServiceDesc{
	ServiceName: inferenceService,
	HandlerType: (*InferenceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Health", Handler: healthHandler},
		{MethodName: "Segment", Handler: segmentHandler},
		{MethodName: "Landmarks", Handler: landmarksHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "livecheck/inference/v1/inference.proto",
}

func healthHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InferenceServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodHealth}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InferenceServer).Health(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func segmentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InferenceServer).Segment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSegment}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InferenceServer).Segment(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func landmarksHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InferenceServer).Landmarks(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodLandmarks}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InferenceServer).Landmarks(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// EncodeLandmarks converts a landmark set to its wire form
func EncodeLandmarks(set geometry.LandmarkSet) *structpb.ListValue {
	values := make([]*structpb.Value, len(set))
	for i, p := range set {
		values[i] = structpb.NewListValue(&structpb.ListValue{Values: []*structpb.Value{
			structpb.NewNumberValue(p.X),
			structpb.NewNumberValue(p.Y),
			structpb.NewNumberValue(p.Z),
		}})
	}
	return &structpb.ListValue{Values: values}
}

// DecodeLandmarks parses the wire form of a landmark set. Points carry two or three coordinates.
func DecodeLandmarks(list *structpb.ListValue) (geometry.LandmarkSet, error) {
	if list == nil || len(list.GetValues()) == 0 {
		return nil, nil
	}

	set := make(geometry.LandmarkSet, len(list.GetValues()))
	for i, v := range list.GetValues() {
		coords := v.GetListValue().GetValues()
		if len(coords) < 2 || len(coords) > 3 {
			return nil, fmt.Errorf("landmark %d: expected 2 or 3 coordinates, got %d", i, len(coords))
		}
		for j, c := range coords {
			if _, ok := c.GetKind().(*structpb.Value_NumberValue); !ok {
				return nil, fmt.Errorf("landmark %d: coordinate %d is not a number", i, j)
			}
		}
		set[i] = geometry.Point{X: coords[0].GetNumberValue(), Y: coords[1].GetNumberValue()}
		if len(coords) == 3 {
			set[i].Z = coords[2].GetNumberValue()
		}
	}
	return set, nil
}
