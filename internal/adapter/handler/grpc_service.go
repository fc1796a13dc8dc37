package handler

import (
	"context"

	"google.golang.org/grpc"
)

const enrollmentServiceName = "enrollment.v1.EnrollmentService"

type EnrollRequest struct {
	ActivityID FlexibleID `json:"activity_id"`
}

type EnrollResponse struct {
	Status       string `json:"status"`
	EnrollmentID string `json:"enrollment_id"`
}

type CancelRequest struct {
	EnrollmentID string `json:"enrollment_id"`
}

type CancelResponse struct {
	Status string `json:"status"`
}

type ListMineRequest struct {
	When string `json:"when"`
}

type EnrollmentServiceServer interface {
	Enroll(context.Context, *EnrollRequest) (*EnrollResponse, error)
	Cancel(context.Context, *CancelRequest) (*CancelResponse, error)
	ListMine(context.Context, *ListMineRequest) (*ListMineResponse, error)
}

func RegisterEnrollmentServiceServer(s grpc.ServiceRegistrar, srv EnrollmentServiceServer) {
	s.RegisterService(&enrollmentServiceDesc, srv)
}

var enrollmentServiceDesc = grpc.ServiceDesc{
	ServiceName: enrollmentServiceName,
	HandlerType: (*EnrollmentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Enroll", Handler: enrollHandler},
		{MethodName: "Cancel", Handler: cancelHandler},
		{MethodName: "ListMine", Handler: listMineHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "enrollment/v1/enrollment.proto",
}

func enrollHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(EnrollRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EnrollmentServiceServer).Enroll(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + enrollmentServiceName + "/Enroll"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EnrollmentServiceServer).Enroll(ctx, req.(*EnrollRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func cancelHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CancelRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EnrollmentServiceServer).Cancel(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + enrollmentServiceName + "/Cancel"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EnrollmentServiceServer).Cancel(ctx, req.(*CancelRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listMineHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListMineRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EnrollmentServiceServer).ListMine(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + enrollmentServiceName + "/ListMine"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EnrollmentServiceServer).ListMine(ctx, req.(*ListMineRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// EnrollmentServiceClient calls the service with the JSON codec.
type EnrollmentServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewEnrollmentServiceClient(cc grpc.ClientConnInterface) *EnrollmentServiceClient {
	return &EnrollmentServiceClient{cc: cc}
}

func (c *EnrollmentServiceClient) Enroll(ctx context.Context, in *EnrollRequest, opts ...grpc.CallOption) (*EnrollResponse, error) {
	out := new(EnrollResponse)
	if err := c.invoke(ctx, "Enroll", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EnrollmentServiceClient) Cancel(ctx context.Context, in *CancelRequest, opts ...grpc.CallOption) (*CancelResponse, error) {
	out := new(CancelResponse)
	if err := c.invoke(ctx, "Cancel", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EnrollmentServiceClient) ListMine(ctx context.Context, in *ListMineRequest, opts ...grpc.CallOption) (*ListMineResponse, error) {
	out := new(ListMineResponse)
	if err := c.invoke(ctx, "ListMine", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EnrollmentServiceClient) invoke(ctx context.Context, method string, in, out interface{}, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+enrollmentServiceName+"/"+method, in, out, opts...)
}
