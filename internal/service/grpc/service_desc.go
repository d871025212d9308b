package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName: полное имя gRPC-сервиса.
const ServiceName = "retailops.v1.ReturnsService"

const (
	methodPreviewSettlement         = "PreviewSettlement"
	methodSubmitReturn              = "SubmitReturn"
	methodResumeSaga                = "ResumeSaga"
	methodGetSaga                   = "GetSaga"
	methodListSagas                 = "ListSagas"
	methodFindOrders                = "FindOrders"
	methodBulkReturnToVendor        = "BulkReturnToVendor"
	methodBulkDispose               = "BulkDispose"
	methodBulkMarkSold              = "BulkMarkSold"
	methodListReconciliationCases   = "ListReconciliationCases"
	methodResolveReconciliationCase = "ResolveReconciliationCase"
)

// FullMethod возвращает путь метода вида /retailops.v1.ReturnsService/<name>.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// ReturnsServer: серверная часть ReturnsService.
type ReturnsServer interface {
	PreviewSettlement(context.Context, *ReturnRequest) (*PreviewSettlementResponse, error)
	SubmitReturn(context.Context, *ReturnRequest) (*SagaResponse, error)
	ResumeSaga(context.Context, *ResumeSagaRequest) (*SagaResponse, error)
	GetSaga(context.Context, *GetSagaRequest) (*GetSagaResponse, error)
	ListSagas(context.Context, *ListSagasRequest) (*ListSagasResponse, error)
	FindOrders(context.Context, *FindOrdersRequest) (*FindOrdersResponse, error)
	BulkReturnToVendor(context.Context, *BulkReturnToVendorRequest) (*BulkResponse, error)
	BulkDispose(context.Context, *BulkDisposeRequest) (*BulkResponse, error)
	BulkMarkSold(context.Context, *BulkMarkSoldRequest) (*BulkResponse, error)
	ListReconciliationCases(context.Context, *ListReconciliationCasesRequest) (*ListReconciliationCasesResponse, error)
	ResolveReconciliationCase(context.Context, *ResolveReconciliationCaseRequest) (*ResolveReconciliationCaseResponse, error)
}

// unaryHandler адаптирует типизированный метод к grpc.MethodDesc с поддержкой interceptor-цепочки.
func unaryHandler[Req, Resp any](name string, call func(ReturnsServer, context.Context, *Req) (*Resp, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReturnsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ReturnsServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ReturnsServiceDesc описывает ReturnsService для grpc.Server.
var ReturnsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReturnsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodPreviewSettlement, Handler: unaryHandler(methodPreviewSettlement, ReturnsServer.PreviewSettlement)},
		{MethodName: methodSubmitReturn, Handler: unaryHandler(methodSubmitReturn, ReturnsServer.SubmitReturn)},
		{MethodName: methodResumeSaga, Handler: unaryHandler(methodResumeSaga, ReturnsServer.ResumeSaga)},
		{MethodName: methodGetSaga, Handler: unaryHandler(methodGetSaga, ReturnsServer.GetSaga)},
		{MethodName: methodListSagas, Handler: unaryHandler(methodListSagas, ReturnsServer.ListSagas)},
		{MethodName: methodFindOrders, Handler: unaryHandler(methodFindOrders, ReturnsServer.FindOrders)},
		{MethodName: methodBulkReturnToVendor, Handler: unaryHandler(methodBulkReturnToVendor, ReturnsServer.BulkReturnToVendor)},
		{MethodName: methodBulkDispose, Handler: unaryHandler(methodBulkDispose, ReturnsServer.BulkDispose)},
		{MethodName: methodBulkMarkSold, Handler: unaryHandler(methodBulkMarkSold, ReturnsServer.BulkMarkSold)},
		{MethodName: methodListReconciliationCases, Handler: unaryHandler(methodListReconciliationCases, ReturnsServer.ListReconciliationCases)},
		{MethodName: methodResolveReconciliationCase, Handler: unaryHandler(methodResolveReconciliationCase, ReturnsServer.ResolveReconciliationCase)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "retailops/v1/returns.json",
}

// RegisterReturnsServer регистрирует реализацию на сервере.
func RegisterReturnsServer(s grpc.ServiceRegistrar, srv ReturnsServer) {
	s.RegisterService(&ReturnsServiceDesc, srv)
}

// ReturnsClient: клиент ReturnsService поверх JSON-кодека.
type ReturnsClient struct {
	cc grpc.ClientConnInterface
}

// NewReturnsClient создаёт клиента; каждый вызов идёт с content-subtype json.
func NewReturnsClient(cc grpc.ClientConnInterface) *ReturnsClient {
	return &ReturnsClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *ReturnsClient, name string, in interface{}, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, FullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ReturnsClient) PreviewSettlement(ctx context.Context, in *ReturnRequest, opts ...grpc.CallOption) (*PreviewSettlementResponse, error) {
	return invoke[PreviewSettlementResponse](ctx, c, methodPreviewSettlement, in, opts)
}

func (c *ReturnsClient) SubmitReturn(ctx context.Context, in *ReturnRequest, opts ...grpc.CallOption) (*SagaResponse, error) {
	return invoke[SagaResponse](ctx, c, methodSubmitReturn, in, opts)
}

func (c *ReturnsClient) ResumeSaga(ctx context.Context, in *ResumeSagaRequest, opts ...grpc.CallOption) (*SagaResponse, error) {
	return invoke[SagaResponse](ctx, c, methodResumeSaga, in, opts)
}

func (c *ReturnsClient) GetSaga(ctx context.Context, in *GetSagaRequest, opts ...grpc.CallOption) (*GetSagaResponse, error) {
	return invoke[GetSagaResponse](ctx, c, methodGetSaga, in, opts)
}

func (c *ReturnsClient) ListSagas(ctx context.Context, in *ListSagasRequest, opts ...grpc.CallOption) (*ListSagasResponse, error) {
	return invoke[ListSagasResponse](ctx, c, methodListSagas, in, opts)
}

func (c *ReturnsClient) FindOrders(ctx context.Context, in *FindOrdersRequest, opts ...grpc.CallOption) (*FindOrdersResponse, error) {
	return invoke[FindOrdersResponse](ctx, c, methodFindOrders, in, opts)
}

func (c *ReturnsClient) BulkReturnToVendor(ctx context.Context, in *BulkReturnToVendorRequest, opts ...grpc.CallOption) (*BulkResponse, error) {
	return invoke[BulkResponse](ctx, c, methodBulkReturnToVendor, in, opts)
}

func (c *ReturnsClient) BulkDispose(ctx context.Context, in *BulkDisposeRequest, opts ...grpc.CallOption) (*BulkResponse, error) {
	return invoke[BulkResponse](ctx, c, methodBulkDispose, in, opts)
}

func (c *ReturnsClient) BulkMarkSold(ctx context.Context, in *BulkMarkSoldRequest, opts ...grpc.CallOption) (*BulkResponse, error) {
	return invoke[BulkResponse](ctx, c, methodBulkMarkSold, in, opts)
}

func (c *ReturnsClient) ListReconciliationCases(ctx context.Context, in *ListReconciliationCasesRequest, opts ...grpc.CallOption) (*ListReconciliationCasesResponse, error) {
	return invoke[ListReconciliationCasesResponse](ctx, c, methodListReconciliationCases, in, opts)
}

func (c *ReturnsClient) ResolveReconciliationCase(ctx context.Context, in *ResolveReconciliationCaseRequest, opts ...grpc.CallOption) (*ResolveReconciliationCaseResponse, error) {
	return invoke[ResolveReconciliationCaseResponse](ctx, c, methodResolveReconciliationCase, in, opts)
}
