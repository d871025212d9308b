// Package grpcsvc: gRPC-фасад оркестратора возвратов, обменов и возвратов средств.
package grpcsvc

import (
	"context"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/service/saga"
)

const defaultReconciliationLimit = 100

// Orchestrator: операции саги, которые публикует ReturnsService.
type Orchestrator interface {
	Preview(ctx context.Context, req saga.SubmitRequest) (saga.Settlement, error)
	Submit(ctx context.Context, req saga.SubmitRequest) (saga.Result, error)
	Resume(ctx context.Context, sagaID string) (saga.Result, error)
	Get(sagaID string) (domain.SagaRecord, error)
	List(orderID string) ([]domain.SagaRecord, error)
	FindOrders(ctx context.Context, filter domain.OrderFilter, expand bool) ([]domain.Order, error)
	Timeline(sagaID string) ([]domain.TimelineEvent, error)
	BulkReturnToVendor(ctx context.Context, ids []string, vendorID, notes string) (saga.BulkResult, error)
	BulkDispose(ctx context.Context, ids []string, notes string) (saga.BulkResult, error)
	BulkMarkSold(ctx context.Context, ids []string) (saga.BulkResult, error)
	ListReconciliation(limit int) ([]domain.ReconciliationCase, error)
	ResolveReconciliation(id, note string) error
}

// ReturnsService реализует ReturnsServer поверх оркестратора саг.
type ReturnsService struct {
	saga     Orchestrator
	idemRepo domain.IdempotencyRepository
	validate *validator.Validate
	logger   *log.Entry
}

// NewReturnsService конструирует сервис. idemRepo может быть nil: тогда ключ идемпотентности не требуется.
func NewReturnsService(orchestrator Orchestrator, idemRepo domain.IdempotencyRepository, logger *log.Entry) *ReturnsService {
	if logger == nil {
		logger = log.New().WithField("component", "returns-grpc")
	}
	return &ReturnsService{
		saga:     orchestrator,
		idemRepo: idemRepo,
		validate: newValidator(),
		logger:   logger,
	}
}

var _ ReturnsServer = (*ReturnsService)(nil)

// PreviewSettlement считает дельту и тендер без записи.
func (s *ReturnsService) PreviewSettlement(ctx context.Context, req *ReturnRequest) (*PreviewSettlementResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	settlement, err := s.saga.Preview(ctx, toSubmitRequest(req))
	if err != nil {
		return nil, s.toStatus(err, methodPreviewSettlement)
	}
	return &PreviewSettlementResponse{Settlement: fromSettlement(settlement)}, nil
}

// SubmitReturn запускает сагу и отвечает после её завершения или остановки.
func (s *ReturnsService) SubmitReturn(ctx context.Context, req *ReturnRequest) (*SagaResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	return withIdempotency(s, ctx, methodSubmitReturn, req, func(ctx context.Context) (*SagaResponse, error) {
		result, err := s.saga.Submit(ctx, toSubmitRequest(req))
		if err != nil {
			return nil, s.sagaFailure(ctx, result, err, methodSubmitReturn)
		}
		return &SagaResponse{Saga: fromResult(result)}, nil
	})
}

// ResumeSaga продолжает остановленную сагу с шага, на котором она прервалась.
func (s *ReturnsService) ResumeSaga(ctx context.Context, req *ResumeSagaRequest) (*SagaResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	return withIdempotency(s, ctx, methodResumeSaga, req, func(ctx context.Context) (*SagaResponse, error) {
		result, err := s.saga.Resume(ctx, strings.TrimSpace(req.SagaID))
		if err != nil {
			return nil, s.sagaFailure(ctx, result, err, methodResumeSaga)
		}
		return &SagaResponse{Saga: fromResult(result)}, nil
	})
}

// GetSaga возвращает запись саги и, по запросу, её timeline.
func (s *ReturnsService) GetSaga(_ context.Context, req *GetSagaRequest) (*GetSagaResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	rec, err := s.saga.Get(strings.TrimSpace(req.SagaID))
	if err != nil {
		return nil, s.toStatus(err, methodGetSaga)
	}

	resp := &GetSagaResponse{Saga: fromRecord(rec)}
	if req.IncludeTimeline {
		events, err := s.saga.Timeline(rec.ID)
		if err != nil {
			s.logger.WithError(err).WithField("saga_id", rec.ID).Warn("Failed to list saga timeline")
		}
		for _, event := range events {
			resp.Timeline = append(resp.Timeline, TimelineEvent{
				Type:     event.Type,
				Stage:    string(event.Stage),
				Reason:   event.Reason,
				Occurred: event.Occurred,
			})
		}
	}
	return resp, nil
}

// ListSagas возвращает саги заказа, новые первыми.
func (s *ReturnsService) ListSagas(_ context.Context, req *ListSagasRequest) (*ListSagasResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	records, err := s.saga.List(strings.TrimSpace(req.OrderID))
	if err != nil {
		return nil, s.toStatus(err, methodListSagas)
	}

	resp := &ListSagasResponse{Sagas: make([]Saga, 0, len(records))}
	for _, rec := range records {
		resp.Sagas = append(resp.Sagas, fromRecord(rec))
	}
	return resp, nil
}

// FindOrders ищет заказы, по которым оформляется возврат.
func (s *ReturnsService) FindOrders(ctx context.Context, req *FindOrdersRequest) (*FindOrdersResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	orders, err := s.saga.FindOrders(ctx, toOrderFilter(req), req.Expand)
	if err != nil {
		return nil, s.toStatus(err, methodFindOrders)
	}

	resp := &FindOrdersResponse{Orders: make([]Order, 0, len(orders))}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, fromOrder(o))
	}
	return resp, nil
}

// BulkReturnToVendor отправляет дефектные позиции поставщику по одной.
func (s *ReturnsService) BulkReturnToVendor(ctx context.Context, req *BulkReturnToVendorRequest) (*BulkResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	return withIdempotency(s, ctx, methodBulkReturnToVendor, req, func(ctx context.Context) (*BulkResponse, error) {
		result, err := s.saga.BulkReturnToVendor(ctx, req.DefectIDs, req.VendorID, req.Notes)
		if err != nil {
			return nil, s.toStatus(err, methodBulkReturnToVendor)
		}
		return fromBulk(result), nil
	})
}

// BulkDispose списывает дефектные позиции.
func (s *ReturnsService) BulkDispose(ctx context.Context, req *BulkDisposeRequest) (*BulkResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	return withIdempotency(s, ctx, methodBulkDispose, req, func(ctx context.Context) (*BulkResponse, error) {
		result, err := s.saga.BulkDispose(ctx, req.DefectIDs, req.Notes)
		if err != nil {
			return nil, s.toStatus(err, methodBulkDispose)
		}
		return fromBulk(result), nil
	})
}

// BulkMarkSold помечает дефектные позиции проданными.
func (s *ReturnsService) BulkMarkSold(ctx context.Context, req *BulkMarkSoldRequest) (*BulkResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	return withIdempotency(s, ctx, methodBulkMarkSold, req, func(ctx context.Context) (*BulkResponse, error) {
		result, err := s.saga.BulkMarkSold(ctx, req.DefectIDs)
		if err != nil {
			return nil, s.toStatus(err, methodBulkMarkSold)
		}
		return fromBulk(result), nil
	})
}

// ListReconciliationCases возвращает открытые кейсы сверки.
func (s *ReturnsService) ListReconciliationCases(_ context.Context, req *ListReconciliationCasesRequest) (*ListReconciliationCasesResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit == 0 {
		limit = defaultReconciliationLimit
	}
	cases, err := s.saga.ListReconciliation(limit)
	if err != nil {
		return nil, s.toStatus(err, methodListReconciliationCases)
	}

	resp := &ListReconciliationCasesResponse{Cases: make([]ReconciliationCase, 0, len(cases))}
	for _, c := range cases {
		resp.Cases = append(resp.Cases, fromReconciliationCase(c))
	}
	return resp, nil
}

// ResolveReconciliationCase закрывает кейс после ручной сверки.
func (s *ReturnsService) ResolveReconciliationCase(ctx context.Context, req *ResolveReconciliationCaseRequest) (*ResolveReconciliationCaseResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	return withIdempotency(s, ctx, methodResolveReconciliationCase, req, func(context.Context) (*ResolveReconciliationCaseResponse, error) {
		caseID := strings.TrimSpace(req.CaseID)
		if err := s.saga.ResolveReconciliation(caseID, req.Note); err != nil {
			return nil, s.toStatus(err, methodResolveReconciliationCase)
		}
		return &ResolveReconciliationCaseResponse{CaseID: caseID, Resolved: true}, nil
	})
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check: структурная валидация запроса по тегам validate.
func (s *ReturnsService) check(req interface{}) error {
	if isNilRequest(req) {
		return status.Error(codes.InvalidArgument, "request is required")
	}
	if err := s.validate.Struct(req); err != nil {
		return status.Error(codes.InvalidArgument, describeValidation(err))
	}
	return nil
}
