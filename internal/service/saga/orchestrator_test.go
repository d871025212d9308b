package saga

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/lock"
	"github.com/vladislavdragonenkov/retailops/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/retailops/internal/metrics"
	"github.com/vladislavdragonenkov/retailops/internal/storage/memory"
)

var testClock = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	backend   *fakeBackend
	journal   domain.SagaJournal
	recon     domain.ReconciliationRepository
	timeline  domain.TimelineRepository
	outbox    *memory.OutboxRepository
	locker    *lock.LocalLocker
	publisher *spyPublisher
	orch      *Orchestrator
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "saga")
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	fb := newFakeBackend()
	orders, returns, refunds, defects := fb.services()
	h := &harness{
		backend:   fb,
		journal:   memory.NewSagaJournal(),
		recon:     memory.NewReconciliationRepository(),
		timeline:  memory.NewTimelineRepository(),
		outbox:    memory.NewOutboxRepository(),
		locker:    lock.NewLocalLocker(),
		publisher: &spyPublisher{},
	}

	ids := 0
	orch, err := NewOrchestrator(Dependencies{
		Orders:         orders,
		Returns:        returns,
		Refunds:        refunds,
		Defects:        defects,
		Locker:         h.locker,
		Journal:        h.journal,
		Reconciliation: h.recon,
		Timeline:       h.timeline,
		Outbox:         h.outbox,
	},
		WithPublisher(h.publisher),
		WithMetrics(metrics.NewSagaMetricsWithRegisterer(prometheus.NewRegistry())),
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return testClock }),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		}),
	)
	require.NoError(t, err)
	h.orch = orch
	return h
}

func returnRequest() SubmitRequest {
	return SubmitRequest{
		OrderID: "order-1",
		Items:   []domain.SelectedItem{{OrderItemID: "item-1", Quantity: 2}},
		Reason:  domain.ReasonDefectiveProduct,
		Type:    domain.ReturnTypeCustomer,
		Tender:  domain.Tender{Cash: 1000},
	}
}

func exchangeRequest() SubmitRequest {
	req := returnRequest()
	req.Replacements = []domain.ReplacementLine{
		{ProductID: "p-2", BatchID: "b-2", Quantity: 1, UnitPrice: 1340, AvailableStock: 5},
	}
	req.Tender = domain.Tender{Card: 340}
	return req
}

func TestNewOrchestrator_RequiresDependencies(t *testing.T) {
	_, err := NewOrchestrator(Dependencies{})
	require.Error(t, err)
}

func TestOrchestrator_ReturnOnlyFlow(t *testing.T) {
	h := newHarness(t)

	result, err := h.orch.Submit(context.Background(), returnRequest())
	require.NoError(t, err)

	require.Equal(t, "id-1", result.SagaID)
	require.Equal(t, domain.SagaKindReturn, result.Kind)
	require.Equal(t, domain.SagaStatusCompleted, result.Status)
	require.Equal(t, domain.SagaStageRefundCompleted, result.Stage)
	require.Equal(t, "return-1", result.ReturnID)
	require.Equal(t, "refund-2", result.RefundID)
	require.Empty(t, result.ExchangeOrderID)
	require.Equal(t, "Hand 1000.00 to customer", result.Settlement.Instruction)

	require.Equal(t, []string{
		"orders.get",
		"returns.create", "returns.update", "returns.approve", "returns.process", "returns.complete",
		"refunds.create", "refunds.process", "refunds.complete",
	}, h.backend.Calls())

	require.Equal(t, "id-1", h.backend.lastReturn.Reference)
	require.Equal(t, []domain.ReturnItem{{OrderItemID: "item-1", Quantity: 2}}, h.backend.lastReturn.Items)

	refund := h.backend.lastRefund
	require.Equal(t, "return-1", refund.ReturnID)
	require.InDelta(t, 1000, refund.Amount, 0.001)
	require.Equal(t, domain.RefundTypeFull, refund.Type)
	require.Equal(t, map[string]float64{"cash": 1000}, refund.MethodDetails)
	require.Equal(t, domain.RefundReference(domain.SagaKindReturn, testClock), refund.Reference)
	require.Equal(t, refund.Reference+"-COMPLETE", h.backend.refunds["refund-2"].TransactionReference)

	require.Len(t, h.backend.keys, 8)
	require.Equal(t, "id-1:return_created", h.backend.keys[0])
	require.Equal(t, "id-1:refund_completed", h.backend.keys[7])

	rec, err := h.orch.Get("id-1")
	require.NoError(t, err)
	require.Equal(t, domain.SagaStatusCompleted, rec.Status)
	require.Equal(t, "id-1:refund_created", rec.IdempotencyKeys[domain.SagaStageRefundCreated])
	require.Equal(t, 2, rec.Input.Items[0].Quantity)

	events, err := h.orch.Timeline("id-1")
	require.NoError(t, err)
	require.Len(t, events, 10)
	require.Equal(t, string(kafka.EventTypeSagaStarted), events[0].Type)
	require.Equal(t, string(kafka.EventTypeSagaCompleted), events[9].Type)

	pending, err := h.outbox.PullPending(100)
	require.NoError(t, err)
	require.Len(t, pending, 10)
	require.Equal(t, "saga", pending[0].AggregateType)
	require.Equal(t, "id-1", pending[0].AggregateID)

	require.Len(t, h.publisher.events, 10)
	for i := range h.publisher.topics {
		require.Equal(t, kafka.TopicSagaEvents, h.publisher.topics[i])
		require.Equal(t, "id-1", h.publisher.keys[i])
	}
}

func TestOrchestrator_ReturnCarriesSelectedBarcode(t *testing.T) {
	h := newHarness(t)
	req := returnRequest()
	req.Items[0].BarcodeID = "barcode-77"

	_, err := h.orch.Submit(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, h.backend.lastReturn.Items, 1)
	require.Equal(t, "barcode-77", h.backend.lastReturn.Items[0].BarcodeID)
}

func TestOrchestrator_ExchangeCustomerPays(t *testing.T) {
	h := newHarness(t)

	result, err := h.orch.Submit(context.Background(), exchangeRequest())
	require.NoError(t, err)

	require.Equal(t, domain.SagaKindExchange, result.Kind)
	require.Equal(t, domain.SagaStatusCompleted, result.Status)
	require.Equal(t, domain.SagaStageExchangeCompleted, result.Stage)
	require.Equal(t, "exchange-3", result.ExchangeOrderID)

	s := result.Settlement
	require.InDelta(t, 340, s.Delta.Difference, 0.001)
	require.InDelta(t, 1000, s.RefundAmount, 0.001)
	require.InDelta(t, 1340, s.NewOrderTotal, 0.001)
	require.InDelta(t, 0, s.Tender.Due, 0.001)
	require.Equal(t, "Collect 340.00 from customer", s.Instruction)

	require.Equal(t, []string{
		"orders.get",
		"returns.create", "returns.update", "returns.approve", "returns.process", "returns.complete",
		"refunds.create", "refunds.process", "refunds.complete",
		"orders.create", "orders.complete",
	}, h.backend.Calls())

	// возвращается вся стоимость исходных позиций, новый заказ оплачен полностью
	require.InDelta(t, 1000, h.backend.lastRefund.Amount, 0.001)
	require.True(t, strings.HasPrefix(h.backend.lastRefund.Reference, "EXCHANGE-REFUND-"))

	created := h.backend.lastExchange
	require.Equal(t, "store-1", created.StoreID)
	require.Equal(t, "customer-1", created.CustomerID)
	require.Equal(t, "id-1", created.Reference)
	require.Len(t, created.Payments, 1)
	require.Equal(t, "cash", created.Payments[0].Method)
	require.Equal(t, "full", created.Payments[0].PaymentType)
	require.InDelta(t, 1340, created.Payments[0].Amount, 0.001)
	require.Equal(t, "Exchange for order order-1. Net settlement: payment 340.00", created.Notes)
	require.Equal(t, domain.OrderStatusCompleted, h.backend.orders["exchange-3"].Status)
}

func TestOrchestrator_PreviewMakesNoWrites(t *testing.T) {
	h := newHarness(t)

	req := exchangeRequest()
	vat := 10.0
	req.VATPercent = &vat

	s, err := h.orch.Preview(context.Background(), req)
	require.NoError(t, err)

	require.InDelta(t, 134, s.Delta.VATAmount, 0.001)
	require.InDelta(t, 474, s.Delta.Difference, 0.001)
	require.InDelta(t, 134, s.Tender.Due, 0.001)
	require.Equal(t, "Collect 474.00 from customer (134.00 still due)", s.Instruction)

	require.Equal(t, []string{"orders.get"}, h.backend.Calls())
	list, err := h.orch.List("order-1")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestOrchestrator_CreateFailureMarksFailed(t *testing.T) {
	h := newHarness(t)
	h.backend.fail["returns.create"] = remoteErr("create return", 422, "Order is not returnable")

	result, err := h.orch.Submit(context.Background(), returnRequest())
	require.Error(t, err)

	stageErr, ok := AsStageError(err)
	require.True(t, ok)
	require.Equal(t, domain.SagaStageReturnCreated, stageErr.Stage)
	require.Equal(t, "create return failed: Order is not returnable", stageErr.Error())

	require.Equal(t, domain.SagaStatusFailed, result.Status)
	require.Empty(t, result.ReconciliationID)
	require.Equal(t, []string{"orders.get", "returns.create"}, h.backend.Calls())

	rec, err := h.orch.Get(result.SagaID)
	require.NoError(t, err)
	require.Equal(t, domain.SagaStageReturnCreated, rec.FailedStage)
	require.Equal(t, "Order is not returnable", rec.LastError)

	open, err := h.orch.ListReconciliation(10)
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestOrchestrator_ApproveRejectedStopsSaga(t *testing.T) {
	h := newHarness(t)
	h.backend.approveStatus = domain.ReturnStatusRejected

	result, err := h.orch.Submit(context.Background(), returnRequest())
	require.ErrorIs(t, err, ErrRemoteClosed)
	require.Equal(t, domain.SagaStatusFailed, result.Status)
	require.Equal(t, 0, h.backend.countCalls("returns.process"))
}

func TestOrchestrator_ProcessFailureNeedsReconciliation(t *testing.T) {
	h := newHarness(t)
	h.backend.fail["returns.process"] = remoteErr("process return", 409, "Inventory locked")

	result, err := h.orch.Submit(context.Background(), returnRequest())
	require.EqualError(t, err, "process return failed: Inventory locked")

	require.Equal(t, domain.SagaStatusNeedsReconciliation, result.Status)
	require.Equal(t, domain.SagaStageReturnApproved, result.Stage)
	require.NotEmpty(t, result.ReconciliationID)
	require.Equal(t, 0, h.backend.countCalls("refunds.create"))

	open, err := h.orch.ListReconciliation(10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, result.ReconciliationID, open[0].ID)
	require.Equal(t, domain.SagaStageReturnProcessed, open[0].Stage)
	require.Equal(t, "return-1", open[0].ReturnID)
	require.InDelta(t, 1000, open[0].Amount, 0.001)

	events, err := h.orch.Timeline(result.SagaID)
	require.NoError(t, err)
	require.Equal(t, string(kafka.EventTypeSagaReconciliation), events[len(events)-1].Type)
}

func TestOrchestrator_RefundFailureThenResume(t *testing.T) {
	h := newHarness(t)
	h.backend.fail["refunds.create"] = remoteErr("create refund", 503, "")

	result, err := h.orch.Submit(context.Background(), returnRequest())
	require.EqualError(t, err, "create refund failed: request failed")
	require.Equal(t, domain.SagaStatusNeedsReconciliation, result.Status)
	require.Equal(t, domain.SagaStageReturnCompleted, result.Stage)
	caseID := result.ReconciliationID
	require.NotEmpty(t, caseID)

	delete(h.backend.fail, "refunds.create")
	h.backend.resetCalls()

	resumed, err := h.orch.Resume(context.Background(), result.SagaID)
	require.NoError(t, err)
	require.Equal(t, domain.SagaStatusCompleted, resumed.Status)
	require.Equal(t, domain.SagaStageRefundCompleted, resumed.Stage)

	// возврат не создаётся повторно: его состояние перечитывается
	require.Equal(t, []string{
		"returns.get", "refunds.list", "refunds.create", "refunds.process", "refunds.complete",
	}, h.backend.Calls())

	c, err := h.recon.Get(caseID)
	require.NoError(t, err)
	require.True(t, c.Resolved)

	_, err = h.orch.Resume(context.Background(), result.SagaID)
	require.ErrorIs(t, err, domain.ErrSagaNotResumable)
}

func TestOrchestrator_ResumeAdoptsRefundWithLostResponse(t *testing.T) {
	h := newHarness(t)
	h.backend.failAfter["refunds.create"] = remoteErr("create refund", 504, "Gateway timeout")

	result, err := h.orch.Submit(context.Background(), returnRequest())
	require.Error(t, err)
	require.Empty(t, result.RefundID)
	require.Len(t, h.backend.refunds, 1)

	h.backend.resetCalls()
	resumed, err := h.orch.Resume(context.Background(), result.SagaID)
	require.NoError(t, err)
	require.Equal(t, domain.SagaStatusCompleted, resumed.Status)
	require.Equal(t, "refund-2", resumed.RefundID)

	require.Equal(t, []string{"returns.get", "refunds.list", "refunds.process", "refunds.complete"}, h.backend.Calls())
	require.Len(t, h.backend.refunds, 1)
}

func TestOrchestrator_ResumeAdoptsExchangeOrderByReference(t *testing.T) {
	h := newHarness(t)
	h.backend.failAfter["orders.create"] = remoteErr("create order", 502, "")

	result, err := h.orch.Submit(context.Background(), exchangeRequest())
	require.Error(t, err)
	require.Equal(t, domain.SagaStatusNeedsReconciliation, result.Status)
	require.Empty(t, result.ExchangeOrderID)

	h.backend.resetCalls()
	resumed, err := h.orch.Resume(context.Background(), result.SagaID)
	require.NoError(t, err)
	require.Equal(t, "exchange-3", resumed.ExchangeOrderID)
	require.Equal(t, domain.SagaStageExchangeCompleted, resumed.Stage)

	require.Equal(t, []string{
		"orders.get", "returns.get", "refunds.get", "orders.list", "orders.complete",
	}, h.backend.Calls())
	require.Equal(t, 0, h.backend.countCalls("orders.create"))
}

func TestOrchestrator_ResumeErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.Resume(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrSagaNotFound)

	result, err := h.orch.Submit(context.Background(), returnRequest())
	require.NoError(t, err)

	_, err = h.orch.Resume(context.Background(), result.SagaID)
	require.ErrorIs(t, err, domain.ErrSagaNotResumable)
}

func TestOrchestrator_RejectsConcurrentSagaForOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	release, err := h.locker.Acquire(ctx, lockKey("order-1"))
	require.NoError(t, err)

	_, err = h.orch.Submit(ctx, returnRequest())
	require.ErrorIs(t, err, domain.ErrSagaInProgress)
	require.Empty(t, h.backend.Calls())

	require.NoError(t, release(ctx))
	_, err = h.orch.Submit(ctx, returnRequest())
	require.NoError(t, err)
}

func TestOrchestrator_LocalValidationMakesNoCalls(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.Submit(context.Background(), SubmitRequest{OrderID: "order-1", Reason: "broken"})
	require.True(t, domain.IsValidation(err))
	require.ErrorIs(t, err, domain.ErrSelectionEmpty)
	require.ErrorIs(t, err, domain.ErrReasonInvalid)
	require.ErrorIs(t, err, domain.ErrReturnTypeInvalid)
	require.Empty(t, h.backend.Calls())

	req := returnRequest()
	req.Tender.Notes = domain.NoteCounts{3: 1}
	_, err = h.orch.Submit(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrDenominationInvalid)
	require.Empty(t, h.backend.Calls())
}

func TestOrchestrator_SelectionCheckedAgainstOrder(t *testing.T) {
	h := newHarness(t)

	req := returnRequest()
	req.Items[0].Quantity = 3
	_, err := h.orch.Submit(context.Background(), req)
	require.True(t, domain.IsValidation(err))
	require.ErrorIs(t, err, domain.ErrQuantityInvalid)

	require.Equal(t, []string{"orders.get"}, h.backend.Calls())
	list, err := h.orch.List("")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestOrchestrator_PublisherFailureDoesNotStopSaga(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("kafka unavailable")

	result, err := h.orch.Submit(context.Background(), returnRequest())
	require.NoError(t, err)
	require.Equal(t, domain.SagaStatusCompleted, result.Status)
}

func TestOrchestrator_ResolveReconciliationByOperator(t *testing.T) {
	h := newHarness(t)
	h.backend.fail["refunds.complete"] = remoteErr("complete refund", 500, "Ledger offline")

	result, err := h.orch.Submit(context.Background(), returnRequest())
	require.Error(t, err)
	require.Equal(t, domain.SagaStatusNeedsReconciliation, result.Status)

	require.NoError(t, h.orch.ResolveReconciliation(result.ReconciliationID, "refund settled at the till"))
	open, err := h.orch.ListReconciliation(0)
	require.NoError(t, err)
	require.Empty(t, open)

	require.ErrorIs(t, h.orch.ResolveReconciliation("missing", ""), domain.ErrReconciliationNotFound)
}

func TestOrchestrator_BulkReturnToVendor(t *testing.T) {
	h := newHarness(t)
	h.backend.defectErrs["d-2"] = remoteErr("return to vendor", 422, "Already returned")

	result, err := h.orch.BulkReturnToVendor(context.Background(), []string{"d-1", "d-2", "d-3"}, "vendor-1", "batch recall")
	require.NoError(t, err)

	require.Equal(t, 2, result.SuccessCount)
	require.Equal(t, 1, result.ErrorCount)
	require.Equal(t, result.SuccessCount+result.ErrorCount, 3)
	require.Equal(t, "Returned 2 items. 1 failed.", result.Message)
	require.True(t, result.Refresh)
	require.Equal(t, []BulkFailure{{ID: "d-2", Message: "Already returned"}}, result.Failures)

	require.Equal(t, []string{
		"defects.return_to_vendor:d-1", "defects.return_to_vendor:d-2", "defects.return_to_vendor:d-3",
	}, h.backend.Calls())

	pending, err := h.outbox.PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, string(kafka.EventTypeDefectsBulkProcessed), pending[0].EventType)
	require.Equal(t, "defects", pending[0].AggregateType)
}

func TestOrchestrator_BulkAllFailed(t *testing.T) {
	h := newHarness(t)
	h.backend.defectErrs["d-1"] = remoteErr("dispose", 422, "Already disposed")
	h.backend.defectErrs["d-2"] = errors.New("connection reset")

	result, err := h.orch.BulkDispose(context.Background(), []string{"d-1", "d-2"}, "")
	require.NoError(t, err)
	require.Equal(t, 0, result.SuccessCount)
	require.Equal(t, 2, result.ErrorCount)
	require.False(t, result.Refresh)
	require.Equal(t, "All items failed: d-1: Already disposed; d-2: request failed", result.Message)
}

func TestOrchestrator_BulkValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.BulkReturnToVendor(context.Background(), []string{"d-1"}, " ", "")
	require.ErrorIs(t, err, domain.ErrVendorRequired)

	_, err = h.orch.BulkMarkSold(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrDefectsRequired)

	_, err = h.orch.BulkDispose(context.Background(), []string{"d-1", "d-1", "d-2"}, "")
	require.ErrorIs(t, err, domain.ErrDefectIDInvalid)
	require.True(t, domain.IsValidation(err))

	_, err = h.orch.BulkReturnToVendor(context.Background(), []string{"d-1", " "}, "vendor-1", "")
	require.ErrorIs(t, err, domain.ErrDefectIDInvalid)
	require.Empty(t, h.backend.Calls())

	sold, err := h.orch.BulkMarkSold(context.Background(), []string{"d-9"})
	require.NoError(t, err)
	require.Equal(t, "Marked sold 1 item.", sold.Message)
}

func TestOrchestrator_BulkCountsEverySelectedID(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		h := newHarness(t)
		n := 1 + rng.Intn(8)
		ids := make([]string, n)
		failing := 0
		for i := range ids {
			ids[i] = fmt.Sprintf("d-%d", i)
			if rng.Intn(2) == 0 {
				h.backend.defectErrs[ids[i]] = remoteErr("mark sold", 422, "Rejected")
				failing++
			}
		}

		result, err := h.orch.BulkMarkSold(context.Background(), ids)
		require.NoError(t, err)
		require.Equal(t, len(ids), result.SuccessCount+result.ErrorCount, "round %d", round)
		require.Equal(t, failing, result.ErrorCount, "round %d", round)
		require.Len(t, result.Failures, failing)
		require.Equal(t, result.SuccessCount > 0, result.Refresh)
		require.Len(t, h.backend.Calls(), len(ids))
	}
}

func TestOrchestrator_FindOrdersExpandsListRows(t *testing.T) {
	h := newHarness(t)
	h.backend.orders["order-1"] = domain.Order{ID: "order-1", OrderNumber: "ORD-0001", TotalAmount: 1000}

	rows, err := h.orch.FindOrders(context.Background(), domain.OrderFilter{}, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Empty(t, rows[0].Items)
	require.Equal(t, []string{"orders.list"}, h.backend.Calls())

	expanded, err := h.orch.FindOrders(context.Background(), domain.OrderFilter{}, true)
	require.NoError(t, err)
	require.Len(t, expanded, 1)
	require.Len(t, expanded[0].Items, 1)
	require.Equal(t, "b-1", expanded[0].Items[0].BatchID)
	require.Equal(t, []string{"orders.list", "orders.list", "orders.get"}, h.backend.Calls())
}
