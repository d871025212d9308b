package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/retailops/internal/metrics"
	"github.com/vladislavdragonenkov/retailops/internal/service/snapshot"
	"github.com/vladislavdragonenkov/retailops/internal/settlement"
	"github.com/vladislavdragonenkov/retailops/internal/tracing"
)

const (
	aggregateSaga    = "saga"
	aggregateDefects = "defects"
	lockKeyPrefix    = "retailops:saga:order:"
)

// EventPublisher публикует события саги (Kafka producer). Опционален.
type EventPublisher interface {
	PublishEvent(topic, key string, event interface{}) error
}

// Dependencies: удалённые сервисы и хранилища оркестратора.
type Dependencies struct {
	Orders         domain.OrderService
	Returns        domain.ReturnService
	Refunds        domain.RefundService
	Defects        domain.DefectService
	Locker         domain.SagaLocker
	Journal        domain.SagaJournal
	Reconciliation domain.ReconciliationRepository
	// Timeline и Outbox опциональны
	Timeline domain.TimelineRepository
	Outbox   domain.OutboxRepository
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithPublisher подключает публикацию событий в Kafka.
func WithPublisher(p EventPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithMetrics подключает метрики саг.
func WithMetrics(m *metrics.SagaMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock подменяет источник времени (тесты).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator подменяет генератор id саг и кейсов сверки.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) {
		if newID != nil {
			o.newID = newID
		}
	}
}

// Orchestrator ведёт сагу возврата/обмена: return → refund → exchange order.
// Каждый шаг ждёт завершения предыдущего; автоматических повторов и компенсаций нет.
type Orchestrator struct {
	deps Dependencies

	loader   *snapshot.Loader
	returns  *ReturnDriver
	refunds  *RefundDriver
	exchange *ExchangeCreator
	bulk     *BulkCoordinator

	publisher EventPublisher
	metrics   *metrics.SagaMetrics
	logger    *log.Entry
	now       func() time.Time
	newID     func() string
}

// NewOrchestrator создаёт оркестратор.
func NewOrchestrator(deps Dependencies, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("saga: order service is required")
	case deps.Returns == nil:
		return nil, errors.New("saga: return service is required")
	case deps.Refunds == nil:
		return nil, errors.New("saga: refund service is required")
	case deps.Defects == nil:
		return nil, errors.New("saga: defect service is required")
	case deps.Locker == nil:
		return nil, errors.New("saga: locker is required")
	case deps.Journal == nil:
		return nil, errors.New("saga: journal is required")
	case deps.Reconciliation == nil:
		return nil, errors.New("saga: reconciliation repository is required")
	}

	o := &Orchestrator{
		deps:   deps,
		logger: log.New().WithField("component", "saga"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.loader = snapshot.NewLoader(deps.Orders, o.logger.WithField("component", "snapshot-loader"))
	o.returns = NewReturnDriver(deps.Returns, o.logger.WithField("component", "return-driver"))
	o.refunds = NewRefundDriver(deps.Refunds, o.logger.WithField("component", "refund-driver"))
	o.exchange = NewExchangeCreator(deps.Orders, o.logger.WithField("component", "exchange-creator"))
	o.bulk = NewBulkCoordinator(deps.Defects, o.metrics, o.logger.WithField("component", "bulk-defects"))
	return o, nil
}

// plan: всё, что сага фиксирует до первого удалённого вызова.
type plan struct {
	order      domain.Order
	input      domain.SagaInput
	settlement Settlement
}

// Preview считает расчёт без записи: валидация, дельта и тендер.
func (o *Orchestrator) Preview(ctx context.Context, req SubmitRequest) (Settlement, error) {
	if err := req.validateLocal(); err != nil {
		return Settlement{}, err
	}
	order, err := o.loadOrder(ctx, req.OrderID)
	if err != nil {
		return Settlement{}, err
	}
	p, err := o.plan(order, req)
	if err != nil {
		return Settlement{}, err
	}
	return p.settlement, nil
}

// Submit запускает сагу и ждёт её завершения или остановки на шаге.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (Result, error) {
	if err := req.validateLocal(); err != nil {
		return Result{}, err
	}

	release, err := o.deps.Locker.Acquire(ctx, lockKey(req.OrderID))
	if err != nil {
		return Result{}, err
	}
	defer o.release(release, req.OrderID)

	order, err := o.loadOrder(ctx, req.OrderID)
	if err != nil {
		return Result{}, err
	}
	p, err := o.plan(order, req)
	if err != nil {
		return Result{}, err
	}

	now := o.now().UTC()
	rec := domain.SagaRecord{
		ID:              o.newID(),
		Kind:            p.settlement.Kind,
		OrderID:         order.ID,
		StoreID:         order.StoreID,
		Status:          domain.SagaStatusRunning,
		Stage:           domain.SagaStagePending,
		IdempotencyKeys: make(map[domain.SagaStage]string),
		Input:           p.input,
		Settlement:      p.settlement.snapshot(),
		StartedAt:       now,
		UpdatedAt:       now,
	}
	if p.settlement.needsRefund() {
		rec.RefundReference = domain.RefundReference(rec.Kind, now)
	}
	if err := o.save(&rec); err != nil {
		return Result{}, err
	}

	if o.metrics != nil {
		o.metrics.RecordSagaStarted(string(rec.Kind))
	}
	o.emit(&rec, kafka.EventTypeSagaStarted, "", map[string]interface{}{
		"difference":    settlement.Round2(p.settlement.Delta.Difference),
		"refund_amount": settlement.Round2(p.settlement.RefundAmount),
		"outcome":       string(p.settlement.Outcome),
	})
	o.logger.WithFields(log.Fields{
		"saga_id":  rec.ID,
		"order_id": rec.OrderID,
		"kind":     rec.Kind,
		"outcome":  p.settlement.Outcome,
	}).Info("Saga started")

	return o.execute(ctx, &rec, order, p.settlement, false)
}

// Resume продолжает остановленную сагу: сначала перечитывает удалённое состояние,
// затем выдаёт следующий переход вместо повторного create.
func (o *Orchestrator) Resume(ctx context.Context, sagaID string) (Result, error) {
	rec, err := o.resumable(sagaID)
	if err != nil {
		return Result{}, err
	}

	release, err := o.deps.Locker.Acquire(ctx, lockKey(rec.OrderID))
	if err != nil {
		return Result{}, err
	}
	defer o.release(release, rec.OrderID)

	// Запись перечитывается под блокировкой: её мог продолжить другой оператор.
	rec, err = o.resumable(sagaID)
	if err != nil {
		return Result{}, err
	}

	order := domain.Order{ID: rec.OrderID, StoreID: rec.StoreID}
	if rec.Kind == domain.SagaKindExchange && rec.ExchangeOrderID == "" {
		if order, err = o.loadOrder(ctx, rec.OrderID); err != nil {
			return Result{}, err
		}
	}

	s := settlementFromRecord(rec)
	previous := rec.FailedStage
	rec.Status = domain.SagaStatusRunning
	rec.LastError = ""
	if err := o.save(&rec); err != nil {
		return Result{}, err
	}

	if o.metrics != nil {
		o.metrics.RecordSagaResumed()
	}
	o.emit(&rec, kafka.EventTypeSagaResumed, string(previous), map[string]interface{}{
		"failed_stage": string(previous),
	})
	o.logger.WithFields(log.Fields{
		"saga_id":      rec.ID,
		"order_id":     rec.OrderID,
		"failed_stage": previous,
	}).Info("Saga resumed")

	return o.execute(ctx, &rec, order, s, true)
}

// Get возвращает запись саги.
func (o *Orchestrator) Get(sagaID string) (domain.SagaRecord, error) {
	return o.deps.Journal.Get(sagaID)
}

// List возвращает саги по заказу.
func (o *Orchestrator) List(orderID string) ([]domain.SagaRecord, error) {
	return o.deps.Journal.List(orderID)
}

// Timeline возвращает события саги.
func (o *Orchestrator) Timeline(sagaID string) ([]domain.TimelineEvent, error) {
	if o.deps.Timeline == nil {
		return nil, nil
	}
	return o.deps.Timeline.List(sagaID)
}

// FindOrders ищет заказы для оформления возврата. С expand строки списка без позиций
// догружаются по одной, чтобы оператор видел партии и штрихкоды.
func (o *Orchestrator) FindOrders(ctx context.Context, filter domain.OrderFilter, expand bool) ([]domain.Order, error) {
	snaps, err := o.loader.Search(ctx, filter)
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(snaps))
	for _, snap := range snaps {
		if !expand {
			orders = append(orders, snap.Order())
			continue
		}
		order, err := snap.Expand(ctx)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// ListReconciliation возвращает открытые кейсы сверки.
func (o *Orchestrator) ListReconciliation(limit int) ([]domain.ReconciliationCase, error) {
	return o.deps.Reconciliation.ListOpen(limit)
}

// ResolveReconciliation закрывает кейс сверки вручную.
func (o *Orchestrator) ResolveReconciliation(id, note string) error {
	if err := o.deps.Reconciliation.Resolve(id, note); err != nil {
		return err
	}
	o.logger.WithField("case_id", id).Info("Reconciliation case resolved by operator")
	return nil
}

// BulkReturnToVendor отправляет дефектные позиции поставщику по одной.
func (o *Orchestrator) BulkReturnToVendor(ctx context.Context, ids []string, vendorID, notes string) (BulkResult, error) {
	result, err := o.bulk.ReturnToVendor(ctx, ids, vendorID, notes)
	if err != nil {
		return result, err
	}
	o.emitBulk(result, map[string]interface{}{"vendor_id": vendorID})
	return result, nil
}

// BulkDispose списывает дефектные позиции.
func (o *Orchestrator) BulkDispose(ctx context.Context, ids []string, notes string) (BulkResult, error) {
	result, err := o.bulk.Dispose(ctx, ids, notes)
	if err != nil {
		return result, err
	}
	o.emitBulk(result, nil)
	return result, nil
}

// BulkMarkSold помечает дефектные позиции проданными.
func (o *Orchestrator) BulkMarkSold(ctx context.Context, ids []string) (BulkResult, error) {
	result, err := o.bulk.MarkSold(ctx, ids)
	if err != nil {
		return result, err
	}
	o.emitBulk(result, nil)
	return result, nil
}

func (o *Orchestrator) resumable(sagaID string) (domain.SagaRecord, error) {
	rec, err := o.deps.Journal.Get(sagaID)
	if err != nil {
		return domain.SagaRecord{}, err
	}
	if !rec.Status.Resumable() {
		return domain.SagaRecord{}, fmt.Errorf("%w: saga %s is %s", domain.ErrSagaNotResumable, rec.ID, rec.Status)
	}
	if rec.IdempotencyKeys == nil {
		rec.IdempotencyKeys = make(map[domain.SagaStage]string)
	}
	return rec, nil
}

func (o *Orchestrator) loadOrder(ctx context.Context, orderID string) (domain.Order, error) {
	snap, err := o.loader.Load(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return snap.Order(), nil
}

func (o *Orchestrator) plan(order domain.Order, req SubmitRequest) (plan, error) {
	selection, err := domain.SelectionFromItems(order, req.Items)
	if err != nil {
		return plan{}, err
	}

	kind := req.Kind()
	if kind == domain.SagaKindExchange && order.StoreID == "" {
		return plan{}, domain.NewValidationError([]error{domain.ErrStoreRequired})
	}

	vatRate := settlement.InferVATRate(order)
	if req.VATPercent != nil {
		vatRate = settlement.VATRateFromPercent(*req.VATPercent)
	}

	items := selection.Items()
	delta := settlement.ComputeDelta(order, items, req.Replacements, vatRate)
	input := domain.SagaInput{
		Items:        items,
		Replacements: req.Replacements,
		Reason:       req.Reason,
		Type:         req.Type,
		Notes:        req.Notes,
		Tender:       req.Tender,
		VATRate:      vatRate,
	}.Clone()

	return plan{
		order:      order,
		input:      input,
		settlement: newSettlement(kind, delta, req.Tender, req.Replacements),
	}, nil
}

func (o *Orchestrator) execute(ctx context.Context, rec *domain.SagaRecord, order domain.Order, s Settlement, resuming bool) (Result, error) {
	started := o.now()
	defer func() {
		if o.metrics != nil {
			o.metrics.RecordSagaFinished(o.now().Sub(started))
		}
	}()

	ctx, span := tracing.StartSpan(ctx, "saga."+string(rec.Kind))
	span.SetAttributes(
		attribute.String("saga.id", rec.ID),
		attribute.String("saga.order_id", rec.OrderID),
		attribute.Bool("saga.resuming", resuming),
	)

	err := o.run(ctx, rec, order, s, resuming)
	tracing.EndSpan(span, err)
	if err != nil {
		return o.fail(rec, s, err)
	}
	return o.complete(rec, s)
}

func (o *Orchestrator) run(ctx context.Context, rec *domain.SagaRecord, order domain.Order, s Settlement, resuming bool) error {
	completedReturn, err := o.driveReturn(ctx, rec, resuming)
	if err != nil {
		return err
	}
	if !s.needsRefund() {
		return nil
	}

	completedRefund, err := o.driveRefund(ctx, rec, completedReturn, s, resuming)
	if err != nil {
		return err
	}
	if rec.Kind != domain.SagaKindExchange {
		return nil
	}

	_, err = o.driveExchange(ctx, rec, order, completedRefund, s, resuming)
	return err
}

// runStage выполняет один удалённый переход: ключ идемпотентности, span, метрика, журнал.
func runStage[T any](ctx context.Context, o *Orchestrator, rec *domain.SagaRecord, stage domain.SagaStage, fn func(context.Context) (T, error)) (T, error) {
	key := domain.StageIdempotencyKey(rec.ID, stage)
	rec.IdempotencyKeys[stage] = key

	stageCtx, span := tracing.StartSpan(domain.WithIdempotencyKey(ctx, key), "saga.stage."+string(stage))
	started := o.now()
	out, err := fn(stageCtx)
	tracing.EndSpan(span, err)
	if o.metrics != nil {
		o.metrics.RecordStepDuration(string(stage), o.now().Sub(started))
	}

	if err != nil {
		if _, ok := AsStageError(err); !ok {
			err = newStageError(stage, err)
		}
		return out, err
	}
	o.advance(rec, stage)
	return out, nil
}

// advance фиксирует достигнутый шаг в журнале и timeline.
func (o *Orchestrator) advance(rec *domain.SagaRecord, stage domain.SagaStage) {
	rec.Stage = stage
	if err := o.save(rec); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"saga_id": rec.ID,
			"stage":   stage,
		}).Error("Failed to journal saga stage")
	}
	o.emit(rec, kafka.EventTypeSagaStepCompleted, string(stage), map[string]interface{}{
		"return_id":         rec.ReturnID,
		"refund_id":         rec.RefundID,
		"exchange_order_id": rec.ExchangeOrderID,
	})
}

// catchUp переносит в журнал шаг, который backend уже прошёл.
func (o *Orchestrator) catchUp(rec *domain.SagaRecord, stage domain.SagaStage) {
	if stageIndex(rec.Stage) < stageIndex(stage) {
		o.advance(rec, stage)
	}
}

func (o *Orchestrator) driveReturn(ctx context.Context, rec *domain.SagaRecord, resuming bool) (CompletedReturn, error) {
	if rec.ReturnID == "" && resuming {
		existing, found, err := o.findReturn(ctx, rec)
		if err != nil {
			return CompletedReturn{}, newStageError(domain.SagaStageReturnCreated, err)
		}
		if found {
			rec.ReturnID = existing.ID
			return o.resumeReturn(ctx, rec, existing)
		}
	}

	if rec.ReturnID == "" {
		created, err := runStage(ctx, o, rec, domain.SagaStageReturnCreated, func(ctx context.Context) (CreatedReturn, error) {
			created, err := o.returns.Create(ctx, ReturnInput{
				OrderID:   rec.OrderID,
				Items:     rec.Input.Items,
				Reason:    rec.Input.Reason,
				Type:      rec.Input.Type,
				Notes:     rec.Input.Notes,
				Reference: rec.ID,
			})
			if err == nil {
				rec.ReturnID = created.req.ID
			}
			return created, err
		})
		if err != nil {
			return CompletedReturn{}, err
		}
		return o.fromCreatedReturn(ctx, rec, created)
	}

	current, err := o.deps.Returns.Get(ctx, rec.ReturnID)
	if err != nil {
		return CompletedReturn{}, newStageError(nextStage(rec.Stage), err)
	}
	return o.resumeReturn(ctx, rec, current)
}

// findReturn ищет возврат, созданный этой сагой, но не попавший в журнал.
func (o *Orchestrator) findReturn(ctx context.Context, rec *domain.SagaRecord) (domain.ReturnRequest, bool, error) {
	list, err := o.deps.Returns.ListByOrder(ctx, rec.OrderID)
	if err != nil {
		return domain.ReturnRequest{}, false, err
	}
	for _, r := range list {
		if r.Reference == rec.ID && r.Status.Open() {
			return r, true, nil
		}
	}
	return domain.ReturnRequest{}, false, nil
}

func (o *Orchestrator) resumeReturn(ctx context.Context, rec *domain.SagaRecord, req domain.ReturnRequest) (CompletedReturn, error) {
	switch req.Status {
	case domain.ReturnStatusCreated:
		o.catchUp(rec, domain.SagaStageReturnCreated)
		return o.fromCreatedReturn(ctx, rec, CreatedReturn{req: req})
	case domain.ReturnStatusQualityChecked:
		o.catchUp(rec, domain.SagaStageReturnInspected)
		return o.fromInspectedReturn(ctx, rec, InspectedReturn{req: req})
	case domain.ReturnStatusApproved:
		o.catchUp(rec, domain.SagaStageReturnApproved)
		return o.fromApprovedReturn(ctx, rec, ApprovedReturn{req: req})
	case domain.ReturnStatusProcessed:
		o.catchUp(rec, domain.SagaStageReturnProcessed)
		return o.fromProcessedReturn(ctx, rec, ProcessedReturn{req: req})
	case domain.ReturnStatusCompleted:
		o.catchUp(rec, domain.SagaStageReturnCompleted)
		return CompletedReturn{req: req}, nil
	default:
		return CompletedReturn{}, newStageError(nextStage(rec.Stage), ensureReturnOpen(req))
	}
}

func (o *Orchestrator) fromCreatedReturn(ctx context.Context, rec *domain.SagaRecord, r CreatedReturn) (CompletedReturn, error) {
	inspected, err := runStage(ctx, o, rec, domain.SagaStageReturnInspected, func(ctx context.Context) (InspectedReturn, error) {
		return o.returns.Inspect(ctx, r)
	})
	if err != nil {
		return CompletedReturn{}, err
	}
	return o.fromInspectedReturn(ctx, rec, inspected)
}

func (o *Orchestrator) fromInspectedReturn(ctx context.Context, rec *domain.SagaRecord, r InspectedReturn) (CompletedReturn, error) {
	approved, err := runStage(ctx, o, rec, domain.SagaStageReturnApproved, func(ctx context.Context) (ApprovedReturn, error) {
		return o.returns.Approve(ctx, r)
	})
	if err != nil {
		return CompletedReturn{}, err
	}
	return o.fromApprovedReturn(ctx, rec, approved)
}

func (o *Orchestrator) fromApprovedReturn(ctx context.Context, rec *domain.SagaRecord, r ApprovedReturn) (CompletedReturn, error) {
	processed, err := runStage(ctx, o, rec, domain.SagaStageReturnProcessed, func(ctx context.Context) (ProcessedReturn, error) {
		return o.returns.Process(ctx, r)
	})
	if err != nil {
		return CompletedReturn{}, err
	}
	return o.fromProcessedReturn(ctx, rec, processed)
}

func (o *Orchestrator) fromProcessedReturn(ctx context.Context, rec *domain.SagaRecord, r ProcessedReturn) (CompletedReturn, error) {
	return runStage(ctx, o, rec, domain.SagaStageReturnCompleted, func(ctx context.Context) (CompletedReturn, error) {
		return o.returns.Complete(ctx, r)
	})
}

func (o *Orchestrator) driveRefund(ctx context.Context, rec *domain.SagaRecord, ret CompletedReturn, s Settlement, resuming bool) (CompletedRefund, error) {
	if rec.RefundID == "" && resuming {
		list, err := o.deps.Refunds.ListByReturn(ctx, ret.req.ID)
		if err != nil {
			return CompletedRefund{}, newStageError(domain.SagaStageRefundCreated, err)
		}
		for _, r := range list {
			if r.Reference == rec.RefundReference && r.Status.Open() {
				rec.RefundID = r.ID
				return o.resumeRefund(ctx, rec, r)
			}
		}
	}

	if rec.RefundID == "" {
		created, err := runStage(ctx, o, rec, domain.SagaStageRefundCreated, func(ctx context.Context) (CreatedRefund, error) {
			created, err := o.refunds.Create(ctx, ret, RefundInput{
				Amount:    s.RefundAmount,
				Tender:    rec.Input.Tender,
				Reference: rec.RefundReference,
				Notes:     fmt.Sprintf("%s saga %s", rec.Kind, rec.ID),
			})
			if err == nil {
				rec.RefundID = created.refund.ID
			}
			return created, err
		})
		if err != nil {
			return CompletedRefund{}, err
		}
		return o.fromCreatedRefund(ctx, rec, created)
	}

	current, err := o.deps.Refunds.Get(ctx, rec.RefundID)
	if err != nil {
		return CompletedRefund{}, newStageError(nextStage(rec.Stage), err)
	}
	return o.resumeRefund(ctx, rec, current)
}

func (o *Orchestrator) resumeRefund(ctx context.Context, rec *domain.SagaRecord, refund domain.RefundRequest) (CompletedRefund, error) {
	switch refund.Status {
	case domain.RefundStatusCreated:
		o.catchUp(rec, domain.SagaStageRefundCreated)
		return o.fromCreatedRefund(ctx, rec, CreatedRefund{refund: refund, reference: rec.RefundReference})
	case domain.RefundStatusProcessing:
		o.catchUp(rec, domain.SagaStageRefundProcessing)
		return o.fromProcessingRefund(ctx, rec, ProcessingRefund{refund: refund, reference: rec.RefundReference})
	case domain.RefundStatusCompleted:
		o.catchUp(rec, domain.SagaStageRefundCompleted)
		return CompletedRefund{refund: refund}, nil
	default:
		return CompletedRefund{}, newStageError(nextStage(rec.Stage),
			fmt.Errorf("%w: refund %s is %s", ErrRemoteClosed, refund.ID, refund.Status))
	}
}

func (o *Orchestrator) fromCreatedRefund(ctx context.Context, rec *domain.SagaRecord, r CreatedRefund) (CompletedRefund, error) {
	processing, err := runStage(ctx, o, rec, domain.SagaStageRefundProcessing, func(ctx context.Context) (ProcessingRefund, error) {
		return o.refunds.Process(ctx, r)
	})
	if err != nil {
		return CompletedRefund{}, err
	}
	return o.fromProcessingRefund(ctx, rec, processing)
}

func (o *Orchestrator) fromProcessingRefund(ctx context.Context, rec *domain.SagaRecord, r ProcessingRefund) (CompletedRefund, error) {
	return runStage(ctx, o, rec, domain.SagaStageRefundCompleted, func(ctx context.Context) (CompletedRefund, error) {
		return o.refunds.Complete(ctx, r)
	})
}

func (o *Orchestrator) driveExchange(ctx context.Context, rec *domain.SagaRecord, order domain.Order, refund CompletedRefund, s Settlement, resuming bool) (CompletedExchange, error) {
	if rec.ExchangeOrderID == "" && resuming {
		orders, err := o.deps.Orders.List(ctx, domain.OrderFilter{StoreID: rec.StoreID, Reference: rec.ID})
		if err != nil {
			return CompletedExchange{}, newStageError(domain.SagaStageExchangeCreated, err)
		}
		for _, existing := range orders {
			if existing.Reference == rec.ID {
				rec.ExchangeOrderID = existing.ID
				return o.resumeExchange(ctx, rec, existing)
			}
		}
	}

	if rec.ExchangeOrderID == "" {
		created, err := runStage(ctx, o, rec, domain.SagaStageExchangeCreated, func(ctx context.Context) (CreatedExchange, error) {
			created, err := o.exchange.Create(ctx, refund, ExchangeInput{
				StoreID:       order.StoreID,
				CustomerID:    order.CustomerID,
				OriginalOrder: order.ID,
				Lines:         rec.Input.Replacements,
				Difference:    s.Delta.Difference,
				Reference:     rec.ID,
			})
			if err == nil {
				rec.ExchangeOrderID = created.order.ID
			}
			return created, err
		})
		if err != nil {
			return CompletedExchange{}, err
		}
		return o.fromCreatedExchange(ctx, rec, created)
	}

	current, err := o.deps.Orders.Get(ctx, rec.ExchangeOrderID)
	if err != nil {
		return CompletedExchange{}, newStageError(nextStage(rec.Stage), err)
	}
	return o.resumeExchange(ctx, rec, current)
}

func (o *Orchestrator) resumeExchange(ctx context.Context, rec *domain.SagaRecord, order domain.Order) (CompletedExchange, error) {
	switch order.Status {
	case domain.OrderStatusCompleted:
		o.catchUp(rec, domain.SagaStageExchangeCompleted)
		return CompletedExchange{order: order}, nil
	case domain.OrderStatusCancelled:
		return CompletedExchange{}, newStageError(nextStage(rec.Stage),
			fmt.Errorf("%w: exchange order %s is %s", ErrRemoteClosed, order.ID, order.Status))
	default:
		o.catchUp(rec, domain.SagaStageExchangeCreated)
		return o.fromCreatedExchange(ctx, rec, CreatedExchange{order: order})
	}
}

func (o *Orchestrator) fromCreatedExchange(ctx context.Context, rec *domain.SagaRecord, e CreatedExchange) (CompletedExchange, error) {
	return runStage(ctx, o, rec, domain.SagaStageExchangeCompleted, func(ctx context.Context) (CompletedExchange, error) {
		return o.exchange.Complete(ctx, e)
	})
}

// fail останавливает сагу на упавшем шаге. Компенсаций нет: после approve
// сага уходит в needs_reconciliation и открывает кейс сверки.
func (o *Orchestrator) fail(rec *domain.SagaRecord, s Settlement, err error) (Result, error) {
	stageErr, ok := AsStageError(err)
	if !ok {
		stageErr = newStageError(nextStage(rec.Stage), err)
	}

	rec.FailedStage = stageErr.Stage
	rec.LastError = stageErr.Message()

	fields := log.Fields{
		"saga_id":   rec.ID,
		"order_id":  rec.OrderID,
		"stage":     stageErr.Stage,
		"return_id": rec.ReturnID,
		"refund_id": rec.RefundID,
	}

	if requiresReconciliation(stageErr.Stage) {
		rec.Status = domain.SagaStatusNeedsReconciliation
		o.openReconciliation(rec, stageErr)
		if o.metrics != nil {
			o.metrics.RecordReconciliation()
		}
		o.emit(rec, kafka.EventTypeSagaReconciliation, rec.LastError, map[string]interface{}{
			"failed_stage":      string(stageErr.Stage),
			"reconciliation_id": rec.ReconciliationID,
		})
		o.logger.WithError(stageErr.Err).WithFields(fields).Error("Saga halted, manual reconciliation required")
	} else {
		rec.Status = domain.SagaStatusFailed
		o.emit(rec, kafka.EventTypeSagaFailed, rec.LastError, map[string]interface{}{
			"failed_stage": string(stageErr.Stage),
		})
		o.logger.WithError(stageErr.Err).WithFields(fields).Warn("Saga failed")
	}

	if o.metrics != nil {
		o.metrics.RecordSagaFailed(string(rec.Kind), string(stageErr.Stage))
	}
	if saveErr := o.save(rec); saveErr != nil {
		o.logger.WithError(saveErr).WithField("saga_id", rec.ID).Error("Failed to journal saga failure")
	}
	return o.result(rec, s), stageErr
}

func (o *Orchestrator) openReconciliation(rec *domain.SagaRecord, stageErr *StageError) {
	if rec.ReconciliationID != "" {
		if existing, err := o.deps.Reconciliation.Get(rec.ReconciliationID); err == nil && !existing.Resolved {
			return
		}
	}

	c, err := o.deps.Reconciliation.Create(domain.ReconciliationCase{
		ID:        o.newID(),
		SagaID:    rec.ID,
		OrderID:   rec.OrderID,
		ReturnID:  rec.ReturnID,
		RefundID:  rec.RefundID,
		Stage:     stageErr.Stage,
		Reason:    stageErr.Error(),
		Amount:    settlement.Round2(rec.Settlement.RefundAmount),
		CreatedAt: o.now().UTC(),
	})
	if err != nil {
		o.logger.WithError(err).WithField("saga_id", rec.ID).Error("Failed to store reconciliation case")
		return
	}
	rec.ReconciliationID = c.ID
}

func (o *Orchestrator) complete(rec *domain.SagaRecord, s Settlement) (Result, error) {
	rec.Status = domain.SagaStatusCompleted
	rec.FailedStage = ""
	rec.LastError = ""

	if rec.ReconciliationID != "" {
		if err := o.deps.Reconciliation.Resolve(rec.ReconciliationID, "saga completed on resume"); err != nil &&
			!errors.Is(err, domain.ErrReconciliationNotFound) {
			o.logger.WithError(err).WithField("saga_id", rec.ID).Warn("Failed to resolve reconciliation case")
		}
	}
	if err := o.save(rec); err != nil {
		o.logger.WithError(err).WithField("saga_id", rec.ID).Error("Failed to journal saga completion")
	}

	if o.metrics != nil {
		o.metrics.RecordSagaCompleted(string(rec.Kind))
	}
	o.emit(rec, kafka.EventTypeSagaCompleted, "", map[string]interface{}{
		"return_id":         rec.ReturnID,
		"refund_id":         rec.RefundID,
		"exchange_order_id": rec.ExchangeOrderID,
		"instruction":       s.Instruction,
	})
	o.logger.WithFields(log.Fields{
		"saga_id":           rec.ID,
		"order_id":          rec.OrderID,
		"return_id":         rec.ReturnID,
		"refund_id":         rec.RefundID,
		"exchange_order_id": rec.ExchangeOrderID,
	}).Info("Saga completed")
	return o.result(rec, s), nil
}

func (o *Orchestrator) result(rec *domain.SagaRecord, s Settlement) Result {
	return Result{
		SagaID:           rec.ID,
		Kind:             rec.Kind,
		Status:           rec.Status,
		Stage:            rec.Stage,
		ReturnID:         rec.ReturnID,
		RefundID:         rec.RefundID,
		ExchangeOrderID:  rec.ExchangeOrderID,
		ReconciliationID: rec.ReconciliationID,
		Settlement:       s,
	}
}

func (o *Orchestrator) save(rec *domain.SagaRecord) error {
	rec.UpdatedAt = o.now().UTC()
	return o.deps.Journal.Save(rec.Clone())
}

func (o *Orchestrator) release(release func(context.Context) error, orderID string) {
	if err := release(context.Background()); err != nil {
		o.logger.WithError(err).WithField("order_id", orderID).Warn("Failed to release saga lock")
	}
}

// emit пишет событие в outbox и timeline и публикует его в Kafka, если producer подключён.
func (o *Orchestrator) emit(rec *domain.SagaRecord, eventType kafka.EventType, reason string, metadata map[string]interface{}) {
	event := kafka.NewSagaEvent(eventType, rec.ID, rec.OrderID, metadata).WithStage(string(rec.Kind), string(rec.Stage))
	event.Timestamp = o.now().UTC()

	o.enqueue(aggregateSaga, rec.ID, eventType, event)

	if o.deps.Timeline != nil {
		err := o.deps.Timeline.Append(domain.TimelineEvent{
			SagaID:   rec.ID,
			Type:     string(eventType),
			Stage:    rec.Stage,
			Reason:   reason,
			Occurred: event.Timestamp,
		})
		if err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"saga_id": rec.ID,
				"event":   eventType,
			}).Warn("append timeline event failed")
		} else if o.metrics != nil {
			o.metrics.RecordTimelineEvent()
		}
	}

	o.publish(rec.ID, event)
}

func (o *Orchestrator) emitBulk(result BulkResult, metadata map[string]interface{}) {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	metadata["action"] = string(result.Action)
	metadata["success_count"] = result.SuccessCount
	metadata["error_count"] = result.ErrorCount

	id := o.newID()
	event := kafka.NewSagaEvent(kafka.EventTypeDefectsBulkProcessed, id, "", metadata)
	event.Timestamp = o.now().UTC()

	o.enqueue(aggregateDefects, id, kafka.EventTypeDefectsBulkProcessed, event)
	o.publish(id, event)
}

func (o *Orchestrator) enqueue(aggregateType, aggregateID string, eventType kafka.EventType, event *kafka.SagaEvent) {
	if o.deps.Outbox == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		o.logger.WithError(err).WithField("event", eventType).Error("marshal event failed")
		return
	}
	_, err = o.deps.Outbox.Enqueue(domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     string(eventType),
		Payload:       data,
	})
	if err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"aggregate_id": aggregateID,
			"event":        eventType,
		}).Error("enqueue event failed")
		return
	}
	if o.metrics != nil {
		o.metrics.RecordOutboxEvent()
	}
}

func (o *Orchestrator) publish(key string, event *kafka.SagaEvent) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishEvent(kafka.TopicSagaEvents, key, event); err != nil {
		// Kafka опциональна: сага не прерывается
		o.logger.WithError(err).WithFields(log.Fields{
			"event_type": event.EventType,
			"saga_id":    event.SagaID,
		}).Warn("failed to publish saga event to kafka")
	}
}

func settlementFromRecord(rec domain.SagaRecord) Settlement {
	snap := rec.Settlement
	delta := settlement.Delta{
		OriginalAmount: snap.OriginalAmount,
		NewSubtotal:    snap.NewSubtotal,
		VATRate:        snap.VATRate,
		VATAmount:      snap.VATAmount,
		TotalNewAmount: snap.TotalNewAmount,
		Difference:     snap.Difference,
	}
	return newSettlement(rec.Kind, delta, rec.Input.Tender, rec.Input.Replacements)
}

func nextStage(stage domain.SagaStage) domain.SagaStage {
	idx := stageIndex(stage)
	if idx < 0 || idx+1 >= len(stageOrder) {
		return stage
	}
	return stageOrder[idx+1]
}

func lockKey(orderID string) string {
	return lockKeyPrefix + orderID
}
