package domain

import (
	"context"
	"time"
)

// OrderService: удалённый сервис заказов.
type OrderService interface {
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	Get(ctx context.Context, id string) (Order, error)
	Create(ctx context.Context, input CreateOrderInput) (Order, error)
	Complete(ctx context.Context, id string) (Order, error)
	Cancel(ctx context.Context, id, reason string) (Order, error)
}

// ReturnService: удалённый жизненный цикл ReturnRequest.
type ReturnService interface {
	Create(ctx context.Context, input CreateReturnInput) (ReturnRequest, error)
	Get(ctx context.Context, id string) (ReturnRequest, error)
	// ListByOrder используется при resume, чтобы найти уже созданный возврат.
	ListByOrder(ctx context.Context, orderID string) ([]ReturnRequest, error)
	Update(ctx context.Context, id string, input QualityCheckInput) (ReturnRequest, error)
	Approve(ctx context.Context, id, internalNotes string) (ReturnRequest, error)
	Process(ctx context.Context, id string, restoreInventory bool) (ReturnRequest, error)
	Complete(ctx context.Context, id string) (ReturnRequest, error)
}

// RefundService: удалённый жизненный цикл RefundRequest.
type RefundService interface {
	Create(ctx context.Context, input CreateRefundInput) (RefundRequest, error)
	Get(ctx context.Context, id string) (RefundRequest, error)
	ListByReturn(ctx context.Context, returnID string) ([]RefundRequest, error)
	Process(ctx context.Context, id, reference string) (RefundRequest, error)
	Complete(ctx context.Context, id, transactionReference string) (RefundRequest, error)
}

// DefectService: переходы дефектных позиций.
type DefectService interface {
	MarkSold(ctx context.Context, id string) error
	ReturnToVendor(ctx context.Context, id, vendorID, vendorNotes string) error
	Dispose(ctx context.Context, id, disposalNotes string) error
}

// SagaLocker не даёт запустить вторую сагу по тому же заказу.
type SagaLocker interface {
	// Acquire возвращает ErrSagaInProgress, если ключ уже занят.
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// SagaJournal хранит записи саг в памяти процесса.
type SagaJournal interface {
	Save(record SagaRecord) error
	Get(id string) (SagaRecord, error)
	List(orderID string) ([]SagaRecord, error)
}

// ReconciliationRepository хранит кейсы ручной сверки.
type ReconciliationRepository interface {
	Create(c ReconciliationCase) (ReconciliationCase, error)
	Get(id string) (ReconciliationCase, error)
	ListOpen(limit int) ([]ReconciliationCase, error)
	Resolve(id, note string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла саги.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(sagaID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	// CreatedAt проставляет хранилище при Enqueue
	CreatedAt time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
