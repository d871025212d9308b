package kafka

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// EventType определяет тип события
type EventType string

const (
	// Saga события
	EventTypeSagaStarted        EventType = "saga.started"
	EventTypeSagaStepCompleted  EventType = "saga.step_completed"
	EventTypeSagaCompleted      EventType = "saga.completed"
	EventTypeSagaFailed         EventType = "saga.failed"
	EventTypeSagaResumed        EventType = "saga.resumed"
	EventTypeSagaReconciliation EventType = "saga.reconciliation_required"

	// Дефектные позиции
	EventTypeDefectsBulkProcessed EventType = "defects.bulk_processed"
)

// Topics для Kafka
const (
	TopicSagaEvents   = "retailops.saga.events"
	TopicReturnEvents = "retailops.return.events"
	// TopicDeadLetter: outbox-сообщения, не опубликованные после всех попыток
	TopicDeadLetter = "retailops.return.events.dlq"
)

// SchemaVersion растёт при несовместимом изменении SagaEvent.
const SchemaVersion = 1

// SagaEvent представляет событие саги возврата/обмена
type SagaEvent struct {
	EventID   string                 `json:"event_id"`
	EventType EventType              `json:"event_type"`
	Version   int                    `json:"version"`
	SagaID    string                 `json:"saga_id"`
	OrderID   string                 `json:"order_id,omitempty"`
	Kind      string                 `json:"kind,omitempty"`
	Stage     string                 `json:"stage,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewSagaEvent создает новое событие саги с уникальным event_id.
func NewSagaEvent(eventType EventType, sagaID, orderID string, metadata map[string]interface{}) *SagaEvent {
	return &SagaEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Version:   SchemaVersion,
		SagaID:    sagaID,
		OrderID:   orderID,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// WithStage дополняет событие видом саги и шагом.
func (e *SagaEvent) WithStage(kind, stage string) *SagaEvent {
	e.Kind = kind
	e.Stage = stage
	return e
}

// KafkaHeaders: тип, id и версия схемы события.
func (e *SagaEvent) KafkaHeaders() Headers {
	return Headers{
		HeaderEventType:     string(e.EventType),
		HeaderMessageID:     e.EventID,
		HeaderSchemaVersion: strconv.Itoa(e.Version),
	}
}
