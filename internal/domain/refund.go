package domain

import (
	"fmt"
	"strings"
	"time"
)

// RefundStatus: состояние RefundRequest на backend.
type RefundStatus string

const (
	RefundStatusCreated    RefundStatus = "pending"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusFailed     RefundStatus = "failed"
	RefundStatusCancelled  RefundStatus = "cancelled"
)

// Open сообщает, может ли возврат средств ещё продвигаться вперёд.
func (s RefundStatus) Open() bool {
	return s != RefundStatusFailed && s != RefundStatusCancelled
}

const (
	// RefundTypeFull: частичные возвраты не моделируются.
	RefundTypeFull = "full"
	// RefundMethodCash: подсказка метода; фактический микс уходит в details.
	RefundMethodCash = "cash"
)

// RefundRequest: сущность возврата средств, связанная 1:1 с ReturnRequest.
type RefundRequest struct {
	ID                   string
	RefundNumber         string
	ReturnID             string
	OrderID              string
	Amount               float64
	Type                 string
	Method               string
	Status               RefundStatus
	Reference            string
	TransactionReference string
	MethodDetails        map[string]float64
	CreatedAt            time.Time
}

// CreateRefundInput: payload создания возврата средств.
type CreateRefundInput struct {
	ReturnID      string
	OrderID       string
	Amount        float64
	Type          string
	Method        string
	MethodDetails map[string]float64
	Reference     string
	Notes         string
}

// RefundReference формирует клиентскую ссылку "<KIND>-REFUND-<unix-millis>".
func RefundReference(kind SagaKind, at time.Time) string {
	return fmt.Sprintf("%s-REFUND-%d", strings.ToUpper(string(kind)), at.UnixMilli())
}

// TransactionReference формирует ссылку на транзакцию для шагов process/complete.
func TransactionReference(reference, step string) string {
	return fmt.Sprintf("%s-%s", reference, strings.ToUpper(step))
}
