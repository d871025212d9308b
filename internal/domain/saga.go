package domain

import "time"

// SagaKind: вид операции: чистый возврат или обмен.
type SagaKind string

const (
	SagaKindReturn   SagaKind = "return"
	SagaKindExchange SagaKind = "exchange"
)

// SagaStage: последний успешно достигнутый шаг саги.
type SagaStage string

const (
	SagaStagePending           SagaStage = "pending"
	SagaStageReturnCreated     SagaStage = "return_created"
	SagaStageReturnInspected   SagaStage = "return_inspected"
	SagaStageReturnApproved    SagaStage = "return_approved"
	SagaStageReturnProcessed   SagaStage = "return_processed"
	SagaStageReturnCompleted   SagaStage = "return_completed"
	SagaStageRefundCreated     SagaStage = "refund_created"
	SagaStageRefundProcessing  SagaStage = "refund_processing"
	SagaStageRefundCompleted   SagaStage = "refund_completed"
	SagaStageExchangeCreated   SagaStage = "exchange_created"
	SagaStageExchangeCompleted SagaStage = "exchange_completed"
)

// SagaStatus: итоговое состояние саги.
type SagaStatus string

const (
	SagaStatusRunning   SagaStatus = "running"
	SagaStatusCompleted SagaStatus = "completed"
	SagaStatusFailed    SagaStatus = "failed"
	// SagaStatusNeedsReconciliation: удалённое состояние рассогласовано, нужен оператор.
	SagaStatusNeedsReconciliation SagaStatus = "needs_reconciliation"
)

// Resumable сообщает, можно ли продолжить сагу вручную.
func (s SagaStatus) Resumable() bool {
	return s == SagaStatusFailed || s == SagaStatusNeedsReconciliation
}

// SagaRecord: запись журнала саги. Хранится только в памяти процесса.
type SagaRecord struct {
	ID       string
	Kind     SagaKind
	OrderID  string
	StoreID  string
	Status   SagaStatus
	Stage    SagaStage
	// Шаг, на котором произошла последняя ошибка
	FailedStage SagaStage
	LastError   string

	ReturnID        string
	RefundID        string
	RefundReference string
	ExchangeOrderID string
	// Открытый кейс сверки, если сага на него попала
	ReconciliationID string

	// Исходные данные операции; по ним сага продолжается при resume
	Input SagaInput

	// Ключи идемпотентности по шагам: <saga-id>:<stage>
	IdempotencyKeys map[SagaStage]string

	Settlement SettlementSnapshot
	StartedAt  time.Time
	UpdatedAt  time.Time
}

// Clone возвращает глубокую копию записи.
func (r SagaRecord) Clone() SagaRecord {
	dst := r
	dst.Input = r.Input.Clone()
	if r.IdempotencyKeys != nil {
		dst.IdempotencyKeys = make(map[SagaStage]string, len(r.IdempotencyKeys))
		for k, v := range r.IdempotencyKeys {
			dst.IdempotencyKeys[k] = v
		}
	}
	return dst
}

// SagaInput: то, что оператор подтвердил при запуске саги.
type SagaInput struct {
	Items        []SelectedItem
	Replacements []ReplacementLine
	Reason       ReturnReason
	Type         ReturnType
	Notes        string
	Tender       Tender
	VATRate      float64
}

// Clone копирует срезы и карту купюр.
func (in SagaInput) Clone() SagaInput {
	dst := in
	dst.Items = append([]SelectedItem(nil), in.Items...)
	dst.Replacements = append([]ReplacementLine(nil), in.Replacements...)
	if in.Tender.Notes != nil {
		dst.Tender.Notes = make(NoteCounts, len(in.Tender.Notes))
		for d, c := range in.Tender.Notes {
			dst.Tender.Notes[d] = c
		}
	}
	return dst
}

// SettlementSnapshot: зафиксированный при старте расчёт по саге.
type SettlementSnapshot struct {
	OriginalAmount float64
	NewSubtotal    float64
	VATRate        float64
	VATAmount      float64
	TotalNewAmount float64
	Difference     float64
	RefundAmount   float64
	Outcome        string
	TotalTendered  float64
	Due            float64
}

// ReconciliationCase: сага, оставившая удалённое состояние рассогласованным.
type ReconciliationCase struct {
	ID       string
	SagaID   string
	OrderID  string
	ReturnID string
	RefundID string
	// Шаг, на котором сага остановилась
	Stage  SagaStage
	Reason string
	Amount float64
	// Resolved: кейс закрыт (сага дозавершена или оператор закрыл вручную)
	Resolved       bool
	ResolutionNote string
	CreatedAt      time.Time
	ResolvedAt     time.Time
}
