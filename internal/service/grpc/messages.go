package grpcsvc

import "time"

// SelectedItem: позиция исходного заказа, выбранная к возврату.
type SelectedItem struct {
	OrderItemID string `json:"order_item_id" validate:"required"`
	Quantity    int    `json:"quantity" validate:"gte=1"`
	BarcodeID   string `json:"barcode_id,omitempty"`
}

// ReplacementLine: строка заказа на замену.
type ReplacementLine struct {
	ProductID      string  `json:"product_id" validate:"required"`
	ProductName    string  `json:"product_name,omitempty"`
	BatchID        string  `json:"batch_id,omitempty"`
	BarcodeID      string  `json:"barcode_id,omitempty"`
	Quantity       int     `json:"quantity" validate:"gte=1"`
	UnitPrice      float64 `json:"unit_price" validate:"gte=0"`
	AvailableStock int     `json:"available_stock" validate:"gte=0"`
}

// Tender: платёжные инструменты; notes, номинал → количество купюр.
type Tender struct {
	Cash  float64     `json:"cash,omitempty" validate:"gte=0"`
	Notes map[int]int `json:"notes,omitempty" validate:"omitempty,dive,keys,gt=0,endkeys,gte=0"`
	Card  float64     `json:"card,omitempty" validate:"gte=0"`
	Bkash float64     `json:"bkash,omitempty" validate:"gte=0"`
	Nagad float64     `json:"nagad,omitempty" validate:"gte=0"`
	Fee   float64     `json:"fee,omitempty" validate:"gte=0"`
}

// ReturnRequest: операция возврата или обмена в том виде, как её подтверждает оператор.
type ReturnRequest struct {
	OrderID      string            `json:"order_id" validate:"required"`
	Items        []SelectedItem    `json:"items" validate:"required,min=1,dive"`
	Replacements []ReplacementLine `json:"replacements,omitempty" validate:"omitempty,dive"`
	Reason       string            `json:"reason" validate:"required"`
	ReturnType   string            `json:"return_type" validate:"required"`
	Notes        string            `json:"notes,omitempty" validate:"max=2000"`
	Tender       Tender            `json:"tender"`
	// VATPercent переопределяет ставку НДС в процентах
	VATPercent *float64 `json:"vat_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// Settlement: расчёт по операции.
type Settlement struct {
	Kind           string  `json:"kind"`
	OriginalAmount float64 `json:"original_amount"`
	NewSubtotal    float64 `json:"new_subtotal"`
	VATRate        float64 `json:"vat_rate"`
	VATAmount      float64 `json:"vat_amount"`
	TotalNewAmount float64 `json:"total_new_amount"`
	Difference     float64 `json:"difference"`
	Outcome        string  `json:"outcome"`
	RefundAmount   float64 `json:"refund_amount"`
	NewOrderTotal  float64 `json:"new_order_total,omitempty"`
	NotesTotal     float64 `json:"notes_total,omitempty"`
	EffectiveCash  float64 `json:"effective_cash,omitempty"`
	TotalTendered  float64 `json:"total_tendered"`
	FeeApplied     float64 `json:"fee_applied,omitempty"`
	Due            float64 `json:"due"`
	Instruction    string  `json:"instruction,omitempty"`
}

// PreviewSettlementResponse: расчёт без запуска саги.
type PreviewSettlementResponse struct {
	Settlement Settlement `json:"settlement"`
}

// Saga: состояние саги для оператора.
type Saga struct {
	SagaID           string     `json:"saga_id"`
	Kind             string     `json:"kind"`
	OrderID          string     `json:"order_id,omitempty"`
	Status           string     `json:"status"`
	Stage            string     `json:"stage"`
	FailedStage      string     `json:"failed_stage,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
	ReturnID         string     `json:"return_id,omitempty"`
	RefundID         string     `json:"refund_id,omitempty"`
	ExchangeOrderID  string     `json:"exchange_order_id,omitempty"`
	ReconciliationID string     `json:"reconciliation_id,omitempty"`
	Settlement       Settlement `json:"settlement"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// SagaResponse: ответ SubmitReturn и ResumeSaga.
type SagaResponse struct {
	Saga Saga `json:"saga"`
}

// ResumeSagaRequest: продолжение остановленной саги.
type ResumeSagaRequest struct {
	SagaID string `json:"saga_id" validate:"required"`
}

// GetSagaRequest: чтение саги и, по желанию, её timeline.
type GetSagaRequest struct {
	SagaID          string `json:"saga_id" validate:"required"`
	IncludeTimeline bool   `json:"include_timeline,omitempty"`
}

// TimelineEvent: событие в жизни саги.
type TimelineEvent struct {
	Type     string    `json:"type"`
	Stage    string    `json:"stage,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

// GetSagaResponse: сага и её события.
type GetSagaResponse struct {
	Saga     Saga            `json:"saga"`
	Timeline []TimelineEvent `json:"timeline,omitempty"`
}

// ListSagasRequest: саги по заказу; пустой order_id, все саги процесса.
type ListSagasRequest struct {
	OrderID string `json:"order_id,omitempty"`
}

// ListSagasResponse: саги, новые первыми.
type ListSagasResponse struct {
	Sagas []Saga `json:"sagas"`
}

// BulkReturnToVendorRequest: отправка дефектных позиций поставщику.
type BulkReturnToVendorRequest struct {
	DefectIDs []string `json:"defect_ids" validate:"required,min=1,dive,required"`
	VendorID  string   `json:"vendor_id" validate:"required"`
	Notes     string   `json:"notes,omitempty" validate:"max=2000"`
}

// BulkDisposeRequest: списание дефектных позиций.
type BulkDisposeRequest struct {
	DefectIDs []string `json:"defect_ids" validate:"required,min=1,dive,required"`
	Notes     string   `json:"notes,omitempty" validate:"max=2000"`
}

// BulkMarkSoldRequest: отметка дефектных позиций проданными.
type BulkMarkSoldRequest struct {
	DefectIDs []string `json:"defect_ids" validate:"required,min=1,dive,required"`
}

// BulkFailure: позиция, переход которой не удался.
type BulkFailure struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// BulkResponse: итог bulk-операции.
type BulkResponse struct {
	Action       string        `json:"action"`
	SuccessCount int           `json:"success_count"`
	ErrorCount   int           `json:"error_count"`
	Failures     []BulkFailure `json:"failures,omitempty"`
	Message      string        `json:"message"`
	Refresh      bool          `json:"refresh"`
}

// ListReconciliationCasesRequest: открытые кейсы сверки; limit=0, по умолчанию.
type ListReconciliationCasesRequest struct {
	Limit int `json:"limit,omitempty" validate:"gte=0,lte=500"`
}

// ReconciliationCase: сага, оставившая удалённое состояние рассогласованным.
type ReconciliationCase struct {
	ID        string    `json:"id"`
	SagaID    string    `json:"saga_id"`
	OrderID   string    `json:"order_id"`
	ReturnID  string    `json:"return_id,omitempty"`
	RefundID  string    `json:"refund_id,omitempty"`
	Stage     string    `json:"stage"`
	Reason    string    `json:"reason"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// ListReconciliationCasesResponse: кейсы, старые первыми.
type ListReconciliationCasesResponse struct {
	Cases []ReconciliationCase `json:"cases"`
}

// ResolveReconciliationCaseRequest: ручное закрытие кейса.
type ResolveReconciliationCaseRequest struct {
	CaseID string `json:"case_id" validate:"required"`
	Note   string `json:"note" validate:"required,max=2000"`
}

// ResolveReconciliationCaseResponse: кейс закрыт.
type ResolveReconciliationCaseResponse struct {
	CaseID   string `json:"case_id"`
	Resolved bool   `json:"resolved"`
}

// FindOrdersRequest: поиск заказов для оформления возврата.
type FindOrdersRequest struct {
	StoreID    string `json:"store_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	Status     string `json:"status,omitempty" validate:"omitempty,oneof=pending confirmed completed cancelled"`
	Reference  string `json:"reference,omitempty"`
	Page       int    `json:"page,omitempty" validate:"gte=0"`
	PerPage    int    `json:"per_page,omitempty" validate:"gte=0,lte=100"`
	// Expand догружает позиции для строк списка, где их нет
	Expand bool `json:"expand,omitempty"`
}

// OrderLine: проданная позиция заказа.
type OrderLine struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name,omitempty"`
	BatchID     string  `json:"batch_id,omitempty"`
	BarcodeID   string  `json:"barcode_id,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TotalAmount float64 `json:"total_amount"`
}

// Order: заказ в выдаче поиска.
type Order struct {
	ID                string      `json:"id"`
	OrderNumber       string      `json:"order_number,omitempty"`
	StoreID           string      `json:"store_id,omitempty"`
	CustomerID        string      `json:"customer_id,omitempty"`
	Status            string      `json:"status"`
	TotalAmount       float64     `json:"total_amount"`
	PaidAmount        float64     `json:"paid_amount"`
	OutstandingAmount float64     `json:"outstanding_amount"`
	Items             []OrderLine `json:"items,omitempty"`
}

// FindOrdersResponse: найденные заказы в порядке backend.
type FindOrdersResponse struct {
	Orders []Order `json:"orders"`
}
