package domain

import "time"

// ReturnReason: код причины возврата из фиксированного списка.
type ReturnReason string

const (
	ReasonDefectiveProduct        ReturnReason = "defective_product"
	ReasonWrongItem               ReturnReason = "wrong_item"
	ReasonNotAsDescribed          ReturnReason = "not_as_described"
	ReasonCustomerDissatisfaction ReturnReason = "customer_dissatisfaction"
	ReasonSizeIssue               ReturnReason = "size_issue"
	ReasonColorIssue              ReturnReason = "color_issue"
	ReasonQualityIssue            ReturnReason = "quality_issue"
	ReasonLateDelivery            ReturnReason = "late_delivery"
	ReasonChangedMind             ReturnReason = "changed_mind"
	ReasonDuplicateOrder          ReturnReason = "duplicate_order"
	ReasonOther                   ReturnReason = "other"
)

// Valid проверяет, что причина входит в поддерживаемый список.
func (r ReturnReason) Valid() bool {
	switch r {
	case ReasonDefectiveProduct, ReasonWrongItem, ReasonNotAsDescribed,
		ReasonCustomerDissatisfaction, ReasonSizeIssue, ReasonColorIssue,
		ReasonQualityIssue, ReasonLateDelivery, ReasonChangedMind,
		ReasonDuplicateOrder, ReasonOther:
		return true
	default:
		return false
	}
}

// ReturnType: канал, через который оформляется возврат.
type ReturnType string

const (
	ReturnTypeCustomer  ReturnType = "customer_return"
	ReturnTypeStore     ReturnType = "store_return"
	ReturnTypeWarehouse ReturnType = "warehouse_return"
)

// Valid проверяет тип возврата.
func (t ReturnType) Valid() bool {
	switch t {
	case ReturnTypeCustomer, ReturnTypeStore, ReturnTypeWarehouse:
		return true
	default:
		return false
	}
}

// ReturnStatus: состояние ReturnRequest на backend.
type ReturnStatus string

const (
	ReturnStatusCreated        ReturnStatus = "pending"
	ReturnStatusQualityChecked ReturnStatus = "quality_checked"
	ReturnStatusApproved       ReturnStatus = "approved"
	ReturnStatusProcessed      ReturnStatus = "processed"
	ReturnStatusCompleted      ReturnStatus = "completed"
	ReturnStatusRejected       ReturnStatus = "rejected"
	ReturnStatusCancelled      ReturnStatus = "cancelled"
)

// Open сообщает, может ли возврат ещё продвигаться вперёд.
func (s ReturnStatus) Open() bool {
	return s != ReturnStatusRejected && s != ReturnStatusCancelled
}

// ReturnItem: позиция в ReturnRequest.
type ReturnItem struct {
	OrderItemID string
	Quantity    int
	BarcodeID   string
}

// ReturnRequest: сущность возврата, которой владеет backend.
type ReturnRequest struct {
	ID                 string
	ReturnNumber       string
	OrderID            string
	Reason             ReturnReason
	Type               ReturnType
	Status             ReturnStatus
	Items              []ReturnItem
	TotalReturnAmount  float64
	QualityCheckPassed bool
	Reference          string
	CreatedAt          time.Time
}

// CreateReturnInput: payload создания возврата.
type CreateReturnInput struct {
	OrderID   string
	Reason    ReturnReason
	Type      ReturnType
	Items     []ReturnItem
	Notes     string
	Reference string
}

// QualityCheckInput: результат проверки качества.
type QualityCheckInput struct {
	Passed bool
	Notes  string
}
