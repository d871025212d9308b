package backend

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// Backend отдаёт id и суммы то строками, то числами; типы ниже принимают оба варианта.

type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(b)
	return nil
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		v = strings.TrimSpace(v)
		if v == "" {
			*f = 0
			return nil
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*f = flexFloat(parsed)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type flexInt int

func (i *flexInt) UnmarshalJSON(b []byte) error {
	var f flexFloat
	if err := f.UnmarshalJSON(b); err != nil {
		return err
	}
	*i = flexInt(math.Round(float64(f)))
	return nil
}

type flexBool bool

func (v *flexBool) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(strings.ToLower(string(bytes.TrimSpace(b))), `"`)
	switch raw {
	case "true", "1", "yes":
		*v = true
	default:
		*v = false
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// flexTime не ломает декодирование из-за незнакомого формата даты.
type flexTime time.Time

func (t *flexTime) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil || raw == "" {
		*t = flexTime(time.Time{})
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			*t = flexTime(parsed)
			return nil
		}
	}
	*t = flexTime(time.Time{})
	return nil
}

type wireOrderItem struct {
	ID             flexString `json:"id"`
	ProductID      flexString `json:"product_id"`
	ProductName    string     `json:"product_name"`
	SKU            string     `json:"product_sku"`
	BatchID        flexString `json:"batch_id"`
	BarcodeID      flexString `json:"product_barcode_id"`
	Quantity       flexInt    `json:"quantity"`
	UnitPrice      flexFloat  `json:"unit_price"`
	DiscountAmount flexFloat  `json:"discount_amount"`
	TaxAmount      flexFloat  `json:"tax_amount"`
	TotalAmount    flexFloat  `json:"total_amount"`
}

type wireOrder struct {
	ID                flexString      `json:"id"`
	OrderNumber       string          `json:"order_number"`
	StoreID           flexString      `json:"store_id"`
	CustomerID        flexString      `json:"customer_id"`
	Status            string          `json:"status"`
	Items             []wireOrderItem `json:"items"`
	Subtotal          flexFloat       `json:"subtotal"`
	TaxAmount         flexFloat       `json:"tax_amount"`
	DiscountAmount    flexFloat       `json:"discount_amount"`
	ShippingAmount    flexFloat       `json:"shipping_amount"`
	TotalAmount       flexFloat       `json:"total_amount"`
	PaidAmount        flexFloat       `json:"paid_amount"`
	OutstandingAmount flexFloat       `json:"outstanding_amount"`
	Reference         string          `json:"reference"`
	CreatedAt         flexTime        `json:"created_at"`
}

func (w wireOrder) toDomain() domain.Order {
	order := domain.Order{
		ID:                string(w.ID),
		OrderNumber:       w.OrderNumber,
		StoreID:           string(w.StoreID),
		CustomerID:        string(w.CustomerID),
		Status:            domain.OrderStatus(strings.ToLower(w.Status)),
		Subtotal:          float64(w.Subtotal),
		TaxAmount:         float64(w.TaxAmount),
		DiscountAmount:    float64(w.DiscountAmount),
		ShippingAmount:    float64(w.ShippingAmount),
		TotalAmount:       float64(w.TotalAmount),
		PaidAmount:        float64(w.PaidAmount),
		OutstandingAmount: float64(w.OutstandingAmount),
		Reference:         w.Reference,
		CreatedAt:         time.Time(w.CreatedAt),
	}
	for _, item := range w.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:             string(item.ID),
			ProductID:      string(item.ProductID),
			ProductName:    item.ProductName,
			SKU:            item.SKU,
			BatchID:        string(item.BatchID),
			BarcodeID:      string(item.BarcodeID),
			Quantity:       int(item.Quantity),
			UnitPrice:      float64(item.UnitPrice),
			DiscountAmount: float64(item.DiscountAmount),
			TaxAmount:      float64(item.TaxAmount),
			TotalAmount:    float64(item.TotalAmount),
		})
	}
	return order
}

type wireReturnItem struct {
	OrderItemID flexString `json:"order_item_id"`
	Quantity    flexInt    `json:"quantity"`
	BarcodeID   flexString `json:"product_barcode_id"`
}

type wireReturn struct {
	ID                 flexString       `json:"id"`
	ReturnNumber       string           `json:"return_number"`
	OrderID            flexString       `json:"order_id"`
	Reason             string           `json:"return_reason"`
	Type               string           `json:"return_type"`
	Status             string           `json:"status"`
	Items              []wireReturnItem `json:"items"`
	TotalReturnAmount  flexFloat        `json:"total_return_amount"`
	QualityCheckPassed flexBool         `json:"quality_check_passed"`
	Reference          string           `json:"reference"`
	CreatedAt          flexTime         `json:"created_at"`
}

func (w wireReturn) toDomain() domain.ReturnRequest {
	req := domain.ReturnRequest{
		ID:                 string(w.ID),
		ReturnNumber:       w.ReturnNumber,
		OrderID:            string(w.OrderID),
		Reason:             domain.ReturnReason(w.Reason),
		Type:               domain.ReturnType(w.Type),
		Status:             normalizeReturnStatus(w.Status),
		TotalReturnAmount:  float64(w.TotalReturnAmount),
		QualityCheckPassed: bool(w.QualityCheckPassed),
		Reference:          w.Reference,
		CreatedAt:          time.Time(w.CreatedAt),
	}
	for _, item := range w.Items {
		req.Items = append(req.Items, domain.ReturnItem{
			OrderItemID: string(item.OrderItemID),
			Quantity:    int(item.Quantity),
			BarcodeID:   string(item.BarcodeID),
		})
	}
	return req
}

type wireRefund struct {
	ID                   flexString           `json:"id"`
	RefundNumber         string               `json:"refund_number"`
	ReturnID             flexString           `json:"return_id"`
	OrderID              flexString           `json:"order_id"`
	Amount               flexFloat            `json:"amount"`
	Type                 string               `json:"refund_type"`
	Method               string               `json:"refund_method"`
	Status               string               `json:"status"`
	Reference            string               `json:"reference"`
	TransactionReference string               `json:"transaction_reference"`
	MethodDetails        map[string]flexFloat `json:"refund_method_details"`
	CreatedAt            flexTime             `json:"created_at"`
}

func (w wireRefund) toDomain() domain.RefundRequest {
	refund := domain.RefundRequest{
		ID:                   string(w.ID),
		RefundNumber:         w.RefundNumber,
		ReturnID:             string(w.ReturnID),
		OrderID:              string(w.OrderID),
		Amount:               float64(w.Amount),
		Type:                 w.Type,
		Method:               w.Method,
		Status:               normalizeRefundStatus(w.Status),
		Reference:            w.Reference,
		TransactionReference: w.TransactionReference,
		CreatedAt:            time.Time(w.CreatedAt),
	}
	if len(w.MethodDetails) > 0 {
		refund.MethodDetails = make(map[string]float64, len(w.MethodDetails))
		for k, v := range w.MethodDetails {
			refund.MethodDetails[k] = float64(v)
		}
	}
	return refund
}

func normalizeReturnStatus(raw string) domain.ReturnStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "created", "pending", "identified", "requested":
		return domain.ReturnStatusCreated
	case "inspected", "quality_check", "quality_checked":
		return domain.ReturnStatusQualityChecked
	case "approved":
		return domain.ReturnStatusApproved
	case "processed":
		return domain.ReturnStatusProcessed
	case "completed":
		return domain.ReturnStatusCompleted
	case "rejected":
		return domain.ReturnStatusRejected
	case "cancelled", "canceled":
		return domain.ReturnStatusCancelled
	default:
		return domain.ReturnStatus(raw)
	}
}

func normalizeRefundStatus(raw string) domain.RefundStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "created", "pending":
		return domain.RefundStatusCreated
	case "processing", "processed", "in_progress":
		return domain.RefundStatusProcessing
	case "completed", "refunded":
		return domain.RefundStatusCompleted
	case "failed":
		return domain.RefundStatusFailed
	case "cancelled", "canceled":
		return domain.RefundStatusCancelled
	default:
		return domain.RefundStatus(raw)
	}
}

// Payload-ы запросов.

type createReturnItem struct {
	OrderItemID string `json:"order_item_id"`
	Quantity    int    `json:"quantity"`
	BarcodeID   string `json:"product_barcode_id,omitempty"`
}

type createReturnPayload struct {
	OrderID       string             `json:"order_id"`
	ReturnReason  string             `json:"return_reason"`
	ReturnType    string             `json:"return_type"`
	Items         []createReturnItem `json:"items"`
	CustomerNotes string             `json:"customer_notes,omitempty"`
	Reference     string             `json:"reference,omitempty"`
}

type qualityCheckPayload struct {
	QualityCheckPassed bool   `json:"quality_check_passed"`
	QualityCheckNotes  string `json:"quality_check_notes,omitempty"`
}

type approvePayload struct {
	InternalNotes string `json:"internal_notes,omitempty"`
}

type processReturnPayload struct {
	RestoreInventory bool `json:"restore_inventory"`
}

type createRefundPayload struct {
	ReturnID            string             `json:"return_id"`
	OrderID             string             `json:"order_id,omitempty"`
	Amount              float64            `json:"amount"`
	RefundType          string             `json:"refund_type"`
	RefundMethod        string             `json:"refund_method"`
	RefundMethodDetails map[string]float64 `json:"refund_method_details,omitempty"`
	Reference           string             `json:"reference,omitempty"`
	InternalNotes       string             `json:"internal_notes,omitempty"`
}

type transactionPayload struct {
	TransactionReference string `json:"transaction_reference"`
}

type createOrderItem struct {
	ProductID string  `json:"product_id"`
	BatchID   string  `json:"batch_id,omitempty"`
	BarcodeID string  `json:"product_barcode_id,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type createOrderPayment struct {
	PaymentMethod        string             `json:"payment_method"`
	Amount               float64            `json:"amount"`
	PaymentType          string             `json:"payment_type"`
	PaymentMethodDetails map[string]float64 `json:"payment_method_details,omitempty"`
}

type createOrderPayload struct {
	StoreID    string               `json:"store_id"`
	CustomerID string               `json:"customer_id,omitempty"`
	Items      []createOrderItem    `json:"items"`
	Payments   []createOrderPayment `json:"payments"`
	Notes      string               `json:"notes,omitempty"`
	Reference  string               `json:"reference,omitempty"`
}

type cancelOrderPayload struct {
	Reason string `json:"reason,omitempty"`
}

type returnToVendorPayload struct {
	VendorID    string `json:"vendor_id"`
	VendorNotes string `json:"vendor_notes,omitempty"`
}

type disposePayload struct {
	DisposalNotes string `json:"disposal_notes,omitempty"`
}
