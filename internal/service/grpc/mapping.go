package grpcsvc

import (
	"strings"
	"time"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/service/saga"
	"github.com/vladislavdragonenkov/retailops/internal/settlement"
)

func toSubmitRequest(req *ReturnRequest) saga.SubmitRequest {
	items := make([]domain.SelectedItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.SelectedItem{
			OrderItemID: strings.TrimSpace(item.OrderItemID),
			Quantity:    item.Quantity,
			BarcodeID:   item.BarcodeID,
		})
	}

	var replacements []domain.ReplacementLine
	for _, line := range req.Replacements {
		replacements = append(replacements, domain.ReplacementLine{
			ProductID:      strings.TrimSpace(line.ProductID),
			ProductName:    line.ProductName,
			BatchID:        line.BatchID,
			BarcodeID:      line.BarcodeID,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			AvailableStock: line.AvailableStock,
		})
	}

	return saga.SubmitRequest{
		OrderID:      strings.TrimSpace(req.OrderID),
		Items:        items,
		Replacements: domain.MergeReplacementLines(replacements),
		Reason:       domain.ReturnReason(strings.TrimSpace(req.Reason)),
		Type:         domain.ReturnType(strings.TrimSpace(req.ReturnType)),
		Notes:        req.Notes,
		Tender:       toTender(req.Tender),
		VATPercent:   req.VATPercent,
	}
}

// toTender переносит ввод кассира через CashEntry: подсчёт купюр обнуляет ручную сумму.
// Некорректный ввод передаётся как есть, его отклоняет Tender.Validate.
func toTender(in Tender) domain.Tender {
	tender := domain.Tender{
		Cash:  in.Cash,
		Card:  in.Card,
		Bkash: in.Bkash,
		Nagad: in.Nagad,
		Fee:   in.Fee,
	}
	if len(in.Notes) == 0 {
		return tender
	}

	entry := settlement.NewCashEntry()
	for denomination, count := range in.Notes {
		if err := entry.SetNoteCount(denomination, count); err != nil {
			tender.Notes = make(domain.NoteCounts, len(in.Notes))
			for d, n := range in.Notes {
				tender.Notes[d] = n
			}
			return tender
		}
	}
	if len(entry.Notes()) == 0 {
		return tender
	}
	return entry.Apply(tender)
}

func fromSettlement(s saga.Settlement) Settlement {
	return Settlement{
		Kind:           string(s.Kind),
		OriginalAmount: s.Delta.OriginalAmount,
		NewSubtotal:    s.Delta.NewSubtotal,
		VATRate:        s.Delta.VATRate,
		VATAmount:      s.Delta.VATAmount,
		TotalNewAmount: s.Delta.TotalNewAmount,
		Difference:     s.Delta.Difference,
		Outcome:        string(s.Outcome),
		RefundAmount:   s.RefundAmount,
		NewOrderTotal:  s.NewOrderTotal,
		NotesTotal:     s.Tender.NotesTotal,
		EffectiveCash:  s.Tender.EffectiveCash,
		TotalTendered:  s.Tender.TotalTendered,
		FeeApplied:     s.Tender.FeeApplied,
		Due:            s.Tender.Due,
		Instruction:    s.Instruction,
	}
}

func fromResult(r saga.Result) Saga {
	return Saga{
		SagaID:           r.SagaID,
		Kind:             string(r.Kind),
		Status:           string(r.Status),
		Stage:            string(r.Stage),
		ReturnID:         r.ReturnID,
		RefundID:         r.RefundID,
		ExchangeOrderID:  r.ExchangeOrderID,
		ReconciliationID: r.ReconciliationID,
		Settlement:       fromSettlement(r.Settlement),
	}
}

func fromRecord(rec domain.SagaRecord) Saga {
	return Saga{
		SagaID:           rec.ID,
		Kind:             string(rec.Kind),
		OrderID:          rec.OrderID,
		Status:           string(rec.Status),
		Stage:            string(rec.Stage),
		FailedStage:      string(rec.FailedStage),
		LastError:        rec.LastError,
		ReturnID:         rec.ReturnID,
		RefundID:         rec.RefundID,
		ExchangeOrderID:  rec.ExchangeOrderID,
		ReconciliationID: rec.ReconciliationID,
		Settlement: Settlement{
			Kind:           string(rec.Kind),
			OriginalAmount: rec.Settlement.OriginalAmount,
			NewSubtotal:    rec.Settlement.NewSubtotal,
			VATRate:        rec.Settlement.VATRate,
			VATAmount:      rec.Settlement.VATAmount,
			TotalNewAmount: rec.Settlement.TotalNewAmount,
			Difference:     rec.Settlement.Difference,
			Outcome:        rec.Settlement.Outcome,
			RefundAmount:   rec.Settlement.RefundAmount,
			TotalTendered:  rec.Settlement.TotalTendered,
			Due:            rec.Settlement.Due,
		},
		StartedAt: timePtr(rec.StartedAt),
		UpdatedAt: timePtr(rec.UpdatedAt),
	}
}

func fromBulk(r saga.BulkResult) *BulkResponse {
	resp := &BulkResponse{
		Action:       string(r.Action),
		SuccessCount: r.SuccessCount,
		ErrorCount:   r.ErrorCount,
		Message:      r.Message,
		Refresh:      r.Refresh,
	}
	for _, f := range r.Failures {
		resp.Failures = append(resp.Failures, BulkFailure{ID: f.ID, Message: f.Message})
	}
	return resp
}

func fromReconciliationCase(c domain.ReconciliationCase) ReconciliationCase {
	return ReconciliationCase{
		ID:        c.ID,
		SagaID:    c.SagaID,
		OrderID:   c.OrderID,
		ReturnID:  c.ReturnID,
		RefundID:  c.RefundID,
		Stage:     string(c.Stage),
		Reason:    c.Reason,
		Amount:    c.Amount,
		CreatedAt: c.CreatedAt.UTC(),
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func toOrderFilter(req *FindOrdersRequest) domain.OrderFilter {
	return domain.OrderFilter{
		StoreID:    strings.TrimSpace(req.StoreID),
		CustomerID: strings.TrimSpace(req.CustomerID),
		Status:     domain.OrderStatus(req.Status),
		Reference:  strings.TrimSpace(req.Reference),
		Page:       req.Page,
		PerPage:    req.PerPage,
	}
}

func fromOrder(o domain.Order) Order {
	out := Order{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		StoreID:           o.StoreID,
		CustomerID:        o.CustomerID,
		Status:            string(o.Status),
		TotalAmount:       o.TotalAmount,
		PaidAmount:        o.PaidAmount,
		OutstandingAmount: o.OutstandingAmount,
	}
	for _, item := range o.Items {
		out.Items = append(out.Items, OrderLine{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			BatchID:     item.BatchID,
			BarcodeID:   item.BarcodeID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalAmount: item.TotalAmount,
		})
	}
	return out
}
