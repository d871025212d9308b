package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// RefundsAPI реализует domain.RefundService.
type RefundsAPI struct {
	client *Client
}

var _ domain.RefundService = (*RefundsAPI)(nil)

// Create создаёт RefundRequest для завершённого возврата.
func (a *RefundsAPI) Create(ctx context.Context, input domain.CreateRefundInput) (domain.RefundRequest, error) {
	payload := createRefundPayload{
		ReturnID:            input.ReturnID,
		OrderID:             input.OrderID,
		Amount:              input.Amount,
		RefundType:          input.Type,
		RefundMethod:        input.Method,
		RefundMethodDetails: input.MethodDetails,
		Reference:           input.Reference,
		InternalNotes:       input.Notes,
	}
	return a.call(ctx, "refunds.create", http.MethodPost, "/refunds", payload)
}

// Get читает текущее состояние возврата средств.
func (a *RefundsAPI) Get(ctx context.Context, id string) (domain.RefundRequest, error) {
	return a.call(ctx, "refunds.get", http.MethodGet, "/refunds/"+url.PathEscape(id), nil)
}

// ListByReturn возвращает возвраты средств по ReturnRequest.
func (a *RefundsAPI) ListByReturn(ctx context.Context, returnID string) ([]domain.RefundRequest, error) {
	var list refundList
	query := url.Values{"return_id": {returnID}}
	if err := a.client.do(ctx, "refunds.list", http.MethodGet, "/refunds", query, nil, &list); err != nil {
		return nil, err
	}
	out := make([]domain.RefundRequest, 0, len(list))
	for _, w := range list {
		out = append(out, w.toDomain())
	}
	return out, nil
}

// Process переводит возврат средств в processing.
func (a *RefundsAPI) Process(ctx context.Context, id, reference string) (domain.RefundRequest, error) {
	path := "/refunds/" + url.PathEscape(id) + "/process"
	return a.call(ctx, "refunds.process", http.MethodPost, path, transactionPayload{TransactionReference: reference})
}

// Complete завершает возврат средств.
func (a *RefundsAPI) Complete(ctx context.Context, id, transactionReference string) (domain.RefundRequest, error) {
	path := "/refunds/" + url.PathEscape(id) + "/complete"
	return a.call(ctx, "refunds.complete", http.MethodPost, path, transactionPayload{TransactionReference: transactionReference})
}

func (a *RefundsAPI) call(ctx context.Context, operation, method, path string, body interface{}) (domain.RefundRequest, error) {
	var w wireRefund
	if err := a.client.do(ctx, operation, method, path, nil, body, &w); err != nil {
		return domain.RefundRequest{}, err
	}
	return w.toDomain(), nil
}
