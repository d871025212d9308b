package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// ReturnsAPI реализует domain.ReturnService.
type ReturnsAPI struct {
	client *Client
}

var _ domain.ReturnService = (*ReturnsAPI)(nil)

func returnPath(id, action string) string {
	path := "/returns/" + url.PathEscape(id)
	if action != "" {
		path += "/" + action
	}
	return path
}

// Create создаёт ReturnRequest.
func (a *ReturnsAPI) Create(ctx context.Context, input domain.CreateReturnInput) (domain.ReturnRequest, error) {
	payload := createReturnPayload{
		OrderID:       input.OrderID,
		ReturnReason:  string(input.Reason),
		ReturnType:    string(input.Type),
		CustomerNotes: input.Notes,
		Reference:     input.Reference,
	}
	for _, item := range input.Items {
		payload.Items = append(payload.Items, createReturnItem{
			OrderItemID: item.OrderItemID,
			Quantity:    item.Quantity,
			BarcodeID:   item.BarcodeID,
		})
	}
	return a.call(ctx, "returns.create", http.MethodPost, "/returns", nil, payload)
}

// Get читает текущее состояние возврата.
func (a *ReturnsAPI) Get(ctx context.Context, id string) (domain.ReturnRequest, error) {
	return a.call(ctx, "returns.get", http.MethodGet, returnPath(id, ""), nil, nil)
}

// ListByOrder возвращает возвраты по заказу.
func (a *ReturnsAPI) ListByOrder(ctx context.Context, orderID string) ([]domain.ReturnRequest, error) {
	var list returnList
	query := url.Values{"order_id": {orderID}}
	if err := a.client.do(ctx, "returns.list", http.MethodGet, "/returns", query, nil, &list); err != nil {
		return nil, err
	}
	out := make([]domain.ReturnRequest, 0, len(list))
	for _, w := range list {
		out = append(out, w.toDomain())
	}
	return out, nil
}

// Update записывает результат проверки качества.
func (a *ReturnsAPI) Update(ctx context.Context, id string, input domain.QualityCheckInput) (domain.ReturnRequest, error) {
	payload := qualityCheckPayload{QualityCheckPassed: input.Passed, QualityCheckNotes: input.Notes}
	return a.call(ctx, "returns.update", http.MethodPut, returnPath(id, ""), nil, payload)
}

// Approve одобряет возврат.
func (a *ReturnsAPI) Approve(ctx context.Context, id, internalNotes string) (domain.ReturnRequest, error) {
	return a.call(ctx, "returns.approve", http.MethodPost, returnPath(id, "approve"), nil, approvePayload{InternalNotes: internalNotes})
}

// Process проводит возврат; restoreInventory возвращает остатки на склад.
func (a *ReturnsAPI) Process(ctx context.Context, id string, restoreInventory bool) (domain.ReturnRequest, error) {
	return a.call(ctx, "returns.process", http.MethodPost, returnPath(id, "process"), nil, processReturnPayload{RestoreInventory: restoreInventory})
}

// Complete закрывает возврат.
func (a *ReturnsAPI) Complete(ctx context.Context, id string) (domain.ReturnRequest, error) {
	return a.call(ctx, "returns.complete", http.MethodPost, returnPath(id, "complete"), nil, nil)
}

func (a *ReturnsAPI) call(ctx context.Context, operation, method, path string, query url.Values, body interface{}) (domain.ReturnRequest, error) {
	var w wireReturn
	if err := a.client.do(ctx, operation, method, path, query, body, &w); err != nil {
		return domain.ReturnRequest{}, err
	}
	return w.toDomain(), nil
}
