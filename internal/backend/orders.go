package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// OrdersAPI реализует domain.OrderService.
type OrdersAPI struct {
	client *Client
}

var _ domain.OrderService = (*OrdersAPI)(nil)

// List возвращает заказы по фильтру. Позиции в списке могут отсутствовать.
func (a *OrdersAPI) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	query := url.Values{}
	if filter.StoreID != "" {
		query.Set("store_id", filter.StoreID)
	}
	if filter.CustomerID != "" {
		query.Set("customer_id", filter.CustomerID)
	}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	if filter.Reference != "" {
		query.Set("reference", filter.Reference)
	}
	if filter.Page > 0 {
		query.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(filter.PerPage))
	}

	var list orderList
	if err := a.client.do(ctx, "orders.list", http.MethodGet, "/orders", query, nil, &list); err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(list))
	for _, w := range list {
		orders = append(orders, w.toDomain())
	}
	return orders, nil
}

// Get возвращает заказ со всеми позициями.
func (a *OrdersAPI) Get(ctx context.Context, id string) (domain.Order, error) {
	if id == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	var w wireOrder
	if err := a.client.do(ctx, "orders.get", http.MethodGet, "/orders/"+url.PathEscape(id), nil, nil, &w); err != nil {
		if IsNotFound(err) {
			return domain.Order{}, errors.Join(domain.ErrOrderNotFound, err)
		}
		return domain.Order{}, err
	}
	return w.toDomain(), nil
}

// Create создаёт заказ.
func (a *OrdersAPI) Create(ctx context.Context, input domain.CreateOrderInput) (domain.Order, error) {
	payload := createOrderPayload{
		StoreID:    input.StoreID,
		CustomerID: input.CustomerID,
		Notes:      input.Notes,
		Reference:  input.Reference,
	}
	for _, item := range input.Items {
		payload.Items = append(payload.Items, createOrderItem{
			ProductID: item.ProductID,
			BatchID:   item.BatchID,
			BarcodeID: item.BarcodeID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	for _, p := range input.Payments {
		payload.Payments = append(payload.Payments, createOrderPayment{
			PaymentMethod:        p.Method,
			Amount:               p.Amount,
			PaymentType:          p.PaymentType,
			PaymentMethodDetails: p.Details,
		})
	}

	var w wireOrder
	if err := a.client.do(ctx, "orders.create", http.MethodPost, "/orders", nil, payload, &w); err != nil {
		return domain.Order{}, err
	}
	return w.toDomain(), nil
}

// Complete завершает заказ.
func (a *OrdersAPI) Complete(ctx context.Context, id string) (domain.Order, error) {
	var w wireOrder
	if err := a.client.do(ctx, "orders.complete", http.MethodPatch, "/orders/"+url.PathEscape(id)+"/complete", nil, nil, &w); err != nil {
		return domain.Order{}, err
	}
	return w.toDomain(), nil
}

// Cancel отменяет заказ с причиной.
func (a *OrdersAPI) Cancel(ctx context.Context, id, reason string) (domain.Order, error) {
	var w wireOrder
	path := "/orders/" + url.PathEscape(id) + "/cancel"
	if err := a.client.do(ctx, "orders.cancel", http.MethodPost, path, nil, cancelOrderPayload{Reason: reason}, &w); err != nil {
		return domain.Order{}, err
	}
	return w.toDomain(), nil
}
