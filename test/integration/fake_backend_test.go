package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

type fakeItem struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TotalAmount float64 `json:"total_amount"`
}

type fakeOrder struct {
	ID          string     `json:"id"`
	StoreID     string     `json:"store_id"`
	CustomerID  string     `json:"customer_id,omitempty"`
	Status      string     `json:"status"`
	Items       []fakeItem `json:"items"`
	Subtotal    float64    `json:"subtotal"`
	TotalAmount float64    `json:"total_amount"`
	Reference   string     `json:"reference,omitempty"`
}

type fakeReturnItem struct {
	OrderItemID string `json:"order_item_id"`
	Quantity    int    `json:"quantity"`
}

type fakeReturn struct {
	ID        string           `json:"id"`
	OrderID   string           `json:"order_id"`
	Reason    string           `json:"return_reason"`
	Type      string           `json:"return_type"`
	Status    string           `json:"status"`
	Items     []fakeReturnItem `json:"items"`
	Reference string           `json:"reference,omitempty"`
}

type fakeRefund struct {
	ID        string  `json:"id"`
	ReturnID  string  `json:"return_id"`
	OrderID   string  `json:"order_id,omitempty"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
	Reference string  `json:"reference,omitempty"`
}

type fakePayment struct {
	PaymentMethod string  `json:"payment_method"`
	Amount        float64 `json:"amount"`
	PaymentType   string  `json:"payment_type"`
}

// fakeBackend: REST-бэкенд магазина в памяти с переходами статусов возврата,
// возврата средств и заказов.
type fakeBackend struct {
	mu       sync.Mutex
	seq      int
	orders   map[string]*fakeOrder
	returns  map[string]*fakeReturn
	refunds  map[string]*fakeRefund
	payments map[string][]fakePayment
	// failures: "METHOD route" → сколько ближайших вызовов отклонить
	failures map[string]int
	// rejected: дефектные позиции, переходы которых бэкенд отклоняет
	rejected map[string]bool
	defects  map[string]string
	calls    map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		orders:   make(map[string]*fakeOrder),
		returns:  make(map[string]*fakeReturn),
		refunds:  make(map[string]*fakeRefund),
		payments: make(map[string][]fakePayment),
		failures: make(map[string]int),
		rejected: make(map[string]bool),
		defects:  make(map[string]string),
		calls:    make(map[string]int),
	}
}

func (b *fakeBackend) addOrder(o fakeOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[o.ID] = &o
}

func (b *fakeBackend) failNext(route string, times int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = times
}

func (b *fakeBackend) callCount(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

func (b *fakeBackend) returnByID(id string) fakeReturn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.returns[id]
}

func (b *fakeBackend) refundByID(id string) fakeRefund {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.refunds[id]
}

func (b *fakeBackend) orderByID(id string) fakeOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.orders[id]
}

func (b *fakeBackend) paymentsOf(orderID string) []fakePayment {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]fakePayment(nil), b.payments[orderID]...)
}

func (b *fakeBackend) nextID(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s-%d", prefix, b.seq)
}

func (b *fakeBackend) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/orders", b.handle("GET /orders", b.listOrders))
	r.Post("/orders", b.handle("POST /orders", b.createOrder))
	r.Get("/orders/{id}", b.handle("GET /orders/{id}", b.getOrder))
	r.Patch("/orders/{id}/complete", b.handle("PATCH /orders/{id}/complete", b.completeOrder))

	r.Get("/returns", b.handle("GET /returns", b.listReturns))
	r.Post("/returns", b.handle("POST /returns", b.createReturn))
	r.Get("/returns/{id}", b.handle("GET /returns/{id}", b.getReturn))
	r.Put("/returns/{id}", b.handle("PUT /returns/{id}", b.moveReturn("created", "quality_checked")))
	r.Post("/returns/{id}/approve", b.handle("POST /returns/{id}/approve", b.moveReturn("quality_checked", "approved")))
	r.Post("/returns/{id}/process", b.handle("POST /returns/{id}/process", b.moveReturn("approved", "processed")))
	r.Post("/returns/{id}/complete", b.handle("POST /returns/{id}/complete", b.moveReturn("processed", "completed")))

	r.Get("/refunds", b.handle("GET /refunds", b.listRefunds))
	r.Post("/refunds", b.handle("POST /refunds", b.createRefund))
	r.Get("/refunds/{id}", b.handle("GET /refunds/{id}", b.getRefund))
	r.Post("/refunds/{id}/process", b.handle("POST /refunds/{id}/process", b.moveRefund("pending", "processing")))
	r.Post("/refunds/{id}/complete", b.handle("POST /refunds/{id}/complete", b.moveRefund("processing", "completed")))

	r.Post("/defective-products/{id}/{action}", b.handle("POST /defective-products", b.transitionDefect))
	return r
}

type fakeHandler func(r *http.Request) (int, interface{})

// handle учитывает вызов, применяет запланированный отказ и заворачивает ответ в {"data": ...}.
func (b *fakeBackend) handle(route string, h fakeHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[route]++
		if b.failures[route] > 0 {
			b.failures[route]--
			b.mu.Unlock()
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "backend temporarily unavailable"})
			return
		}
		status, body := h(r)
		b.mu.Unlock()

		if status >= http.StatusBadRequest {
			writeJSON(w, status, map[string]string{"message": fmt.Sprint(body)})
			return
		}
		writeJSON(w, status, map[string]interface{}{"data": body})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (b *fakeBackend) listOrders(r *http.Request) (int, interface{}) {
	ref := r.URL.Query().Get("reference")
	out := []fakeOrder{}
	for _, o := range b.orders {
		if ref == "" || o.Reference == ref {
			out = append(out, *o)
		}
	}
	return http.StatusOK, out
}

func (b *fakeBackend) getOrder(r *http.Request) (int, interface{}) {
	o, ok := b.orders[chi.URLParam(r, "id")]
	if !ok {
		return http.StatusNotFound, "order not found"
	}
	return http.StatusOK, o
}

func (b *fakeBackend) createOrder(r *http.Request) (int, interface{}) {
	var payload struct {
		StoreID    string        `json:"store_id"`
		CustomerID string        `json:"customer_id"`
		Reference  string        `json:"reference"`
		Payments   []fakePayment `json:"payments"`
		Items      []struct {
			ProductID string  `json:"product_id"`
			Quantity  int     `json:"quantity"`
			UnitPrice float64 `json:"unit_price"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return http.StatusBadRequest, err.Error()
	}

	order := &fakeOrder{
		ID:         b.nextID("order"),
		StoreID:    payload.StoreID,
		CustomerID: payload.CustomerID,
		Status:     "pending",
		Reference:  payload.Reference,
	}
	for _, item := range payload.Items {
		amount := float64(item.Quantity) * item.UnitPrice
		order.Items = append(order.Items, fakeItem{
			ID:          b.nextID("item"),
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalAmount: amount,
		})
		order.Subtotal += amount
	}
	order.TotalAmount = order.Subtotal
	b.orders[order.ID] = order
	b.payments[order.ID] = payload.Payments
	return http.StatusCreated, order
}

func (b *fakeBackend) completeOrder(r *http.Request) (int, interface{}) {
	o, ok := b.orders[chi.URLParam(r, "id")]
	if !ok {
		return http.StatusNotFound, "order not found"
	}
	o.Status = "completed"
	return http.StatusOK, o
}

func (b *fakeBackend) listReturns(r *http.Request) (int, interface{}) {
	orderID := r.URL.Query().Get("order_id")
	out := []fakeReturn{}
	for _, ret := range b.returns {
		if ret.OrderID == orderID {
			out = append(out, *ret)
		}
	}
	return http.StatusOK, out
}

func (b *fakeBackend) createReturn(r *http.Request) (int, interface{}) {
	var payload struct {
		OrderID      string           `json:"order_id"`
		ReturnReason string           `json:"return_reason"`
		ReturnType   string           `json:"return_type"`
		Reference    string           `json:"reference"`
		Items        []fakeReturnItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return http.StatusBadRequest, err.Error()
	}
	if _, ok := b.orders[payload.OrderID]; !ok {
		return http.StatusUnprocessableEntity, "The selected order id is invalid."
	}

	ret := &fakeReturn{
		ID:        b.nextID("ret"),
		OrderID:   payload.OrderID,
		Reason:    payload.ReturnReason,
		Type:      payload.ReturnType,
		Status:    "pending",
		Items:     payload.Items,
		Reference: payload.Reference,
	}
	b.returns[ret.ID] = ret
	return http.StatusCreated, ret
}

func (b *fakeBackend) getReturn(r *http.Request) (int, interface{}) {
	ret, ok := b.returns[chi.URLParam(r, "id")]
	if !ok {
		return http.StatusNotFound, "return not found"
	}
	return http.StatusOK, ret
}

func (b *fakeBackend) moveReturn(from, to string) fakeHandler {
	return func(r *http.Request) (int, interface{}) {
		ret, ok := b.returns[chi.URLParam(r, "id")]
		if !ok {
			return http.StatusNotFound, "return not found"
		}
		if normalize(ret.Status) != from {
			return http.StatusUnprocessableEntity, fmt.Sprintf("return is %s", ret.Status)
		}
		ret.Status = to
		return http.StatusOK, ret
	}
}

func (b *fakeBackend) listRefunds(r *http.Request) (int, interface{}) {
	returnID := r.URL.Query().Get("return_id")
	out := []fakeRefund{}
	for _, ref := range b.refunds {
		if ref.ReturnID == returnID {
			out = append(out, *ref)
		}
	}
	return http.StatusOK, out
}

func (b *fakeBackend) createRefund(r *http.Request) (int, interface{}) {
	var payload struct {
		ReturnID  string  `json:"return_id"`
		OrderID   string  `json:"order_id"`
		Amount    float64 `json:"amount"`
		Reference string  `json:"reference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return http.StatusBadRequest, err.Error()
	}
	ret, ok := b.returns[payload.ReturnID]
	if !ok || ret.Status != "completed" {
		return http.StatusUnprocessableEntity, "return must be completed before refund"
	}

	refund := &fakeRefund{
		ID:        b.nextID("rf"),
		ReturnID:  payload.ReturnID,
		OrderID:   payload.OrderID,
		Amount:    payload.Amount,
		Status:    "pending",
		Reference: payload.Reference,
	}
	b.refunds[refund.ID] = refund
	return http.StatusCreated, refund
}

func (b *fakeBackend) getRefund(r *http.Request) (int, interface{}) {
	refund, ok := b.refunds[chi.URLParam(r, "id")]
	if !ok {
		return http.StatusNotFound, "refund not found"
	}
	return http.StatusOK, refund
}

func (b *fakeBackend) moveRefund(from, to string) fakeHandler {
	return func(r *http.Request) (int, interface{}) {
		refund, ok := b.refunds[chi.URLParam(r, "id")]
		if !ok {
			return http.StatusNotFound, "refund not found"
		}
		if refund.Status != from {
			return http.StatusUnprocessableEntity, fmt.Sprintf("refund is %s", refund.Status)
		}
		refund.Status = to
		return http.StatusOK, refund
	}
}

func (b *fakeBackend) transitionDefect(r *http.Request) (int, interface{}) {
	id := chi.URLParam(r, "id")
	if b.rejected[id] {
		return http.StatusUnprocessableEntity, "Product is not in a state that allows this action."
	}
	b.defects[id] = chi.URLParam(r, "action")
	return http.StatusOK, map[string]string{"id": id}
}

func normalize(status string) string {
	if status == "pending" {
		return "created"
	}
	return status
}
