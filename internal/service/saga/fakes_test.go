package saga

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/retailops/internal/backend"
	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// fakeBackend: backend в памяти: ведёт сущности, пишет порядок вызовов и ключи идемпотентности.
type fakeBackend struct {
	mu sync.Mutex

	calls []string
	keys  []string

	order   domain.Order
	orders  map[string]domain.Order
	returns map[string]domain.ReturnRequest
	refunds map[string]domain.RefundRequest
	seq     int

	// fail: вызов падает без изменений на стороне backend
	fail map[string]error
	// failAfter: изменение применено, но ответ потерян
	failAfter map[string]error
	// approveStatus подменяет статус ответа approve
	approveStatus domain.ReturnStatus
	defectErrs    map[string]error

	lastReturn   domain.CreateReturnInput
	lastRefund   domain.CreateRefundInput
	lastExchange domain.CreateOrderInput
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		order:      sampleOrder(),
		orders:     map[string]domain.Order{},
		returns:    map[string]domain.ReturnRequest{},
		refunds:    map[string]domain.RefundRequest{},
		fail:       map[string]error{},
		failAfter:  map[string]error{},
		defectErrs: map[string]error{},
	}
}

func sampleOrder() domain.Order {
	return domain.Order{
		ID:          "order-1",
		OrderNumber: "ORD-0001",
		StoreID:     "store-1",
		CustomerID:  "customer-1",
		Status:      domain.OrderStatusCompleted,
		Items: []domain.OrderItem{
			{ID: "item-1", ProductID: "p-1", BatchID: "b-1", Quantity: 2, UnitPrice: 500, TotalAmount: 1000},
		},
		Subtotal:    1000,
		TotalAmount: 1000,
		PaidAmount:  1000,
	}
}

func remoteErr(op string, status int, msg string) error {
	return &backend.RemoteError{Operation: op, StatusCode: status, Message: msg}
}

func (f *fakeBackend) enter(ctx context.Context, call string) error {
	f.calls = append(f.calls, call)
	if key, ok := domain.IdempotencyKeyFromContext(ctx); ok {
		f.keys = append(f.keys, key)
	}
	if err, ok := f.fail[call]; ok {
		return err
	}
	return nil
}

func (f *fakeBackend) exit(call string) error {
	if err, ok := f.failAfter[call]; ok {
		delete(f.failAfter, call)
		return err
	}
	return nil
}

func (f *fakeBackend) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.keys = nil
}

func (f *fakeBackend) countCalls(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeBackend) services() (fakeOrders, fakeReturns, fakeRefunds, fakeDefects) {
	return fakeOrders{f}, fakeReturns{f}, fakeRefunds{f}, fakeDefects{f}
}

type fakeOrders struct{ f *fakeBackend }

func (s fakeOrders) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.enter(ctx, "orders.list"); err != nil {
		return nil, err
	}
	var out []domain.Order
	for _, o := range s.f.orders {
		if filter.Reference == "" || o.Reference == filter.Reference {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s fakeOrders) Get(ctx context.Context, id string) (domain.Order, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.enter(ctx, "orders.get"); err != nil {
		return domain.Order{}, err
	}
	if id == s.f.order.ID {
		return s.f.order, nil
	}
	if o, ok := s.f.orders[id]; ok {
		return o, nil
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

func (s fakeOrders) Create(ctx context.Context, input domain.CreateOrderInput) (domain.Order, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.enter(ctx, "orders.create"); err != nil {
		return domain.Order{}, err
	}
	s.f.lastExchange = input
	var total float64
	for _, p := range input.Payments {
		total += p.Amount
	}
	o := domain.Order{
		ID:          s.f.nextID("exchange"),
		StoreID:     input.StoreID,
		CustomerID:  input.CustomerID,
		Status:      domain.OrderStatusPending,
		TotalAmount: total,
		PaidAmount:  total,
		Reference:   input.Reference,
	}
	s.f.orders[o.ID] = o
	return o, s.f.exit("orders.create")
}

func (s fakeOrders) Complete(ctx context.Context, id string) (domain.Order, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.enter(ctx, "orders.complete"); err != nil {
		return domain.Order{}, err
	}
	o := s.f.orders[id]
	o.Status = domain.OrderStatusCompleted
	s.f.orders[id] = o
	return o, s.f.exit("orders.complete")
}

func (s fakeOrders) Cancel(ctx context.Context, id, _ string) (domain.Order, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.enter(ctx, "orders.cancel"); err != nil {
		return domain.Order{}, err
	}
	o := s.f.orders[id]
	o.Status = domain.OrderStatusCancelled
	s.f.orders[id] = o
	return o, nil
}

type fakeReturns struct{ f *fakeBackend }

func (s fakeReturns) Create(ctx context.Context, input domain.CreateReturnInput) (domain.ReturnRequest, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.enter(ctx, "returns.create"); err != nil {
		return domain.ReturnRequest{}, err
	}
	s.f.lastReturn = input
	r := domain.ReturnRequest{
		ID:        s.f.nextID("return"),
		OrderID:   input.OrderID,
		Reason:    input.Reason,
		Type:      input.Type,
		Status:    domain.ReturnStatusCreated,
		Items:     input.Items,
		Reference: input.Reference,
	}
	s.f.returns[r.ID] = r
	return r, s.f.exit("returns.create")
}

func (s fakeReturns) Get(ctx context.Context, id string) (domain.ReturnRequest, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.enter(ctx, "returns.get"); err != nil {
		return domain.ReturnRequest{}, err
	}
	r, ok := s.f.returns[id]
	if !ok {
		return domain.ReturnRequest{}, remoteErr("get return", 404, "Return not found")
	}
	return r, nil
}

func (s fakeReturns) ListByOrder(ctx context.Context, orderID string) ([]domain.ReturnRequest, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.enter(ctx, "returns.list"); err != nil {
		return nil, err
	}
	var out []domain.ReturnRequest
	for _, r := range s.f.returns {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s fakeReturns) transition(ctx context.Context, call, id string, status domain.ReturnStatus) (domain.ReturnRequest, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.enter(ctx, call); err != nil {
		return domain.ReturnRequest{}, err
	}
	r := s.f.returns[id]
	r.Status = status
	s.f.returns[id] = r
	return r, s.f.exit(call)
}

func (s fakeReturns) Update(ctx context.Context, id string, input domain.QualityCheckInput) (domain.ReturnRequest, error) {
	return s.transition(ctx, "returns.update", id, domain.ReturnStatusQualityChecked)
}

func (s fakeReturns) Approve(ctx context.Context, id, _ string) (domain.ReturnRequest, error) {
	status := domain.ReturnStatusApproved
	if s.f.approveStatus != "" {
		status = s.f.approveStatus
	}
	return s.transition(ctx, "returns.approve", id, status)
}

func (s fakeReturns) Process(ctx context.Context, id string, _ bool) (domain.ReturnRequest, error) {
	return s.transition(ctx, "returns.process", id, domain.ReturnStatusProcessed)
}

func (s fakeReturns) Complete(ctx context.Context, id string) (domain.ReturnRequest, error) {
	return s.transition(ctx, "returns.complete", id, domain.ReturnStatusCompleted)
}

type fakeRefunds struct{ f *fakeBackend }

func (s fakeRefunds) Create(ctx context.Context, input domain.CreateRefundInput) (domain.RefundRequest, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.enter(ctx, "refunds.create"); err != nil {
		return domain.RefundRequest{}, err
	}
	s.f.lastRefund = input
	r := domain.RefundRequest{
		ID:            s.f.nextID("refund"),
		ReturnID:      input.ReturnID,
		OrderID:       input.OrderID,
		Amount:        input.Amount,
		Type:          input.Type,
		Method:        input.Method,
		Status:        domain.RefundStatusCreated,
		Reference:     input.Reference,
		MethodDetails: input.MethodDetails,
	}
	s.f.refunds[r.ID] = r
	return r, s.f.exit("refunds.create")
}

func (s fakeRefunds) Get(ctx context.Context, id string) (domain.RefundRequest, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.enter(ctx, "refunds.get"); err != nil {
		return domain.RefundRequest{}, err
	}
	return s.f.refunds[id], nil
}

func (s fakeRefunds) ListByReturn(ctx context.Context, returnID string) ([]domain.RefundRequest, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.enter(ctx, "refunds.list"); err != nil {
		return nil, err
	}
	var out []domain.RefundRequest
	for _, r := range s.f.refunds {
		if r.ReturnID == returnID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s fakeRefunds) transition(ctx context.Context, call, id, reference string, status domain.RefundStatus) (domain.RefundRequest, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.enter(ctx, call); err != nil {
		return domain.RefundRequest{}, err
	}
	r := s.f.refunds[id]
	r.Status = status
	r.TransactionReference = reference
	s.f.refunds[id] = r
	return r, s.f.exit(call)
}

func (s fakeRefunds) Process(ctx context.Context, id, reference string) (domain.RefundRequest, error) {
	return s.transition(ctx, "refunds.process", id, reference, domain.RefundStatusProcessing)
}

func (s fakeRefunds) Complete(ctx context.Context, id, reference string) (domain.RefundRequest, error) {
	return s.transition(ctx, "refunds.complete", id, reference, domain.RefundStatusCompleted)
}

type fakeDefects struct{ f *fakeBackend }

func (s fakeDefects) apply(ctx context.Context, action, id string) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.enter(ctx, "defects."+action+":"+id); err != nil {
		return err
	}
	return s.f.defectErrs[id]
}

func (s fakeDefects) MarkSold(ctx context.Context, id string) error {
	return s.apply(ctx, "mark_sold", id)
}

func (s fakeDefects) ReturnToVendor(ctx context.Context, id, _, _ string) error {
	return s.apply(ctx, "return_to_vendor", id)
}

func (s fakeDefects) Dispose(ctx context.Context, id, _ string) error {
	return s.apply(ctx, "dispose", id)
}

// spyPublisher записывает события, ушедшие в Kafka.
type spyPublisher struct {
	mu     sync.Mutex
	topics []string
	keys   []string
	events []interface{}
	err    error
}

func (p *spyPublisher) PublishEvent(topic, key string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)
	return p.err
}
