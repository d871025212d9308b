// Package snapshot загружает неизменяемый снимок заказа на одну сагу.
package snapshot

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// Loader читает заказы через удалённый OrderService.
type Loader struct {
	orders domain.OrderService
	logger *log.Entry
}

// NewLoader создаёт загрузчик снимков.
func NewLoader(orders domain.OrderService, logger *log.Entry) *Loader {
	if logger == nil {
		logger = log.New().WithField("component", "snapshot-loader")
	}
	return &Loader{orders: orders, logger: logger}
}

// Load получает детальный заказ по id. Снимок живёт только в рамках одного вызова саги.
// Детальный ответ считается полным: Expand по нему повторно не ходит.
func (l *Loader) Load(ctx context.Context, orderID string) (*Snapshot, error) {
	if orderID == "" {
		return nil, domain.ErrOrderIDRequired
	}
	order, err := l.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	return &Snapshot{orders: l.orders, order: order, expanded: true, logger: l.logger}, nil
}

// Search возвращает снимки строк списка заказов. Строка без позиций
// догружает их через Expand при первом раскрытии.
func (l *Loader) Search(ctx context.Context, filter domain.OrderFilter) ([]*Snapshot, error) {
	orders, err := l.orders.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	snaps := make([]*Snapshot, 0, len(orders))
	for _, order := range orders {
		snaps = append(snaps, l.fromSummary(order))
	}
	return snaps, nil
}

func (l *Loader) fromSummary(order domain.Order) *Snapshot {
	return &Snapshot{orders: l.orders, order: order, expanded: len(order.Items) > 0, logger: l.logger}
}

// Snapshot: заказ в том виде, в каком его видит одна сага.
type Snapshot struct {
	orders domain.OrderService
	logger *log.Entry

	mu       sync.Mutex
	order    domain.Order
	expanded bool
}

// Order возвращает копию заказа без сетевых вызовов.
func (s *Snapshot) Order() domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order
}

// Expand подгружает детали заказа (партии, штрихкоды, налоги по позициям) один раз.
func (s *Snapshot) Expand(ctx context.Context) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expanded {
		return s.order, nil
	}

	detail, err := s.orders.Get(ctx, s.order.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("expand order %s: %w", s.order.ID, err)
	}
	s.order = detail
	s.expanded = true

	s.logger.WithFields(log.Fields{
		"order_id": detail.ID,
		"items":    len(detail.Items),
	}).Debug("Order snapshot expanded")
	return s.order, nil
}
