package saga

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/settlement"
)

const (
	exchangePaymentMethod = "cash"
	exchangePaymentType   = "full"
)

// ExchangeInput: данные заказа на замену.
type ExchangeInput struct {
	StoreID       string
	CustomerID    string
	OriginalOrder string
	Lines         []domain.ReplacementLine
	Difference    float64
	Reference     string
}

// ExchangeCreator создаёт и завершает заказ на замену после возврата средств.
type ExchangeCreator struct {
	orders domain.OrderService
	logger *log.Entry
}

// NewExchangeCreator создаёт компонент заказов обмена.
func NewExchangeCreator(orders domain.OrderService, logger *log.Entry) *ExchangeCreator {
	if logger == nil {
		logger = log.New().WithField("component", "exchange-creator")
	}
	return &ExchangeCreator{orders: orders, logger: logger}
}

// NewOrderTotal: сумма заказа на замену: Σ(unit_price × quantity).
func NewOrderTotal(lines []domain.ReplacementLine) float64 {
	var total float64
	for _, line := range lines {
		total += line.Amount()
	}
	return total
}

// Create создаёт заказ на замену с одной полной оплатой на его собственную сумму.
// Требует CompletedRefund: покупатель «тратит» возвращённые деньги на новый заказ.
func (c *ExchangeCreator) Create(ctx context.Context, _ CompletedRefund, in ExchangeInput) (CreatedExchange, error) {
	total := NewOrderTotal(in.Lines)

	items := make([]domain.CreateOrderItem, 0, len(in.Lines))
	for _, line := range in.Lines {
		items = append(items, domain.CreateOrderItem{
			ProductID: line.ProductID,
			BatchID:   line.BatchID,
			BarcodeID: line.BarcodeID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	order, err := c.orders.Create(ctx, domain.CreateOrderInput{
		StoreID:    in.StoreID,
		CustomerID: in.CustomerID,
		Items:      items,
		Payments: []domain.OrderPayment{{
			Method:      exchangePaymentMethod,
			Amount:      settlement.Round2(total),
			PaymentType: exchangePaymentType,
		}},
		Notes:     exchangeNotes(in),
		Reference: in.Reference,
	})
	if err != nil {
		return CreatedExchange{}, newStageError(domain.SagaStageExchangeCreated, err)
	}

	c.logger.WithFields(log.Fields{
		"original_order_id": in.OriginalOrder,
		"exchange_order_id": order.ID,
		"total":             settlement.Format(total),
	}).Info("Exchange order created")
	return CreatedExchange{order: order}, nil
}

// Complete завершает заказ на замену.
func (c *ExchangeCreator) Complete(ctx context.Context, e CreatedExchange) (CompletedExchange, error) {
	order, err := c.orders.Complete(ctx, e.order.ID)
	if err != nil {
		return CompletedExchange{}, newStageError(domain.SagaStageExchangeCompleted, err)
	}
	if order.ID == "" {
		order = e.order
	}
	return CompletedExchange{order: order}, nil
}

// exchangeNotes фиксирует в заказе справочную метку расчёта.
func exchangeNotes(in ExchangeInput) string {
	outcome := settlement.OutcomeOf(in.Difference)
	notes := fmt.Sprintf("Exchange for order %s. Net settlement: %s", in.OriginalOrder, outcome)
	if outcome != settlement.OutcomeNone {
		notes += " " + settlement.Format(abs(in.Difference))
	}
	return notes
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
