// Package settlement содержит чистые расчёты по возврату/обмену: дельту суммы,
// НДС и разбиение тендера. Все функции без побочных эффектов и пересчитываются
// на каждый запрос.
package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// Outcome: направление денежного движения по знаку difference.
type Outcome string

const (
	OutcomePayment Outcome = "payment"
	OutcomeRefund  Outcome = "refund"
	OutcomeNone    Outcome = "none"
)

// Delta: производный финансовый расчёт, не хранится.
type Delta struct {
	OriginalAmount float64
	NewSubtotal    float64
	VATRate        float64
	VATAmount      float64
	TotalNewAmount float64
	Difference     float64
}

// ComputeDelta считает дельту в float-арифметике, как её считает upstream.
// Пустой выбор даёт originalAmount = 0 и difference = totalNewAmount.
func ComputeDelta(order domain.Order, selected []domain.SelectedItem, replacements []domain.ReplacementLine, vatRate float64) Delta {
	var original float64
	for _, sel := range selected {
		line, ok := order.ItemByID(sel.OrderItemID)
		if !ok {
			continue
		}
		original += float64(sel.Quantity) * line.UnitPrice
	}

	var subtotal float64
	for _, r := range replacements {
		subtotal += r.Amount()
	}

	vat := subtotal * vatRate
	total := subtotal + vat

	return Delta{
		OriginalAmount: original,
		NewSubtotal:    subtotal,
		VATRate:        vatRate,
		VATAmount:      vat,
		TotalNewAmount: total,
		Difference:     total - original,
	}
}

// Outcome классифицирует дельту по знаку difference с точностью до копейки.
func (d Delta) Outcome() Outcome {
	return OutcomeOf(d.Difference)
}

// RefundAmount: сумма возврата средств: |difference| для возврата,
// originalAmount для обмена.
func (d Delta) RefundAmount(kind domain.SagaKind) float64 {
	if kind == domain.SagaKindExchange {
		return d.OriginalAmount
	}
	if d.Difference < 0 {
		return -d.Difference
	}
	return d.Difference
}

// OutcomeOf возвращает метку по знаку суммы.
func OutcomeOf(difference float64) Outcome {
	switch rounded := decimal.NewFromFloat(difference).Round(2); rounded.Sign() {
	case 1:
		return OutcomePayment
	case -1:
		return OutcomeRefund
	default:
		return OutcomeNone
	}
}

// InferVATRate восстанавливает ставку из заказа: (total - subtotal) / subtotal.
func InferVATRate(order domain.Order) float64 {
	if order.Subtotal <= 0 {
		return 0
	}
	rate := (order.TotalAmount - order.Subtotal) / order.Subtotal
	if rate < 0 {
		return 0
	}
	return rate
}

// VATRateFromPercent переводит редактируемый оператором процент в ставку.
func VATRateFromPercent(pct float64) float64 {
	if pct <= 0 {
		return 0
	}
	return pct / 100
}

// Round2 округляет сумму до двух знаков только для отображения.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Format возвращает сумму строкой с двумя знаками.
func Format(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
