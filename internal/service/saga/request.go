package saga

import (
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/settlement"
)

// SubmitRequest: подтверждённая оператором операция возврата или обмена.
type SubmitRequest struct {
	OrderID      string
	Items        []domain.SelectedItem
	Replacements []domain.ReplacementLine
	Reason       domain.ReturnReason
	Type         domain.ReturnType
	Notes        string
	Tender       domain.Tender
	// VATPercent переопределяет ставку; nil, ставка выводится из исходного заказа.
	VATPercent *float64
}

// Kind: обмен, если есть позиции на замену.
func (r SubmitRequest) Kind() domain.SagaKind {
	if len(r.Replacements) > 0 {
		return domain.SagaKindExchange
	}
	return domain.SagaKindReturn
}

// validateLocal проверяет всё, что можно проверить без загрузки заказа.
func (r SubmitRequest) validateLocal() error {
	var errs []error
	if strings.TrimSpace(r.OrderID) == "" {
		errs = append(errs, domain.ErrOrderIDRequired)
	}
	if len(r.Items) == 0 {
		errs = append(errs, domain.ErrSelectionEmpty)
	}
	switch {
	case r.Reason == "":
		errs = append(errs, domain.ErrReasonRequired)
	case !r.Reason.Valid():
		errs = append(errs, domain.ErrReasonInvalid)
	}
	if !r.Type.Valid() {
		errs = append(errs, domain.ErrReturnTypeInvalid)
	}
	errs = append(errs, domain.ValidateReplacementLines(r.Replacements)...)
	errs = append(errs, r.Tender.Validate()...)
	if r.VATPercent != nil && *r.VATPercent < 0 {
		errs = append(errs, domain.ErrVATRateInvalid)
	}
	return domain.NewValidationError(errs)
}

// Settlement: расчёт по операции: дельта, сумма к возврату, тендер и инструкция кассиру.
type Settlement struct {
	Kind          domain.SagaKind
	Delta         settlement.Delta
	Outcome       settlement.Outcome
	RefundAmount  float64
	NewOrderTotal float64
	Tender        settlement.TenderSplit
	Instruction   string
}

func newSettlement(kind domain.SagaKind, delta settlement.Delta, tender domain.Tender, replacements []domain.ReplacementLine) Settlement {
	s := Settlement{
		Kind:         kind,
		Delta:        delta,
		Outcome:      delta.Outcome(),
		RefundAmount: delta.RefundAmount(kind),
		Tender:       settlement.SplitTender(tender, delta.Difference),
	}
	if kind == domain.SagaKindExchange {
		s.NewOrderTotal = NewOrderTotal(replacements)
	}
	s.Instruction = instruction(s)
	return s
}

func (s Settlement) snapshot() domain.SettlementSnapshot {
	return domain.SettlementSnapshot{
		OriginalAmount: s.Delta.OriginalAmount,
		NewSubtotal:    s.Delta.NewSubtotal,
		VATRate:        s.Delta.VATRate,
		VATAmount:      s.Delta.VATAmount,
		TotalNewAmount: s.Delta.TotalNewAmount,
		Difference:     s.Delta.Difference,
		RefundAmount:   s.RefundAmount,
		Outcome:        string(s.Outcome),
		TotalTendered:  s.Tender.TotalTendered,
		Due:            s.Tender.Due,
	}
}

// needsRefund: обмен всегда проводит возврат средств, возврат только при движении денег.
func (s Settlement) needsRefund() bool {
	if s.Kind == domain.SagaKindExchange {
		return true
	}
	return s.Outcome != settlement.OutcomeNone
}

func instruction(s Settlement) string {
	switch s.Outcome {
	case settlement.OutcomePayment:
		msg := fmt.Sprintf("Collect %s from customer", settlement.Format(s.Delta.Difference))
		if s.Tender.Due > 0 {
			msg += fmt.Sprintf(" (%s still due)", settlement.Format(s.Tender.Due))
		}
		return msg
	case settlement.OutcomeRefund:
		return fmt.Sprintf("Hand %s to customer", settlement.Format(abs(s.Delta.Difference)))
	default:
		return "No money changes hands"
	}
}

// Result: итог саги для оператора.
type Result struct {
	SagaID          string
	Kind            domain.SagaKind
	Status          domain.SagaStatus
	Stage           domain.SagaStage
	ReturnID        string
	RefundID        string
	ExchangeOrderID string
	// ReconciliationID: кейс ручной сверки, если сага на него попала
	ReconciliationID string
	Settlement       Settlement
}
