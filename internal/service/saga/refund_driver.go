package saga

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/settlement"
)

// RefundInput: параметры возврата средств.
type RefundInput struct {
	Amount    float64
	Tender    domain.Tender
	Reference string
	Notes     string
}

// RefundDriver проводит RefundRequest по шагам created → processing → completed.
type RefundDriver struct {
	refunds domain.RefundService
	logger  *log.Entry
}

// NewRefundDriver создаёт драйвер возврата средств.
func NewRefundDriver(refunds domain.RefundService, logger *log.Entry) *RefundDriver {
	if logger == nil {
		logger = log.New().WithField("component", "refund-driver")
	}
	return &RefundDriver{refunds: refunds, logger: logger}
}

// Create создаёт возврат средств. Требует CompletedReturn: до закрытия возврата деньги не двигаются.
func (d *RefundDriver) Create(ctx context.Context, ret CompletedReturn, in RefundInput) (CreatedRefund, error) {
	refund, err := d.refunds.Create(ctx, domain.CreateRefundInput{
		ReturnID:      ret.req.ID,
		OrderID:       ret.req.OrderID,
		Amount:        settlement.Round2(in.Amount),
		Type:          domain.RefundTypeFull,
		Method:        domain.RefundMethodCash,
		MethodDetails: settlement.MethodDetails(in.Tender),
		Reference:     in.Reference,
		Notes:         in.Notes,
	})
	if err != nil {
		return CreatedRefund{}, newStageError(domain.SagaStageRefundCreated, err)
	}
	if !refund.Status.Open() {
		return CreatedRefund{}, newStageError(domain.SagaStageRefundCreated,
			fmt.Errorf("%w: refund %s is %s", ErrRemoteClosed, refund.ID, refund.Status))
	}

	d.logger.WithFields(log.Fields{
		"return_id": ret.req.ID,
		"refund_id": refund.ID,
		"amount":    settlement.Format(in.Amount),
	}).Info("Refund request created")
	return CreatedRefund{refund: refund, reference: in.Reference}, nil
}

// Process переводит возврат средств в processing.
func (d *RefundDriver) Process(ctx context.Context, r CreatedRefund) (ProcessingRefund, error) {
	refund, err := d.refunds.Process(ctx, r.refund.ID, domain.TransactionReference(r.reference, "process"))
	if err != nil {
		return ProcessingRefund{}, newStageError(domain.SagaStageRefundProcessing, err)
	}
	return ProcessingRefund{refund: mergeRefund(r.refund, refund), reference: r.reference}, nil
}

// Complete завершает возврат средств.
func (d *RefundDriver) Complete(ctx context.Context, r ProcessingRefund) (CompletedRefund, error) {
	refund, err := d.refunds.Complete(ctx, r.refund.ID, domain.TransactionReference(r.reference, "complete"))
	if err != nil {
		return CompletedRefund{}, newStageError(domain.SagaStageRefundCompleted, err)
	}

	d.logger.WithField("refund_id", r.refund.ID).Info("Refund request completed")
	return CompletedRefund{refund: mergeRefund(r.refund, refund)}, nil
}

// Run проводит возврат средств через все шаги.
func (d *RefundDriver) Run(ctx context.Context, ret CompletedReturn, in RefundInput) (CompletedRefund, error) {
	created, err := d.Create(ctx, ret, in)
	if err != nil {
		return CompletedRefund{}, err
	}
	processing, err := d.Process(ctx, created)
	if err != nil {
		return CompletedRefund{}, err
	}
	return d.Complete(ctx, processing)
}

func mergeRefund(prev, next domain.RefundRequest) domain.RefundRequest {
	if next.ID == "" {
		next.ID = prev.ID
	}
	if next.ReturnID == "" {
		next.ReturnID = prev.ReturnID
	}
	if next.Amount == 0 {
		next.Amount = prev.Amount
	}
	if next.Reference == "" {
		next.Reference = prev.Reference
	}
	return next
}
