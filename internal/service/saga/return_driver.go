package saga

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

const (
	qualityCheckNotes = "Auto-passed quality check"
	approvalNotes     = "Approved by returns console"
)

// ReturnInput: данные для создания ReturnRequest.
type ReturnInput struct {
	OrderID   string
	Items     []domain.SelectedItem
	Reason    domain.ReturnReason
	Type      domain.ReturnType
	Notes     string
	Reference string
}

// ReturnDriver проводит ReturnRequest по шагам created → quality_checked → approved → processed → completed.
// Каждый шаг: один удалённый вызов; повторов и отката нет.
type ReturnDriver struct {
	returns domain.ReturnService
	logger  *log.Entry
}

// NewReturnDriver создаёт драйвер возврата.
func NewReturnDriver(returns domain.ReturnService, logger *log.Entry) *ReturnDriver {
	if logger == nil {
		logger = log.New().WithField("component", "return-driver")
	}
	return &ReturnDriver{returns: returns, logger: logger}
}

// Create создаёт возврат. Ошибка здесь не оставляет удалённых следов.
func (d *ReturnDriver) Create(ctx context.Context, in ReturnInput) (CreatedReturn, error) {
	items := make([]domain.ReturnItem, 0, len(in.Items))
	for _, item := range in.Items {
		items = append(items, domain.ReturnItem{
			OrderItemID: item.OrderItemID,
			Quantity:    item.Quantity,
			BarcodeID:   item.BarcodeID,
		})
	}

	req, err := d.returns.Create(ctx, domain.CreateReturnInput{
		OrderID:   in.OrderID,
		Reason:    in.Reason,
		Type:      in.Type,
		Items:     items,
		Notes:     in.Notes,
		Reference: in.Reference,
	})
	if err != nil {
		return CreatedReturn{}, newStageError(domain.SagaStageReturnCreated, err)
	}

	d.logger.WithFields(log.Fields{
		"order_id":  in.OrderID,
		"return_id": req.ID,
	}).Info("Return request created")
	return CreatedReturn{req: req}, nil
}

// Inspect записывает автоматически пройденную проверку качества.
func (d *ReturnDriver) Inspect(ctx context.Context, r CreatedReturn) (InspectedReturn, error) {
	req, err := d.returns.Update(ctx, r.req.ID, domain.QualityCheckInput{Passed: true, Notes: qualityCheckNotes})
	if err != nil {
		return InspectedReturn{}, newStageError(domain.SagaStageReturnInspected, err)
	}
	return InspectedReturn{req: merge(r.req, req)}, nil
}

// Approve одобряет возврат.
func (d *ReturnDriver) Approve(ctx context.Context, r InspectedReturn) (ApprovedReturn, error) {
	req, err := d.returns.Approve(ctx, r.req.ID, approvalNotes)
	if err != nil {
		return ApprovedReturn{}, newStageError(domain.SagaStageReturnApproved, err)
	}
	if err := ensureReturnOpen(req); err != nil {
		return ApprovedReturn{}, newStageError(domain.SagaStageReturnApproved, err)
	}
	return ApprovedReturn{req: merge(r.req, req)}, nil
}

// Process проводит возврат с восстановлением остатков.
func (d *ReturnDriver) Process(ctx context.Context, r ApprovedReturn) (ProcessedReturn, error) {
	req, err := d.returns.Process(ctx, r.req.ID, true)
	if err != nil {
		return ProcessedReturn{}, newStageError(domain.SagaStageReturnProcessed, err)
	}
	return ProcessedReturn{req: merge(r.req, req)}, nil
}

// Complete закрывает возврат.
func (d *ReturnDriver) Complete(ctx context.Context, r ProcessedReturn) (CompletedReturn, error) {
	req, err := d.returns.Complete(ctx, r.req.ID)
	if err != nil {
		return CompletedReturn{}, newStageError(domain.SagaStageReturnCompleted, err)
	}

	d.logger.WithField("return_id", r.req.ID).Info("Return request completed")
	return CompletedReturn{req: merge(r.req, req)}, nil
}

// Run проводит возврат через все шаги строго по порядку.
func (d *ReturnDriver) Run(ctx context.Context, in ReturnInput) (CompletedReturn, error) {
	created, err := d.Create(ctx, in)
	if err != nil {
		return CompletedReturn{}, err
	}
	inspected, err := d.Inspect(ctx, created)
	if err != nil {
		return CompletedReturn{}, err
	}
	approved, err := d.Approve(ctx, inspected)
	if err != nil {
		return CompletedReturn{}, err
	}
	processed, err := d.Process(ctx, approved)
	if err != nil {
		return CompletedReturn{}, err
	}
	return d.Complete(ctx, processed)
}

func ensureReturnOpen(req domain.ReturnRequest) error {
	if !req.Status.Open() {
		return fmt.Errorf("%w: return %s is %s", ErrRemoteClosed, req.ID, req.Status)
	}
	return nil
}

// merge сохраняет известные поля, если backend ответил урезанным телом.
func merge(prev, next domain.ReturnRequest) domain.ReturnRequest {
	if next.ID == "" {
		next.ID = prev.ID
	}
	if next.OrderID == "" {
		next.OrderID = prev.OrderID
	}
	if len(next.Items) == 0 {
		next.Items = prev.Items
	}
	if next.Reference == "" {
		next.Reference = prev.Reference
	}
	return next
}
