package saga

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/backend"
	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/metrics"
)

// BulkFailure: позиция, переход которой не удался.
type BulkFailure struct {
	ID      string
	Message string
}

// BulkResult: итог последовательной обработки дефектных позиций.
type BulkResult struct {
	Action       domain.DefectAction
	SuccessCount int
	ErrorCount   int
	Failures     []BulkFailure
	Message      string
	// Refresh: список дефектов на экране нужно перечитать
	Refresh bool
}

// BulkCoordinator применяет переход к каждой позиции по очереди и не останавливается на ошибках.
type BulkCoordinator struct {
	defects domain.DefectService
	metrics *metrics.SagaMetrics
	logger  *log.Entry
}

// NewBulkCoordinator создаёт координатор bulk-операций.
func NewBulkCoordinator(defects domain.DefectService, m *metrics.SagaMetrics, logger *log.Entry) *BulkCoordinator {
	if logger == nil {
		logger = log.New().WithField("component", "bulk-defects")
	}
	return &BulkCoordinator{defects: defects, metrics: m, logger: logger}
}

// ReturnToVendor отправляет выбранные позиции поставщику.
func (c *BulkCoordinator) ReturnToVendor(ctx context.Context, ids []string, vendorID, notes string) (BulkResult, error) {
	ids, errs := checkIDs(ids)
	if strings.TrimSpace(vendorID) == "" {
		errs = append(errs, domain.ErrVendorRequired)
	}
	if err := domain.NewValidationError(errs); err != nil {
		return BulkResult{}, err
	}

	return c.run(ctx, domain.DefectActionReturnToVendor, ids, func(ctx context.Context, id string) error {
		return c.defects.ReturnToVendor(ctx, id, vendorID, notes)
	}), nil
}

// Dispose списывает выбранные позиции.
func (c *BulkCoordinator) Dispose(ctx context.Context, ids []string, notes string) (BulkResult, error) {
	ids, errs := checkIDs(ids)
	if err := domain.NewValidationError(errs); err != nil {
		return BulkResult{}, err
	}
	return c.run(ctx, domain.DefectActionDispose, ids, func(ctx context.Context, id string) error {
		return c.defects.Dispose(ctx, id, notes)
	}), nil
}

// MarkSold помечает выбранные позиции проданными.
func (c *BulkCoordinator) MarkSold(ctx context.Context, ids []string) (BulkResult, error) {
	ids, errs := checkIDs(ids)
	if err := domain.NewValidationError(errs); err != nil {
		return BulkResult{}, err
	}
	return c.run(ctx, domain.DefectActionMarkSold, ids, c.defects.MarkSold), nil
}

func (c *BulkCoordinator) run(ctx context.Context, action domain.DefectAction, ids []string, apply func(context.Context, string) error) BulkResult {
	result := BulkResult{Action: action}

	for _, id := range ids {
		err := apply(ctx, id)
		if c.metrics != nil {
			c.metrics.RecordBulkItem(string(action), err == nil)
		}
		if err != nil {
			result.ErrorCount++
			result.Failures = append(result.Failures, BulkFailure{ID: id, Message: backend.Message(err)})
			c.logger.WithError(err).WithFields(log.Fields{
				"action":    action,
				"defect_id": id,
			}).Warn("Defect transition failed")
			continue
		}
		result.SuccessCount++
	}

	result.Message = bulkMessage(result)
	result.Refresh = result.SuccessCount > 0

	c.logger.WithFields(log.Fields{
		"action":  action,
		"success": result.SuccessCount,
		"failed":  result.ErrorCount,
	}).Info("Bulk defect transition finished")
	return result
}

var bulkVerbs = map[domain.DefectAction]string{
	domain.DefectActionReturnToVendor: "Returned",
	domain.DefectActionDispose:        "Disposed",
	domain.DefectActionMarkSold:       "Marked sold",
}

func bulkMessage(r BulkResult) string {
	if r.SuccessCount > 0 {
		msg := fmt.Sprintf("%s %s.", bulkVerbs[r.Action], pluralItems(r.SuccessCount))
		if r.ErrorCount > 0 {
			msg += fmt.Sprintf(" %d failed.", r.ErrorCount)
		}
		return msg
	}

	messages := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		messages = append(messages, f.ID+": "+f.Message)
	}
	return "All items failed: " + strings.Join(messages, "; ")
}

func pluralItems(n int) string {
	if n == 1 {
		return "1 item"
	}
	return fmt.Sprintf("%d items", n)
}

// checkIDs обрезает пробелы и отклоняет пустые и повторяющиеся id:
// каждая выбранная позиция попадает ровно в один из счётчиков результата.
func checkIDs(ids []string) ([]string, []error) {
	if len(ids) == 0 {
		return nil, []error{domain.ErrDefectsRequired}
	}

	var errs []error
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for i, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			errs = append(errs, fmt.Errorf("%w: empty id at position %d", domain.ErrDefectIDInvalid, i))
			continue
		}
		if _, ok := seen[id]; ok {
			errs = append(errs, fmt.Errorf("%w: %s selected twice", domain.ErrDefectIDInvalid, id))
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, errs
}
