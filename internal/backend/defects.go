package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// DefectsAPI реализует domain.DefectService.
type DefectsAPI struct {
	client *Client
}

var _ domain.DefectService = (*DefectsAPI)(nil)

func defectPath(id, action string) string {
	return "/defective-products/" + url.PathEscape(id) + "/" + action
}

// MarkSold помечает дефектную позицию проданной.
func (a *DefectsAPI) MarkSold(ctx context.Context, id string) error {
	return a.client.do(ctx, "defects.mark_sold", http.MethodPost, defectPath(id, "mark-sold"), nil, nil, nil)
}

// ReturnToVendor отправляет позицию поставщику.
func (a *DefectsAPI) ReturnToVendor(ctx context.Context, id, vendorID, vendorNotes string) error {
	payload := returnToVendorPayload{VendorID: vendorID, VendorNotes: vendorNotes}
	return a.client.do(ctx, "defects.return_to_vendor", http.MethodPost, defectPath(id, "return-to-vendor"), nil, payload, nil)
}

// Dispose списывает позицию.
func (a *DefectsAPI) Dispose(ctx context.Context, id, disposalNotes string) error {
	payload := disposePayload{DisposalNotes: disposalNotes}
	return a.client.do(ctx, "defects.dispose", http.MethodPost, defectPath(id, "dispose"), nil, payload, nil)
}
