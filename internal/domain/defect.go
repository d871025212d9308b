package domain

// DefectAction: переход, применяемый к дефектной позиции.
type DefectAction string

const (
	DefectActionReturnToVendor DefectAction = "return_to_vendor"
	DefectActionDispose        DefectAction = "dispose"
	DefectActionMarkSold       DefectAction = "mark_sold"
)

// DefectiveProduct: дефектная единица товара на backend.
type DefectiveProduct struct {
	ID        string
	ProductID string
	BarcodeID string
	Status    string
	VendorID  string
	Notes     string
}
