package settlement

import "github.com/vladislavdragonenkov/retailops/internal/domain"

// CashMode: способ ввода наличных оператором.
type CashMode string

const (
	CashModeManual CashMode = "manual"
	CashModeNotes  CashMode = "notes"
)

// CashEntry моделирует ввод наличных. Переключение режима обнуляет другой режим.
type CashEntry struct {
	mode   CashMode
	manual float64
	notes  domain.NoteCounts
}

// NewCashEntry создаёт ввод в ручном режиме.
func NewCashEntry() *CashEntry {
	return &CashEntry{mode: CashModeManual, notes: domain.NoteCounts{}}
}

// Mode возвращает текущий режим.
func (c *CashEntry) Mode() CashMode {
	return c.mode
}

// SetManual задаёт сумму вручную и обнуляет подсчёт купюр.
func (c *CashEntry) SetManual(amount float64) error {
	if amount < 0 {
		return domain.ErrTenderNegative
	}
	c.mode = CashModeManual
	c.notes = domain.NoteCounts{}
	c.manual = amount
	return nil
}

// SetNoteCount задаёт количество купюр номинала и обнуляет ручную сумму.
func (c *CashEntry) SetNoteCount(denomination, count int) error {
	if !domain.ValidDenomination(denomination) {
		return domain.ErrDenominationInvalid
	}
	if count < 0 {
		return domain.ErrTenderNegative
	}
	c.mode = CashModeNotes
	c.manual = 0
	if c.notes == nil {
		c.notes = domain.NoteCounts{}
	}
	if count == 0 {
		delete(c.notes, denomination)
	} else {
		c.notes[denomination] = count
	}
	return nil
}

// Manual возвращает ручную сумму.
func (c *CashEntry) Manual() float64 {
	return c.manual
}

// Notes возвращает копию подсчёта купюр.
func (c *CashEntry) Notes() domain.NoteCounts {
	result := make(domain.NoteCounts, len(c.notes))
	for d, n := range c.notes {
		result[d] = n
	}
	return result
}

// Apply переносит ввод в тендер.
func (c *CashEntry) Apply(t domain.Tender) domain.Tender {
	t.Cash = c.manual
	t.Notes = c.Notes()
	return t
}
