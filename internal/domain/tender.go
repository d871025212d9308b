package domain

// Denominations: номиналы купюр, принимаемые при подсчёте наличных.
var Denominations = []int{1000, 500, 200, 100, 50, 20, 10, 5, 2, 1}

// ValidDenomination проверяет, поддерживается ли номинал.
func ValidDenomination(d int) bool {
	for _, v := range Denominations {
		if v == d {
			return true
		}
	}
	return false
}

// NoteCounts: количество купюр по номиналу.
type NoteCounts map[int]int

// Tender: набор платёжных инструментов, покрывающих сумму.
type Tender struct {
	// Наличные, введённые вручную
	Cash float64
	// Подсчёт купюр; ненулевая сумма купюр имеет приоритет над Cash
	Notes NoteCounts
	Card  float64
	Bkash float64
	Nagad float64
	// Комиссия; учитывается только когда платит покупатель
	Fee float64
}

// Validate проверяет неотрицательность сумм и номиналы купюр.
func (t Tender) Validate() []error {
	var errs []error
	if t.Cash < 0 || t.Card < 0 || t.Bkash < 0 || t.Nagad < 0 || t.Fee < 0 {
		errs = append(errs, ErrTenderNegative)
	}
	for d, count := range t.Notes {
		if !ValidDenomination(d) {
			errs = append(errs, ErrDenominationInvalid)
			continue
		}
		if count < 0 {
			errs = append(errs, ErrTenderNegative)
		}
	}
	return errs
}
