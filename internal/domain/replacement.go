package domain

import "fmt"

// ReplacementLine: товар, выдаваемый покупателю взамен при обмене.
type ReplacementLine struct {
	ProductID   string
	ProductName string
	BatchID     string
	BarcodeID   string
	Quantity    int
	UnitPrice   float64
	// Остаток на складе, потолок для Quantity
	AvailableStock int
}

// Amount возвращает стоимость строки без налога.
func (l ReplacementLine) Amount() float64 {
	return float64(l.Quantity) * l.UnitPrice
}

func (l ReplacementLine) sameStock(productID, batchID string) bool {
	return l.ProductID == productID && l.BatchID == batchID
}

// ReplacementCart: редактируемый до отправки набор позиций на замену.
type ReplacementCart struct {
	lines []ReplacementLine
}

// Add добавляет позицию; повторное добавление той же партии увеличивает количество
// в пределах остатка. Возвращает false, если остатка не хватает.
func (c *ReplacementCart) Add(line ReplacementLine) bool {
	if line.AvailableStock <= 0 {
		return false
	}
	qty := line.Quantity
	if qty < 1 {
		qty = 1
	}

	for i := range c.lines {
		if !c.lines[i].sameStock(line.ProductID, line.BatchID) {
			continue
		}
		next := c.lines[i].Quantity + qty
		if next > c.lines[i].AvailableStock {
			return false
		}
		c.lines[i].Quantity = next
		return true
	}

	if qty > line.AvailableStock {
		return false
	}
	line.Quantity = qty
	c.lines = append(c.lines, line)
	return true
}

// SetQuantity меняет количество в пределах [1, остаток]; иначе no-op.
func (c *ReplacementCart) SetQuantity(productID, batchID string, qty int) bool {
	for i := range c.lines {
		if !c.lines[i].sameStock(productID, batchID) {
			continue
		}
		if qty < 1 || qty > c.lines[i].AvailableStock {
			return false
		}
		c.lines[i].Quantity = qty
		return true
	}
	return false
}

// Remove убирает позицию из корзины.
func (c *ReplacementCart) Remove(productID, batchID string) bool {
	for i := range c.lines {
		if c.lines[i].sameStock(productID, batchID) {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return true
		}
	}
	return false
}

// Lines возвращает копию позиций.
func (c *ReplacementCart) Lines() []ReplacementLine {
	result := make([]ReplacementLine, len(c.lines))
	copy(result, c.lines)
	return result
}

// MergeReplacementLines собирает строки через ReplacementCart: повторы одной партии
// складываются. Строка, которая не помещается в остаток, возвращается с суммарным
// количеством, чтобы её отклонил ValidateReplacementLines.
func MergeReplacementLines(lines []ReplacementLine) []ReplacementLine {
	if len(lines) == 0 {
		return nil
	}

	var cart ReplacementCart
	var rejected []ReplacementLine
	for _, line := range lines {
		if line.Quantity >= 1 && cart.Add(line) {
			continue
		}
		for _, held := range cart.lines {
			if held.sameStock(line.ProductID, line.BatchID) {
				line.Quantity += held.Quantity
				break
			}
		}
		rejected = append(rejected, line)
	}
	return append(cart.Lines(), rejected...)
}

// ValidateReplacementLines проверяет количества относительно остатков.
func ValidateReplacementLines(lines []ReplacementLine) []error {
	var errs []error
	for _, line := range lines {
		if line.Quantity < 1 || line.Quantity > line.AvailableStock {
			errs = append(errs, fmt.Errorf("%w: product %s qty %d (stock %d)", ErrReplacementQtyInvalid, line.ProductID, line.Quantity, line.AvailableStock))
		}
		if line.UnitPrice < 0 {
			errs = append(errs, fmt.Errorf("%w: product %s has negative price", ErrReplacementPriceInvalid, line.ProductID))
		}
	}
	return errs
}
