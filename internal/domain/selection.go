package domain

import "fmt"

// SelectedItem: позиция заказа, отмеченная для возврата/обмена.
type SelectedItem struct {
	OrderItemID string
	Quantity    int
	BarcodeID   string
}

// Selection хранит отмеченные позиции и выбранное количество по каждой.
// Множество выбранных id, карта количеств и карта штрихкодов всегда согласованы.
type Selection struct {
	order      Order
	selected   map[string]struct{}
	quantities map[string]int
	// штрихкод, указанный оператором; без него берётся штрихкод позиции заказа
	barcodes map[string]string
}

// NewSelection создаёт пустой выбор поверх загруженного заказа.
func NewSelection(order Order) *Selection {
	return &Selection{
		order:      order,
		selected:   make(map[string]struct{}),
		quantities: make(map[string]int),
		barcodes:   make(map[string]string),
	}
}

// SelectionFromItems восстанавливает выбор из запроса и проверяет его против заказа.
func SelectionFromItems(order Order, items []SelectedItem) (*Selection, error) {
	sel := NewSelection(order)

	var errs []error
	for _, item := range items {
		line, ok := order.ItemByID(item.OrderItemID)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrItemNotInOrder, item.OrderItemID))
			continue
		}
		if item.Quantity < 1 || item.Quantity > line.Quantity {
			errs = append(errs, fmt.Errorf("%w: item %s qty %d (max %d)", ErrQuantityInvalid, item.OrderItemID, item.Quantity, line.Quantity))
			continue
		}
		if !sel.Selected(item.OrderItemID) {
			sel.Toggle(item.OrderItemID)
		}
		sel.SetQuantity(item.OrderItemID, item.Quantity)
		sel.SetBarcode(item.OrderItemID, item.BarcodeID)
	}

	if err := NewValidationError(errs); err != nil {
		return nil, err
	}
	return sel, nil
}

// Toggle добавляет или убирает позицию. Возвращает true, если позиция теперь выбрана.
// Новая позиция начинает с количества 1; неизвестный id игнорируется.
func (s *Selection) Toggle(itemID string) bool {
	if _, ok := s.order.ItemByID(itemID); !ok {
		return false
	}
	if _, ok := s.selected[itemID]; ok {
		delete(s.selected, itemID)
		delete(s.quantities, itemID)
		delete(s.barcodes, itemID)
		return false
	}
	s.selected[itemID] = struct{}{}
	s.quantities[itemID] = 1
	return true
}

// SetQuantity меняет количество; вне диапазона [1, qty позиции] это no-op.
func (s *Selection) SetQuantity(itemID string, qty int) bool {
	if _, ok := s.selected[itemID]; !ok {
		return false
	}
	line, ok := s.order.ItemByID(itemID)
	if !ok || qty < 1 || qty > line.Quantity {
		return false
	}
	s.quantities[itemID] = qty
	return true
}

// SetBarcode задаёт штрихкод, по которому backend вернёт товар на склад.
// Пустое значение возвращает штрихкод позиции заказа.
func (s *Selection) SetBarcode(itemID, barcodeID string) bool {
	if _, ok := s.selected[itemID]; !ok {
		return false
	}
	if barcodeID == "" {
		delete(s.barcodes, itemID)
		return true
	}
	s.barcodes[itemID] = barcodeID
	return true
}

// Barcode возвращает штрихкод выбранной позиции.
func (s *Selection) Barcode(itemID string) string {
	if _, ok := s.selected[itemID]; !ok {
		return ""
	}
	if barcode, ok := s.barcodes[itemID]; ok {
		return barcode
	}
	line, _ := s.order.ItemByID(itemID)
	return line.BarcodeID
}

// Selected сообщает, отмечена ли позиция.
func (s *Selection) Selected(itemID string) bool {
	_, ok := s.selected[itemID]
	return ok
}

// Quantity возвращает выбранное количество (0, если позиция не выбрана).
func (s *Selection) Quantity(itemID string) int {
	return s.quantities[itemID]
}

// Len возвращает число выбранных позиций.
func (s *Selection) Len() int {
	return len(s.selected)
}

// Order возвращает заказ, против которого построен выбор.
func (s *Selection) Order() Order {
	return s.order
}

// Items возвращает выбор в порядке позиций заказа.
func (s *Selection) Items() []SelectedItem {
	result := make([]SelectedItem, 0, len(s.selected))
	for _, line := range s.order.Items {
		if _, ok := s.selected[line.ID]; !ok {
			continue
		}
		result = append(result, SelectedItem{
			OrderItemID: line.ID,
			Quantity:    s.quantities[line.ID],
			BarcodeID:   s.Barcode(line.ID),
		})
	}
	return result
}
