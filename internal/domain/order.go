package domain

import "time"

// OrderStatus описывает статус заказа на стороне backend.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order: снимок завершённой продажи. Локально не изменяется, только перечитывается.
type Order struct {
	// Идентификатор заказа на backend
	ID string
	// Человекочитаемый номер заказа
	OrderNumber string
	// Магазин, в котором была продажа
	StoreID string
	// Покупатель (может быть пустым для анонимной продажи)
	CustomerID string
	// Статус заказа
	Status OrderStatus
	// Позиции заказа; в ответах списка могут отсутствовать
	Items []OrderItem
	// Суммы заказа
	Subtotal       float64
	TaxAmount      float64
	DiscountAmount float64
	ShippingAmount float64
	TotalAmount    float64
	// Оплачено и остаток к оплате
	PaidAmount        float64
	OutstandingAmount float64
	// Клиентская метка, с которой заказ был создан (для заказов обмена, id саги)
	Reference string
	CreatedAt time.Time
}

// OrderItem описывает одну проданную позицию.
type OrderItem struct {
	ID          string
	ProductID   string
	ProductName string
	SKU         string
	// Партия, на которую нужно вернуть остаток
	BatchID string
	// Штрихкод конкретной единицы (опционально)
	BarcodeID string
	// Количество: потолок для выбора возврата
	Quantity       int
	UnitPrice      float64
	DiscountAmount float64
	TaxAmount      float64
	TotalAmount    float64
}

// ItemByID возвращает позицию заказа по идентификатору.
func (o Order) ItemByID(id string) (OrderItem, bool) {
	for _, item := range o.Items {
		if item.ID == id {
			return item, true
		}
	}
	return OrderItem{}, false
}

// OrderFilter задаёт фильтры для списка заказов.
type OrderFilter struct {
	StoreID    string
	CustomerID string
	Status     OrderStatus
	Reference  string
	Page       int
	PerPage    int
}

// OrderPayment: запись об оплате при создании заказа.
type OrderPayment struct {
	Method      string
	Amount      float64
	PaymentType string
	Details     map[string]float64
}

// CreateOrderItem: позиция нового заказа.
type CreateOrderItem struct {
	ProductID string
	BatchID   string
	BarcodeID string
	Quantity  int
	UnitPrice float64
}

// CreateOrderInput: payload создания заказа.
type CreateOrderInput struct {
	StoreID    string
	CustomerID string
	Items      []CreateOrderItem
	Payments   []OrderPayment
	Notes      string
	// Reference: клиентская метка саги; по ней заказ находится при resume
	Reference string
}
