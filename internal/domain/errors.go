package domain

import (
	"errors"
	"strings"
)

var (
	// Ошибка пустого выбора позиций для возврата/обмена.
	ErrSelectionEmpty = errors.New("at least one item must be selected")
	// Ошибка некорректного количества в выборе (вне диапазона [1, qty позиции]).
	ErrQuantityInvalid = errors.New("selected quantity is out of range")
	// Ошибка выбора позиции, которой нет в заказе.
	ErrItemNotInOrder = errors.New("selected item does not belong to order")
	// Ошибка отсутствующей причины возврата.
	ErrReasonRequired = errors.New("return reason is required")
	// Ошибка неизвестного кода причины.
	ErrReasonInvalid = errors.New("return reason is not supported")
	// Ошибка неизвестного типа возврата.
	ErrReturnTypeInvalid = errors.New("return type is not supported")
	// Ошибка отсутствующего поставщика для bulk-возврата.
	ErrVendorRequired = errors.New("vendor_id is required")
	// Ошибка пустого списка дефектных позиций.
	ErrDefectsRequired = errors.New("at least one defective item must be selected")
	// Ошибка пустого или повторяющегося id дефектной позиции.
	ErrDefectIDInvalid = errors.New("defective item ids must be non-empty and unique")
	// Ошибка отсутствующего магазина для нового заказа.
	ErrStoreRequired = errors.New("store_id is required")
	// Ошибка количества позиции на замену (<= 0 или больше остатка).
	ErrReplacementQtyInvalid = errors.New("replacement quantity exceeds available stock")
	// Ошибка отрицательной цены позиции на замену.
	ErrReplacementPriceInvalid = errors.New("replacement unit price must be non-negative")
	// Ошибка отрицательной суммы в тендере.
	ErrTenderNegative = errors.New("tender amounts must be non-negative")
	// Ошибка неподдерживаемого номинала купюры.
	ErrDenominationInvalid = errors.New("note denomination is not supported")
	// Ошибка отрицательной ставки НДС.
	ErrVATRateInvalid = errors.New("vat rate must be non-negative")
	// ErrOrderIDRequired возвращается, если не передан идентификатор заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// ErrOrderNotFound возвращается, если backend не нашёл заказ.
	ErrOrderNotFound = errors.New("order not found")
	// ErrSagaNotFound возвращается, если сага отсутствует в журнале.
	ErrSagaNotFound = errors.New("saga not found")
	// ErrSagaInProgress сигнализирует, что по заказу уже выполняется сага.
	ErrSagaInProgress = errors.New("saga already in progress for order")
	// ErrSagaNotResumable возвращается при попытке продолжить завершённую сагу.
	ErrSagaNotResumable = errors.New("saga is not resumable")
	// ErrReconciliationNotFound возвращается, если кейс сверки не найден.
	ErrReconciliationNotFound = errors.New("reconciliation case not found")
	// ErrTimelineEventInvalid: событие без саги или типа.
	ErrTimelineEventInvalid = errors.New("timeline event requires saga id and type")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrIdempotencyKeyRequired: пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired: пустой хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists: ключ уже использован тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch: ключ уже использован другим запросом.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound: запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// ValidationError собирает ошибки локальной валидации: сага при них не стартует.
type ValidationError struct {
	Errs []error
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		parts = append(parts, err.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap позволяет проверять вложенные sentinel-ошибки через errors.Is.
func (e *ValidationError) Unwrap() []error {
	return e.Errs
}

// NewValidationError возвращает nil, если список ошибок пуст.
func NewValidationError(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errs: errs}
}

// IsValidation проверяет, является ли ошибка ошибкой валидации.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
