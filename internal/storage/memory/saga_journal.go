package memory

import (
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// sagaJournalInMemory: журнал саг процесса. Записи живут до рестарта.
type sagaJournalInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.SagaRecord
}

// NewSagaJournal создаёт in-memory журнал саг.
func NewSagaJournal() domain.SagaJournal {
	return &sagaJournalInMemory{items: make(map[string]domain.SagaRecord)}
}

// Save создаёт или перезаписывает запись саги.
func (j *sagaJournalInMemory) Save(record domain.SagaRecord) error {
	if strings.TrimSpace(record.ID) == "" {
		return domain.ErrSagaNotFound
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.items[record.ID] = record.Clone()
	return nil
}

// Get возвращает копию записи или ErrSagaNotFound.
func (j *sagaJournalInMemory) Get(id string) (domain.SagaRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	record, ok := j.items[id]
	if !ok {
		return domain.SagaRecord{}, domain.ErrSagaNotFound
	}
	return record.Clone(), nil
}

// List возвращает саги заказа, новые первыми. Пустой orderID, все саги.
func (j *sagaJournalInMemory) List(orderID string) ([]domain.SagaRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	result := make([]domain.SagaRecord, 0, len(j.items))
	for _, record := range j.items {
		if orderID != "" && record.OrderID != orderID {
			continue
		}
		result = append(result, record.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		if !result[i].StartedAt.Equal(result[k].StartedAt) {
			return result[i].StartedAt.After(result[k].StartedAt)
		}
		return result[i].ID > result[k].ID
	})
	return result, nil
}

var _ domain.SagaJournal = (*sagaJournalInMemory)(nil)
