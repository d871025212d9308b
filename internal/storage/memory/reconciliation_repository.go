package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

type reconciliationRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.ReconciliationCase
	now   func() time.Time
}

// NewReconciliationRepository создаёт in-memory хранилище кейсов сверки.
func NewReconciliationRepository() domain.ReconciliationRepository {
	return &reconciliationRepositoryInMemory{
		items: make(map[string]domain.ReconciliationCase),
		now:   time.Now,
	}
}

// Create сохраняет кейс; пустой ID генерируется.
func (r *reconciliationRepositoryInMemory) Create(c domain.ReconciliationCase) (domain.ReconciliationCase, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now().UTC()
	}
	c.Resolved = false
	c.ResolutionNote = ""
	c.ResolvedAt = time.Time{}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[c.ID] = c
	return c, nil
}

func (r *reconciliationRepositoryInMemory) Get(id string) (domain.ReconciliationCase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[id]
	if !ok {
		return domain.ReconciliationCase{}, domain.ErrReconciliationNotFound
	}
	return c, nil
}

// ListOpen возвращает незакрытые кейсы, старые первыми.
func (r *reconciliationRepositoryInMemory) ListOpen(limit int) ([]domain.ReconciliationCase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ReconciliationCase, 0)
	for _, c := range r.items {
		if !c.Resolved {
			result = append(result, c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Resolve закрывает кейс. Повторное закрытие не меняет исходную заметку.
func (r *reconciliationRepositoryInMemory) Resolve(id, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.items[id]
	if !ok {
		return domain.ErrReconciliationNotFound
	}
	if c.Resolved {
		return nil
	}
	c.Resolved = true
	c.ResolutionNote = strings.TrimSpace(note)
	c.ResolvedAt = r.now().UTC()
	r.items[id] = c
	return nil
}

var _ domain.ReconciliationRepository = (*reconciliationRepositoryInMemory)(nil)
