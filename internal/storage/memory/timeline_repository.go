package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// timelineRepositoryInMemory хранит события каждой саги отсортированными по времени.
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	now    func() time.Time
	bySaga map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory timeline саг.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{
		now:    time.Now,
		bySaga: make(map[string][]domain.TimelineEvent),
	}
}

// Append вставляет событие после всех событий с тем же или более ранним временем.
func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Occurred.IsZero() {
		event.Occurred = r.now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.bySaga[event.SagaID]
	at := sort.Search(len(events), func(i int) bool {
		return events[i].Occurred.After(event.Occurred)
	})
	events = append(events, domain.TimelineEvent{})
	copy(events[at+1:], events[at:])
	events[at] = event
	r.bySaga[event.SagaID] = events
	return nil
}

func (r *timelineRepositoryInMemory) List(sagaID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.TimelineEvent(nil), r.bySaga[sagaID]...), nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
