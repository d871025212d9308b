package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

const (
	insertTimelineEventSQL = `
		INSERT INTO timeline_events (saga_id, type, stage, reason, occurred)
		VALUES ($1, $2, $3, $4, $5)`

	listTimelineEventsSQL = `
		SELECT saga_id, type, stage, reason, occurred
		FROM timeline_events
		WHERE saga_id = $1
		ORDER BY occurred, id`
)

// timelineRepository: журнал событий саг; порядок вставки сохраняется через BIGSERIAL id.
type timelineRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTimelineRepository создаёт PostgreSQL-хранилище timeline саг.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB(), now: time.Now}
}

func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Occurred.IsZero() {
		event.Occurred = r.now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, insertTimelineEventSQL,
		event.SagaID, event.Type, string(event.Stage), event.Reason, event.Occurred.UTC())
	if err != nil {
		return fmt.Errorf("append timeline event for saga %s: %w", event.SagaID, err)
	}
	return nil
}

// List возвращает события саги в порядке возникновения.
func (r *timelineRepository) List(sagaID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, listTimelineEventsSQL, sagaID)
	if err != nil {
		return nil, fmt.Errorf("list timeline for saga %s: %w", sagaID, err)
	}
	defer rows.Close()

	var events []domain.TimelineEvent
	for rows.Next() {
		var (
			event domain.TimelineEvent
			stage string
		)
		if err := rows.Scan(&event.SagaID, &event.Type, &stage, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		event.Stage = domain.SagaStage(stage)
		event.Occurred = event.Occurred.UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
