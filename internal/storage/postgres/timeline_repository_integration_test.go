package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)

	started := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)

	require.NoError(t, repo.Append(domain.TimelineEvent{
		SagaID:   "saga-1",
		Type:     "saga.step_completed",
		Stage:    domain.SagaStageReturnCreated,
		Reason:   "return_created",
		Occurred: started.Add(10 * time.Second),
	}))
	require.NoError(t, repo.Append(domain.TimelineEvent{
		SagaID:   "saga-1",
		Type:     "saga.started",
		Reason:   "return",
		Occurred: started,
	}))
	// пустое время заполняется текущим
	require.NoError(t, repo.Append(domain.TimelineEvent{SagaID: "saga-1", Type: "saga.completed"}))
	require.NoError(t, repo.Append(domain.TimelineEvent{SagaID: "saga-2", Type: "saga.started", Occurred: started}))

	events, err := repo.List("saga-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, "saga.started", events[0].Type)
	require.Equal(t, "saga.step_completed", events[1].Type)
	require.Equal(t, domain.SagaStageReturnCreated, events[1].Stage)
	require.Equal(t, "saga.completed", events[2].Type)
	require.False(t, events[2].Occurred.IsZero())
	for _, event := range events {
		require.Equal(t, "saga-1", event.SagaID)
	}
}

func TestTimelineRepository_PostgresUnknownSaga(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)

	events, err := repo.List("missing-saga")
	require.NoError(t, err)
	require.Empty(t, events)

	require.ErrorIs(t, repo.Append(domain.TimelineEvent{Type: "saga.started"}), domain.ErrTimelineEventInvalid)
}
