package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/storage/memory"
)

func TestSagaJournal_SaveGetIsolated(t *testing.T) {
	journal := memory.NewSagaJournal()
	rec := domain.SagaRecord{
		ID:              "saga-1",
		OrderID:         "order-1",
		Status:          domain.SagaStatusRunning,
		IdempotencyKeys: map[domain.SagaStage]string{domain.SagaStageReturnCreated: "saga-1:return_created"},
		Input:           domain.SagaInput{Items: []domain.SelectedItem{{OrderItemID: "item-1", Quantity: 1}}},
	}
	require.NoError(t, journal.Save(rec))

	// мутация исходной записи не видна в журнале
	rec.IdempotencyKeys[domain.SagaStageReturnInspected] = "x"
	rec.Input.Items[0].Quantity = 5

	got, err := journal.Get("saga-1")
	require.NoError(t, err)
	require.Len(t, got.IdempotencyKeys, 1)
	require.Equal(t, 1, got.Input.Items[0].Quantity)

	_, err = journal.Get("missing")
	require.ErrorIs(t, err, domain.ErrSagaNotFound)
}

func TestSagaJournal_ListByOrderNewestFirst(t *testing.T) {
	journal := memory.NewSagaJournal()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, journal.Save(domain.SagaRecord{ID: "a", OrderID: "order-1", StartedAt: base}))
	require.NoError(t, journal.Save(domain.SagaRecord{ID: "b", OrderID: "order-1", StartedAt: base.Add(time.Minute)}))
	require.NoError(t, journal.Save(domain.SagaRecord{ID: "c", OrderID: "order-2", StartedAt: base}))

	list, err := journal.List("order-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "b", list[0].ID)
	require.Equal(t, "a", list[1].ID)

	all, err := journal.List("")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestReconciliationRepository_Lifecycle(t *testing.T) {
	repo := memory.NewReconciliationRepository()

	c, err := repo.Create(domain.ReconciliationCase{SagaID: "saga-1", Stage: domain.SagaStageRefundCreated, Amount: 1000})
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)

	open, err := repo.ListOpen(10)
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, repo.Resolve(c.ID, "refund issued manually"))
	require.NoError(t, repo.Resolve(c.ID, "second note"))

	got, err := repo.Get(c.ID)
	require.NoError(t, err)
	require.True(t, got.Resolved)
	require.Equal(t, "refund issued manually", got.ResolutionNote)

	open, err = repo.ListOpen(10)
	require.NoError(t, err)
	require.Empty(t, open)

	require.ErrorIs(t, repo.Resolve("missing", ""), domain.ErrReconciliationNotFound)
}

func TestTimelineRepository_KeyedBySaga(t *testing.T) {
	repo := memory.NewTimelineRepository()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(domain.TimelineEvent{SagaID: "saga-1", Type: "saga.completed", Occurred: base.Add(time.Second)}))
	require.NoError(t, repo.Append(domain.TimelineEvent{SagaID: "saga-1", Type: "saga.started", Occurred: base}))
	require.NoError(t, repo.Append(domain.TimelineEvent{SagaID: "saga-2", Type: "saga.started", Occurred: base}))

	events, err := repo.List("saga-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "saga.started", events[0].Type)
	require.Equal(t, "saga.completed", events[1].Type)
}

func TestTimelineRepository_SameInstantKeepsInsertOrder(t *testing.T) {
	repo := memory.NewTimelineRepository()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for _, stage := range []domain.SagaStage{
		domain.SagaStageReturnCreated,
		domain.SagaStageReturnInspected,
		domain.SagaStageReturnApproved,
	} {
		require.NoError(t, repo.Append(domain.TimelineEvent{SagaID: "saga-1", Type: "saga.step_completed", Stage: stage, Occurred: at}))
	}
	require.NoError(t, repo.Append(domain.TimelineEvent{SagaID: "saga-1", Type: "saga.started", Occurred: at.Add(-time.Second)}))

	events, err := repo.List("saga-1")
	require.NoError(t, err)
	require.Len(t, events, 4)
	require.Equal(t, "saga.started", events[0].Type)
	require.Equal(t, domain.SagaStageReturnCreated, events[1].Stage)
	require.Equal(t, domain.SagaStageReturnInspected, events[2].Stage)
	require.Equal(t, domain.SagaStageReturnApproved, events[3].Stage)

	// List отдаёт копию
	events[0].Type = "mutated"
	again, err := repo.List("saga-1")
	require.NoError(t, err)
	require.Equal(t, "saga.started", again[0].Type)
}

func TestTimelineRepository_RejectsIncompleteEvents(t *testing.T) {
	repo := memory.NewTimelineRepository()

	require.ErrorIs(t, repo.Append(domain.TimelineEvent{Type: "saga.started"}), domain.ErrTimelineEventInvalid)
	require.ErrorIs(t, repo.Append(domain.TimelineEvent{SagaID: "saga-1"}), domain.ErrTimelineEventInvalid)

	require.NoError(t, repo.Append(domain.TimelineEvent{SagaID: "saga-1", Type: "saga.started"}))
	events, err := repo.List("saga-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.False(t, events[0].Occurred.IsZero())
}
