package domain

import (
	"fmt"
	"time"
)

// TimelineEvent описывает событие в жизненном цикле саги.
type TimelineEvent struct {
	SagaID string
	Type   string
	// Stage: последний пройденный шаг саги на момент события
	Stage    SagaStage
	Reason   string
	Occurred time.Time
}

// Validate проверяет обязательные поля события.
func (e TimelineEvent) Validate() error {
	if e.SagaID == "" || e.Type == "" {
		return fmt.Errorf("%w: saga=%q type=%q", ErrTimelineEventInvalid, e.SagaID, e.Type)
	}
	return nil
}
