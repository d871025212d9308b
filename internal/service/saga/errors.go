package saga

import (
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/retailops/internal/backend"
	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// ErrRemoteClosed: удалённая сущность отклонена или отменена, продвигать её нельзя.
var ErrRemoteClosed = errors.New("remote resource is closed")

// stageActions: человекочитаемое название шага для сообщений оператору.
var stageActions = map[domain.SagaStage]string{
	domain.SagaStageReturnCreated:     "create return",
	domain.SagaStageReturnInspected:   "quality check",
	domain.SagaStageReturnApproved:    "approve return",
	domain.SagaStageReturnProcessed:   "process return",
	domain.SagaStageReturnCompleted:   "complete return",
	domain.SagaStageRefundCreated:     "create refund",
	domain.SagaStageRefundProcessing:  "process refund",
	domain.SagaStageRefundCompleted:   "complete refund",
	domain.SagaStageExchangeCreated:   "create exchange order",
	domain.SagaStageExchangeCompleted: "complete exchange order",
}

// StageError: шаг саги, на котором остановилось выполнение.
type StageError struct {
	Stage domain.SagaStage
	Err   error
}

func newStageError(stage domain.SagaStage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

func (e *StageError) Error() string {
	action, ok := stageActions[e.Stage]
	if !ok {
		action = string(e.Stage)
	}
	return fmt.Sprintf("%s failed: %s", action, e.Message())
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Message возвращает текст ошибки backend либо общий fallback.
func (e *StageError) Message() string {
	if errors.Is(e.Err, ErrRemoteClosed) {
		return e.Err.Error()
	}
	return backend.Message(e.Err)
}

// AsStageError извлекает StageError из цепочки ошибок.
func AsStageError(err error) (*StageError, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr, true
	}
	return nil, false
}
