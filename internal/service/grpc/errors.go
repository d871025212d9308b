package grpcsvc

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/retailops/internal/backend"
	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/service/saga"
)

// sagaIDTrailer: trailer с идентификатором остановленной саги, по нему клиент вызывает ResumeSaga.
const sagaIDTrailer = "saga-id"

// toStatus переводит доменную ошибку в gRPC-статус.
func (s *ReturnsService) toStatus(err error, method string) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := statusCode(err)
	if code == codes.Internal {
		s.logger.WithError(err).WithField("method", method).Error("Request failed")
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, errorMessage(err))
}

// sagaFailure сообщает об остановке саги: идентификатор уходит в trailer и в текст ошибки.
func (s *ReturnsService) sagaFailure(ctx context.Context, result saga.Result, err error, method string) error {
	if result.SagaID == "" {
		return s.toStatus(err, method)
	}

	if trailerErr := grpc.SetTrailer(ctx, metadata.Pairs(sagaIDTrailer, result.SagaID)); trailerErr != nil {
		s.logger.WithError(trailerErr).WithField("saga_id", result.SagaID).Debug("saga-id trailer not set")
	}

	s.logger.WithError(err).WithFields(log.Fields{
		"method":  method,
		"saga_id": result.SagaID,
		"status":  result.Status,
		"stage":   result.Stage,
	}).Warn("Saga stopped")

	return status.Error(statusCode(err), fmt.Sprintf("%s (saga %s, status %s)", errorMessage(err), result.SagaID, result.Status))
}

func statusCode(err error) codes.Code {
	switch {
	case domain.IsValidation(err):
		return codes.InvalidArgument
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}

	if stageErr, ok := saga.AsStageError(err); ok {
		if retryable(stageErr.Err) {
			return codes.Unavailable
		}
		return codes.Aborted
	}

	switch {
	case errors.Is(err, domain.ErrSagaInProgress), errors.Is(err, domain.ErrSagaNotResumable):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrSagaNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrReconciliationNotFound),
		backend.IsNotFound(err):
		return codes.NotFound
	case errors.Is(err, backend.ErrCircuitOpen):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// retryable: сбой транспорта, открытый breaker или 5xx backend: шаг можно повторить через ResumeSaga.
func retryable(err error) bool {
	if errors.Is(err, backend.ErrCircuitOpen) {
		return true
	}
	if errors.Is(err, saga.ErrRemoteClosed) {
		return false
	}
	var remote *backend.RemoteError
	if errors.As(err, &remote) {
		return remote.Temporary()
	}
	return true
}

func errorMessage(err error) string {
	if stageErr, ok := saga.AsStageError(err); ok {
		return stageErr.Error()
	}
	var remote *backend.RemoteError
	if errors.As(err, &remote) {
		return backend.Message(err)
	}
	return err.Error()
}

// describeValidation собирает ошибки тегов validate в одну строку с именами JSON-полей.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := jsonPath(fe.Namespace())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "min":
			parts = append(parts, fmt.Sprintf("%s must contain at least %s element(s)", field, fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// jsonPath отрезает имя корневой структуры: ReturnRequest.items[0].quantity → items[0].quantity.
func jsonPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func isNilRequest(req interface{}) bool {
	if req == nil {
		return true
	}
	v := reflect.ValueOf(req)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
