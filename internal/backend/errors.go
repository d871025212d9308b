package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FallbackMessage показывается, когда backend не прислал понятного текста ошибки.
const FallbackMessage = "request failed"

// RemoteError: ответ backend с кодом >= 400.
type RemoteError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Operation, e.Message, e.StatusCode)
}

// Temporary сообщает, что сбой на стороне backend, а не в запросе.
func (e *RemoteError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// Message возвращает текст ошибки для оператора: сообщение backend или fallback.
func Message(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}
	return FallbackMessage
}

// IsNotFound сообщает, что backend ответил 404.
func IsNotFound(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.StatusCode == http.StatusNotFound
}

// errorBody: известные формы тела ошибки.
type errorBody struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
	Detail  string          `json:"detail"`
}

func decodeRemoteError(operation string, status int, body []byte) *RemoteError {
	return &RemoteError{
		Operation:  operation,
		StatusCode: status,
		Message:    extractMessage(body),
	}
}

func extractMessage(body []byte) string {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return FallbackMessage
	}
	if msg := strings.TrimSpace(parsed.Message); msg != "" {
		return msg
	}
	if len(parsed.Error) > 0 {
		var text string
		if err := json.Unmarshal(parsed.Error, &text); err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(parsed.Error, &nested); err == nil && strings.TrimSpace(nested.Message) != "" {
			return strings.TrimSpace(nested.Message)
		}
	}
	if msg := strings.TrimSpace(parsed.Detail); msg != "" {
		return msg
	}
	return FallbackMessage
}

// isBackendFailure решает, должен ли сбой учитываться circuit breaker.
func isBackendFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Temporary()
	}
	return true
}
