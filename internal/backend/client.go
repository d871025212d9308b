// Package backend: REST-клиент commerce backend (заказы, возвраты, возвраты средств, дефекты).
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/metrics"
	"github.com/vladislavdragonenkov/retailops/internal/tracing"
	"github.com/vladislavdragonenkov/retailops/internal/version"
)

const (
	// IdempotencyHeader передаёт ключ шага саги backend-у.
	IdempotencyHeader = "Idempotency-Key"

	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 4 << 20
)

// Client обращается к REST API backend по bearer-токену.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	breaker *CircuitBreaker
	metrics *metrics.ClientMetrics
	logger  *log.Entry

	orders  *OrdersAPI
	returns *ReturnsAPI
	refunds *RefundsAPI
	defects *DefectsAPI
}

// Option настраивает Client.
type Option func(*Client)

// WithToken задаёт bearer-токен.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient подменяет http.Client (тесты, кастомный транспорт).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithTimeout задаёт таймаут HTTP-запроса.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
	}
}

// WithBreaker подключает circuit breaker.
func WithBreaker(breaker *CircuitBreaker) Option {
	return func(c *Client) {
		c.breaker = breaker
	}
}

// WithMetrics подключает prometheus-метрики клиента.
func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient создаёт клиент backend.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: parsed,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  log.New().WithField("component", "backend-client"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.breaker != nil {
		c.breaker.tripOn = isBackendFailure
		if c.metrics != nil {
			m := c.metrics
			c.breaker.onChange = func(state CircuitState) {
				m.SetCircuitOpen("commerce", state == CircuitOpen)
			}
		}
	}

	c.orders = &OrdersAPI{client: c}
	c.returns = &ReturnsAPI{client: c}
	c.refunds = &RefundsAPI{client: c}
	c.defects = &DefectsAPI{client: c}
	return c, nil
}

// Orders возвращает API заказов.
func (c *Client) Orders() *OrdersAPI { return c.orders }

// Returns возвращает API возвратов.
func (c *Client) Returns() *ReturnsAPI { return c.returns }

// Refunds возвращает API возвратов средств.
func (c *Client) Refunds() *RefundsAPI { return c.refunds }

// Defects возвращает API дефектных позиций.
func (c *Client) Defects() *DefectsAPI { return c.defects }

// Ping проверяет доступность backend для readiness.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "orders.ping", http.MethodGet, "/orders", url.Values{"per_page": {"1"}}, nil, nil)
}

// do выполняет запрос и декодирует ответ (с обёрткой "data" или без) в out.
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, body, out interface{}) (err error) {
	ctx, span := tracing.StartSpan(ctx, "backend."+operation, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	)
	defer func() { tracing.EndSpan(span, err) }()

	started := time.Now()
	call := func() error {
		return c.roundTrip(ctx, operation, method, path, query, body, out)
	}
	if c.breaker != nil {
		err = c.breaker.Execute(operation, call)
	} else {
		err = call()
	}

	c.observe(operation, err, time.Since(started))
	return err
}

func (c *Client) roundTrip(ctx context.Context, operation, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := *c.baseURL
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + path
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if key, ok := domain.IdempotencyKeyFromContext(ctx); ok {
		req.Header.Set(IdempotencyHeader, key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", operation, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		remote := decodeRemoteError(operation, resp.StatusCode, raw)
		c.logger.WithFields(log.Fields{
			"operation": operation,
			"status":    resp.StatusCode,
			"message":   remote.Message,
		}).Warn("Backend request rejected")
		return remote
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := decodeEnvelope(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", operation, err)
	}
	return nil
}

func (c *Client) observe(operation string, err error, duration time.Duration) {
	if c.metrics == nil {
		return
	}
	result := "ok"
	var remote *RemoteError
	switch {
	case err == nil:
	case errors.Is(err, ErrCircuitOpen):
		result = "circuit_open"
	case errors.As(err, &remote):
		result = "remote_error"
	default:
		result = "transport_error"
	}
	c.metrics.RecordRequest(operation, result, duration)
}

// decodeEnvelope снимает обёртку {"data": ...}; списки бывают вложены ещё раз (пагинация).
func decodeEnvelope(raw []byte, out interface{}) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && hasPayload(envelope.Data) {
		payload := envelope.Data
		if _, isList := out.(listTarget); isList && bytes.HasPrefix(bytes.TrimSpace(payload), []byte("{")) {
			var page struct {
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(payload, &page); err == nil && hasPayload(page.Data) {
				payload = page.Data
			}
		}
		return json.Unmarshal(payload, out)
	}
	return json.Unmarshal(raw, out)
}

func hasPayload(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// listTarget помечает срезы, для которых допустима вложенная пагинация.
type listTarget interface {
	isList()
}

type orderList []wireOrder

func (*orderList) isList() {}

type returnList []wireReturn

func (*returnList) isList() {}

type refundList []wireRefund

func (*refundList) isList() {}
