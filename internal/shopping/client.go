// Package shopping provides typed HTTP clients for the downstream domain
// services (product, review, order, inventory).
//
// All calls return the raw JSON body so results can be handed to the
// reasoning provider unmodified. Non-2xx responses become a *ServiceError;
// only connection and timeout failures are retried.
package shopping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 1 * time.Second
	maxBackoff         = 10 * time.Second
)

// Config holds the base URLs and transport settings for the domain services.
type Config struct {
	ProductURL   string
	ReviewURL    string
	OrderURL     string
	InventoryURL string

	Timeout    time.Duration
	MaxRetries int
}

// ServiceError is a non-2xx response from a domain service.
type ServiceError struct {
	Service    string
	StatusCode int
	Detail     string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s error (%d): %s", e.Service, e.StatusCode, e.Detail)
}

// Clients bundles the domain service clients around one explicitly owned
// HTTP client. The client handle is created at construction and shared by
// every call; there is no package-level connection state.
type Clients struct {
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// NewClients creates domain service clients with a shared HTTP client.
func NewClients(cfg Config, logger *zap.Logger) *Clients {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Clients{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}
}

// do performs one HTTP call with bounded retries on connection and timeout
// symptoms. Service-level errors (non-2xx) are never retried here; they are
// surfaced to the tool layer as data.
func (c *Clients) do(ctx context.Context, method, service, rawURL string, params url.Values, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	if len(params) > 0 {
		rawURL = rawURL + "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := c.doOnce(ctx, method, service, rawURL, payload)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !isConnectionError(err) {
			return nil, err
		}

		c.logger.Warn("domain service call failed, retrying",
			zap.String("service", service),
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return nil, fmt.Errorf("%s: retries exhausted: %w", service, lastErr)
}

func (c *Clients) doOnce(ctx context.Context, method, service, rawURL string, payload []byte) (json.RawMessage, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", service, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s read response: %w", service, err)
	}

	if resp.StatusCode >= 400 {
		return nil, &ServiceError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(data),
		}
	}

	if len(data) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(data), nil
}

// errorDetail extracts the "message" field from a service error body,
// falling back to the raw body text.
func errorDetail(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return string(body)
}

// isConnectionError reports whether an error has connection or timeout
// symptoms worth retrying.
func isConnectionError(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded)
}
