// Package upstream wraps outbound JSON HTTP calls with retries and a circuit breaker.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("upstream unavailable")

const maxBody = 4 << 20

// StatusError is a non-2xx answer from the upstream.
type StatusError struct {
	Upstream string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s upstream status %d", e.Upstream, e.Code)
	}
	return fmt.Sprintf("%s upstream status %d: %s", e.Upstream, e.Code, e.Message)
}

// Temporary reports whether retrying may help.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// ErrorDecoder pulls a provider message out of an error body.
type ErrorDecoder func(body []byte) string

type Config struct {
	Name            string
	Timeout         time.Duration
	Retries         int
	RetryInterval   time.Duration
	BreakerFailures int
	BreakerOpenFor  time.Duration
	BreakerInterval time.Duration
	UserAgent       string
	HTTPClient      *http.Client
}

// Upstream is safe for concurrent use.
type Upstream struct {
	name          string
	client        *http.Client
	breaker       *gobreaker.CircuitBreaker
	retries       int
	retryInterval time.Duration
	userAgent     string
}

func New(cfg Config) *Upstream {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	if cfg.BreakerFailures < 1 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	fails := uint32(cfg.BreakerFailures)

	return &Upstream{
		name:   cfg.Name,
		client: client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     cfg.Name,
			Interval: cfg.BreakerInterval,
			Timeout:  cfg.BreakerOpenFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= fails
			},
			IsSuccessful: isSuccessful,
		}),
		retries:       cfg.Retries,
		retryInterval: cfg.RetryInterval,
		userAgent:     cfg.UserAgent,
	}
}

// Client errors and caller cancellations say nothing about upstream health.
func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return !se.Temporary()
	}
	return false
}

func (u *Upstream) Name() string { return u.name }

// State is the breaker state: "closed", "half-open" or "open".
func (u *Upstream) State() string { return u.breaker.State().String() }

// GetJSON performs a GET on url and decodes a 2xx body into out.
// Transport errors, 429 and 5xx are retried; other statuses fail at once.
func (u *Upstream) GetJSON(ctx context.Context, url string, out any, decodeErr ErrorDecoder) error {
	_, err := u.breaker.Execute(func() (interface{}, error) {
		return nil, u.getWithRetry(ctx, url, out, decodeErr)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", u.name, ErrUnavailable)
	}
	return err
}

func (u *Upstream) getWithRetry(ctx context.Context, url string, out any, decodeErr ErrorDecoder) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = u.retryInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(u.retries)), ctx)

	return backoff.Retry(func() error {
		err := u.get(ctx, url, out, decodeErr)
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (u *Upstream) get(ctx context.Context, url string, out any, decodeErr ErrorDecoder) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%s build request: %w", u.name, err))
	}
	req.Header.Set("Accept", "application/json")
	if u.userAgent != "" {
		req.Header.Set("User-Agent", u.userAgent)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request error: %w", u.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%s read body: %w", u.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{Upstream: u.name, Code: resp.StatusCode}
		if decodeErr != nil {
			se.Message = decodeErr(body)
		}
		if se.Message == "" {
			se.Message = truncate(strings.TrimSpace(string(body)), 256)
		}
		return se
	}

	if err := json.Unmarshal(body, out); err != nil {
		return backoff.Permanent(fmt.Errorf("%s decode error: %w", u.name, err))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
