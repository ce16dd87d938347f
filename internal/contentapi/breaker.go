package contentapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the circuit breaker around the API client
type BreakerSettings struct {
	// Name identifies the breaker in logs
	Name string
	// MaxRequests is the number of probe requests allowed while half-open
	MaxRequests uint32
	// Interval is the cyclic period after which closed-state counts reset
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing
	Timeout time.Duration
	// ConsecutiveFailures opens the breaker
	ConsecutiveFailures uint32
}

// DefaultBreakerSettings returns settings suitable for a shared API client
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:                "content-api",
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             2 * time.Minute,
		ConsecutiveFailures: 5,
	}
}

// CircuitBreakerClient wraps a Client so that a remote outage fails fast
// instead of every user's sync waiting on timeouts. Rate limiting, missing
// documents and other 4xx answers are not counted as failures; they say
// nothing about the health of the service.
type CircuitBreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker[any]
}

// NewCircuitBreakerClient wraps client with a circuit breaker
func NewCircuitBreakerClient(client Client, settings BreakerSettings) *CircuitBreakerClient {
	threshold := settings.ConsecutiveFailures
	if threshold == 0 {
		threshold = DefaultBreakerSettings().ConsecutiveFailures
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err) || errors.Is(err, context.Canceled)
		},
	})

	return &CircuitBreakerClient{client: client, cb: cb}
}

// ListDocuments implements Client
func (c *CircuitBreakerClient) ListDocuments(ctx context.Context, token string, params ListParams) (*ListResponse, error) {
	result, err := c.cb.Execute(func() (any, error) {
		return c.client.ListDocuments(ctx, token, params)
	})
	if err != nil {
		return nil, wrapBreakerError(err)
	}
	return result.(*ListResponse), nil
}

// GetDocument implements Client
func (c *CircuitBreakerClient) GetDocument(ctx context.Context, token, id string) (*Document, error) {
	result, err := c.cb.Execute(func() (any, error) {
		return c.client.GetDocument(ctx, token, id)
	})
	if err != nil {
		return nil, wrapBreakerError(err)
	}
	return result.(*Document), nil
}

// State returns the current breaker state name
func (c *CircuitBreakerClient) State() string {
	return c.cb.State().String()
}

func wrapBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return err
}
