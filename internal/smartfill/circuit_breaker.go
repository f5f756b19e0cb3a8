package smartfill

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/vipul43/tanksync-worker/internal/logging"
	"github.com/vipul43/tanksync-worker/internal/metrics"
)

// Fetcher is satisfied by *Client and *BreakerClient.
type Fetcher interface {
	FetchTankLevels(ctx context.Context, apiReference, apiSecret string) (*FetchResult, error)
}

// BreakerConfig controls when the SmartFill circuit opens.
type BreakerConfig struct {
	// ConsecutiveFailures is the number of back-to-back transport failures that opens the circuit.
	ConsecutiveFailures uint32
	// Cooldown is how long the circuit stays open before a half-open probe.
	Cooldown time.Duration
}

// BreakerClient stops calling SmartFill while it is unreachable. Only transport
// failures count towards tripping: API and HTTP errors are usually specific to
// one customer's credentials and must not block the others.
type BreakerClient struct {
	next Fetcher
	cb   *gobreaker.CircuitBreaker[*FetchResult]
	name string
}

func NewBreakerClient(next Fetcher, cfg BreakerConfig) *BreakerClient {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 2 * time.Minute
	}

	name := "smartfill-api"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(gobreaker.StateClosed))

	cb := gobreaker.NewCircuitBreaker[*FetchResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			var aborted *callerAbort
			if err == nil || errors.As(err, &aborted) {
				return true
			}
			return !IsTransport(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("SmartFill circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerClient{next: next, cb: cb, name: name}
}

// FetchTankLevels runs the wrapped fetch unless the circuit is open.
func (b *BreakerClient) FetchTankLevels(ctx context.Context, apiReference, apiSecret string) (*FetchResult, error) {
	result, err := b.cb.Execute(func() (*FetchResult, error) {
		res, err := b.next.FetchTankLevels(ctx, apiReference, apiSecret)
		if err != nil && ctx.Err() != nil {
			// The caller gave up (shutdown or run timeout); SmartFill is not at fault.
			return nil, &callerAbort{err: err}
		}
		return res, err
	})
	var aborted *callerAbort
	if errors.As(err, &aborted) {
		return nil, aborted.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &FetchError{
			Last: &Error{Kind: KindTransport, Message: "SmartFill circuit breaker is open", cause: err},
		}
	}
	return result, err
}

// callerAbort marks a failure caused by the caller's own context ending.
type callerAbort struct {
	err error
}

func (a *callerAbort) Error() string { return a.err.Error() }

func (a *callerAbort) Unwrap() error { return a.err }

// State exposes the breaker state for health reporting.
func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
