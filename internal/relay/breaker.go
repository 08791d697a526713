package relay

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"go.uber.org/zap"
)

// BreakerConfig configures the circuit breaker around a relay
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold uint
	// Delay is how long the circuit stays open before a trial call
	Delay time.Duration
}

// breakerRelay fails fast while the scoring service is known to be down
type breakerRelay struct {
	next Relay
	cb   circuitbreaker.CircuitBreaker[*GenerateResponse]
}

// WithBreaker wraps r in a failsafe-go circuit breaker. While the circuit
// is open, Send returns circuitbreaker.ErrOpen without a network call.
func WithBreaker(r Relay, cfg BreakerConfig, logger *zap.Logger) Relay {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Delay <= 0 {
		cfg.Delay = time.Minute
	}
	logger = logger.Named("relay")

	cb := circuitbreaker.NewBuilder[*GenerateResponse]().
		WithFailureThreshold(cfg.FailureThreshold).
		WithDelay(cfg.Delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logger.Warn("circuit breaker state change",
				zap.String("from", stateName(event.OldState)),
				zap.String("to", stateName(event.NewState)))
		}).
		Build()

	return &breakerRelay{next: r, cb: cb}
}

func (b *breakerRelay) Send(ctx context.Context, endpoint string, req GenerateRequest) (*GenerateResponse, error) {
	return failsafe.With(b.cb).WithContext(ctx).Get(func() (*GenerateResponse, error) {
		return b.next.Send(ctx, endpoint, req)
	})
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "unknown"
	}
}
