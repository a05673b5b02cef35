package translator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/valpere/chaptran/internal/glossary"
)

// BreakerSettings tune the circuit breaker around a backend.
type BreakerSettings struct {
	// ConsecutiveFailures opens the circuit. Zero selects 5.
	ConsecutiveFailures uint32
	// Cooldown is how long the circuit stays open. Zero selects 60s.
	Cooldown time.Duration
}

// Breaker stops calling a backend after repeated transient failures, so a
// provider outage fails the remaining chapters fast instead of burning the
// retry budget of each one. Only transient errors count as failures.
type Breaker struct {
	backend Backend
	cb      *gobreaker.CircuitBreaker
}

// NewBreaker wraps backend.
func NewBreaker(backend Backend, st BreakerSettings, logger *zap.Logger) *Breaker {
	if st.ConsecutiveFailures == 0 {
		st.ConsecutiveFailures = 5
	}
	if st.Cooldown <= 0 {
		st.Cooldown = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := st.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        backend.Name(),
		MaxRequests: 1,
		Timeout:     st.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrTransient)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("backend", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Breaker{backend: backend, cb: cb}
}

func (b *Breaker) Name() string {
	return b.backend.Name()
}

// State reports the current circuit state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) Translate(ctx context.Context, req Request) (*Response, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.backend.Translate(ctx, req)
	})
	if err != nil {
		return nil, breakerError(b.Name(), err)
	}
	return out.(*Response), nil
}

func (b *Breaker) ExtractTerms(ctx context.Context, req ExtractRequest) ([]glossary.Candidate, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.backend.ExtractTerms(ctx, req)
	})
	if err != nil {
		return nil, breakerError(b.Name(), err)
	}
	return out.([]glossary.Candidate), nil
}

// breakerError leaves backend errors untouched. An open circuit is
// permanent for the chapter: retrying inside the cooldown cannot succeed.
func breakerError(name string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return err
}
