package route

import (
	"github.com/sony/gobreaker"

	"github.com/commutealarm/commutealarm/pkg/config"
)

type CircuitBreaker interface {
	Execute(fn func() error) error
}

type noopBreaker struct{}

func (noopBreaker) Execute(fn func() error) error {
	return fn()
}

type gobreakerWrapper struct {
	cb *gobreaker.CircuitBreaker
}

func (g *gobreakerWrapper) Execute(fn func() error) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// NewCircuitBreaker trips on upstream outages only; answers such as "no
// route" count as successful calls.
func NewCircuitBreaker(cfg config.RouteConfig) CircuitBreaker {
	if !cfg.BreakerEnabled {
		return noopBreaker{}
	}

	settings := gobreaker.Settings{
		Name:        "route-estimator",
		MaxRequests: uint32(cfg.BreakerHalfOpenRequests),
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerRecoveryTime,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.BreakerMinRequests) {
				return false
			}
			return counts.TotalFailures >= uint32(cfg.BreakerFailureThreshold)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
	}

	return &gobreakerWrapper{cb: gobreaker.NewCircuitBreaker(settings)}
}
