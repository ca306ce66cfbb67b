package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/kmc/ehr-api/pkg/logger"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = gobreaker.ErrOpenState

type Settings struct {
	Name string
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32
	// Interval is the cyclic period after which a closed breaker clears its counts.
	Interval time.Duration
	// Timeout is how long the breaker stays open before letting a probe through.
	Timeout time.Duration
}

type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewCircuitBreaker(settings Settings, log *logger.Logger) *CircuitBreaker {
	if log == nil {
		log = logger.Nop()
	}
	maxFailures := settings.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	return &CircuitBreaker{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        settings.Name,
			MaxRequests: 1,
			Interval:    settings.Interval,
			Timeout:     settings.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (c *CircuitBreaker) Execute(fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func (c *CircuitBreaker) State() string {
	return c.cb.State().String()
}
