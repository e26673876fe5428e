package clients

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/protspace/pkg/errors"
	"github.com/ajitpratap0/protspace/pkg/metrics"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int32

const (
	// StateClosed allows all requests to pass through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen lets a limited number of probe requests through
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New(errors.ErrorTypeConnection, "circuit breaker is open")

// CircuitBreaker stops calling a service after consecutive failures and
// probes it again after a cool-down.
type CircuitBreaker struct {
	host             string
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	halfOpenLimit    int
	logger           *zap.Logger
	now              func() time.Time

	mu                   sync.Mutex
	state                CircuitState
	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenInFlight     int
	nextRetryTime        time.Time
}

// NewCircuitBreaker creates a closed breaker for host.
func NewCircuitBreaker(host string, config *HTTPConfig, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := &CircuitBreaker{
		host:             host,
		failureThreshold: config.FailureThreshold,
		successThreshold: config.SuccessThreshold,
		timeout:          config.CircuitTimeout,
		halfOpenLimit:    1,
		logger:           logger.With(zap.String("component", "circuit_breaker"), zap.String("host", host)),
		now:              time.Now,
	}
	if cb.failureThreshold < 1 {
		cb.failureThreshold = 1
	}
	if cb.successThreshold < 1 {
		cb.successThreshold = 1
	}
	metrics.CircuitState.WithLabelValues(host).Set(float64(StateClosed))
	return cb
}

// Allow reports whether a request may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Before(cb.nextRetryTime) {
			return false
		}
		cb.setState(StateHalfOpen)
		cb.consecutiveSuccesses = 0
		cb.halfOpenInFlight = 0
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.halfOpenLimit {
			return false
		}
		cb.halfOpenInFlight++
		return true
	default:
		return false
	}
}

// RecordSuccess closes a half-open breaker after enough successes.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.consecutiveFailures = 0
	case StateHalfOpen:
		cb.halfOpenInFlight--
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.successThreshold {
			cb.consecutiveFailures = 0
			cb.setState(StateClosed)
		}
	}
}

// RecordFailure opens the breaker after too many consecutive failures; any
// failure while half-open reopens it.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.failureThreshold {
			cb.open()
		}
	case StateHalfOpen:
		cb.open()
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) open() {
	cb.nextRetryTime = cb.now().Add(cb.timeout)
	cb.consecutiveSuccesses = 0
	cb.halfOpenInFlight = 0
	cb.setState(StateOpen)
	cb.logger.Warn("circuit breaker opened",
		zap.Time("retry_after", cb.nextRetryTime),
		zap.Int("consecutive_failures", cb.consecutiveFailures))
}

func (cb *CircuitBreaker) setState(s CircuitState) {
	if cb.state == s {
		return
	}
	cb.state = s
	metrics.CircuitState.WithLabelValues(cb.host).Set(float64(s))
	if s != StateOpen {
		cb.logger.Info("circuit breaker " + s.String())
	}
}
