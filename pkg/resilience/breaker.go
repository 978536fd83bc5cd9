package resilience

import (
	"sync"
	"time"

	"github.com/obsguard/obsguard/pkg/logging"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// StateClosed - requests are allowed
	StateClosed CircuitState = iota
	// StateOpen - requests short-circuit to the fallback path
	StateOpen
	// StateHalfOpen - a single probe request is allowed
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds per-dependency breaker configuration
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker
	FailureThreshold int
	// Cooldown is the period the breaker stays open before allowing a
	// half-open probe
	Cooldown time.Duration
	// OnStateChange is called whenever a breaker changes state
	OnStateChange func(dependency string, from, to CircuitState)
}

// DefaultBreakerConfig returns the default breaker configuration
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
	}
}

// BreakerState is a point-in-time snapshot of one breaker
type BreakerState struct {
	State           CircuitState `json:"state"`
	FailureCount    int          `json:"failure_count"`
	SuccessCount    int          `json:"success_count"`
	LastFailureTime time.Time    `json:"last_failure_time,omitempty"`
	NextRetryTime   time.Time    `json:"next_retry_time,omitempty"`
}

// breaker holds the mutable state for one dependency. All access goes
// through the registry mutex.
type breaker struct {
	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	nextRetryTime   time.Time
	probeInFlight   bool
	config          BreakerConfig
}

// BreakerRegistry keeps one circuit breaker per dependency name. Breaker
// mutation on a given dependency is serialized through the registry lock.
type BreakerRegistry struct {
	mutex    sync.Mutex
	breakers map[string]*breaker
	defaults BreakerConfig
	logger   *logging.Logger
	now      func() time.Time
}

// NewBreakerRegistry creates a registry with the given default configuration
func NewBreakerRegistry(defaults BreakerConfig) *BreakerRegistry {
	if defaults.FailureThreshold <= 0 {
		defaults.FailureThreshold = 5
	}
	if defaults.Cooldown <= 0 {
		defaults.Cooldown = 60 * time.Second
	}

	return &BreakerRegistry{
		breakers: make(map[string]*breaker),
		defaults: defaults,
		logger:   logging.GetLogger(),
		now:      time.Now,
	}
}

// Configure overrides the breaker configuration for one dependency
func (r *BreakerRegistry) Configure(dependency string, config BreakerConfig) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if config.FailureThreshold <= 0 {
		config.FailureThreshold = r.defaults.FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = r.defaults.Cooldown
	}

	b := r.get(dependency)
	b.config = config
}

// SetClock overrides the registry clock, for deterministic tests
func (r *BreakerRegistry) SetClock(now func() time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.now = now
}

// get returns the breaker for a dependency, creating it closed if absent.
// Caller must hold the mutex.
func (r *BreakerRegistry) get(dependency string) *breaker {
	b, ok := r.breakers[dependency]
	if !ok {
		b = &breaker{state: StateClosed, config: r.defaults}
		r.breakers[dependency] = b
	}
	return b
}

// advance moves an open breaker to half-open once its cooldown has elapsed.
// Caller must hold the mutex.
func (r *BreakerRegistry) advance(dependency string, b *breaker) {
	if b.state == StateOpen && !r.now().Before(b.nextRetryTime) {
		r.setState(dependency, b, StateHalfOpen)
		b.probeInFlight = false
	}
}

// Allow reports whether a real attempt against the dependency may proceed.
// While open it returns false; in half-open it admits exactly one probe.
func (r *BreakerRegistry) Allow(dependency string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	b := r.get(dependency)
	r.advance(dependency, b)

	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordFailure records a failed attempt against the dependency
func (r *BreakerRegistry) RecordFailure(dependency string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	b := r.get(dependency)
	r.advance(dependency, b)

	now := r.now()
	b.failureCount++
	b.lastFailureTime = now

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.FailureThreshold {
			b.nextRetryTime = now.Add(b.config.Cooldown)
			r.setState(dependency, b, StateOpen)
		}
	case StateHalfOpen:
		// Failed probe reopens the breaker and restarts the cooldown clock
		b.nextRetryTime = now.Add(b.config.Cooldown)
		b.probeInFlight = false
		r.setState(dependency, b, StateOpen)
	}
}

// RecordSuccess records a successful attempt against the dependency
func (r *BreakerRegistry) RecordSuccess(dependency string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	b := r.get(dependency)
	r.advance(dependency, b)

	b.successCount++

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		// Successful probe resets counters and closes the breaker
		b.failureCount = 0
		b.successCount = 0
		b.probeInFlight = false
		b.nextRetryTime = time.Time{}
		r.setState(dependency, b, StateClosed)
	}
	// A success reported while open is ignored for state purposes; an open
	// breaker never transitions directly to closed.
}

// State returns a snapshot of the breaker for a dependency
func (r *BreakerRegistry) State(dependency string) BreakerState {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	b := r.get(dependency)
	r.advance(dependency, b)

	return BreakerState{
		State:           b.state,
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		LastFailureTime: b.lastFailureTime,
		NextRetryTime:   b.nextRetryTime,
	}
}

// States returns a snapshot of all known breakers
func (r *BreakerRegistry) States() map[string]BreakerState {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	states := make(map[string]BreakerState, len(r.breakers))
	for dependency, b := range r.breakers {
		r.advance(dependency, b)
		states[dependency] = BreakerState{
			State:           b.state,
			FailureCount:    b.failureCount,
			SuccessCount:    b.successCount,
			LastFailureTime: b.lastFailureTime,
			NextRetryTime:   b.nextRetryTime,
		}
	}
	return states
}

// setState transitions a breaker and fires the change hook. Caller must
// hold the mutex.
func (r *BreakerRegistry) setState(dependency string, b *breaker, state CircuitState) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(dependency, prev, state)
	}

	r.logger.Info("Circuit breaker state changed",
		"dependency", dependency,
		"from", prev.String(),
		"to", state.String(),
		"failure_count", b.failureCount,
	)
}
