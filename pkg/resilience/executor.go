package resilience

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/obsguard/obsguard/pkg/logging"
	"github.com/obsguard/obsguard/pkg/metrics"
)

// Outcome reports the result of one recovery attempt
type Outcome struct {
	// Resolved means the dependency recovered and the record can be closed
	Resolved bool
	// Buffered means the event was diverted to the local fallback buffer
	Buffered bool
	// Escalated means the strategy gave up and raised the degradation level
	Escalated bool
	// Retry requests another attempt after RetryAfter
	Retry      bool
	RetryAfter time.Duration
	// Err is the error from the attempt, if any
	Err error
}

// ExecutorConfig holds recovery execution configuration
type ExecutorConfig struct {
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	RetryMultiplier float64
}

// DefaultExecutorConfig returns the default executor configuration
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxRetries:      5,
		RetryBaseDelay:  time.Second,
		RetryMaxDelay:   30 * time.Second,
		RetryMultiplier: 2.0,
	}
}

// Remediation is a one-shot local fix for a failure condition (forced GC,
// cache trim, config fallback)
type Remediation func(ctx context.Context) error

// RecoveryExecutor runs the recovery strategy associated with a failure
// record. The caller serializes calls for a given record.
type RecoveryExecutor struct {
	config   ExecutorConfig
	breakers *BreakerRegistry
	buffer   *EventBuffer
	tracker  *DegradationTracker
	retrier  *Retrier

	mutex        sync.RWMutex
	probes       map[string]Probe
	remediations map[FailureType]Remediation

	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewRecoveryExecutor creates a recovery executor
func NewRecoveryExecutor(config ExecutorConfig, breakers *BreakerRegistry, buffer *EventBuffer, tracker *DegradationTracker, m *metrics.Metrics) *RecoveryExecutor {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}

	e := &RecoveryExecutor{
		config:   config,
		breakers: breakers,
		buffer:   buffer,
		tracker:  tracker,
		retrier: NewRetrier(RetryConfig{
			MaxAttempts:       config.MaxRetries,
			InitialDelay:      config.RetryBaseDelay,
			MaxDelay:          config.RetryMaxDelay,
			BackoffMultiplier: config.RetryMultiplier,
			Jitter:            false,
		}),
		probes:       make(map[string]Probe),
		remediations: make(map[FailureType]Remediation),
		logger:       logging.GetLogger(),
		metrics:      m,
	}

	// Built-in remediations; callers may override
	e.remediations[FailureMemoryExhausted] = func(ctx context.Context) error {
		debug.FreeOSMemory()
		return nil
	}
	e.remediations[FailureStorageFull] = func(ctx context.Context) error {
		buffer.TrimOldest()
		return nil
	}

	return e
}

// RegisterProbe registers the real recovery attempt for a dependency
func (e *RecoveryExecutor) RegisterProbe(dependency string, probe Probe) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.probes[dependency] = probe
}

// RegisterRemediation overrides the local remediation for a failure type
func (e *RecoveryExecutor) RegisterRemediation(failureType FailureType, fn Remediation) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.remediations[failureType] = fn
}

func (e *RecoveryExecutor) probe(dependency string) Probe {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.probes[dependency]
}

func (e *RecoveryExecutor) remediation(failureType FailureType) Remediation {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.remediations[failureType]
}

// Execute runs one recovery attempt for the record. A resolved record is
// never attempted again.
func (e *RecoveryExecutor) Execute(ctx context.Context, record *FailureRecord) Outcome {
	if record.Resolved {
		return Outcome{Resolved: true}
	}

	record.AttemptCount++
	record.LastAttempt = time.Now()

	var outcome Outcome
	switch record.Strategy {
	case StrategyImmediateRetry:
		outcome = e.immediateRetry(ctx, record)
	case StrategyExponentialBackoff:
		outcome = e.exponentialBackoff(ctx, record)
	case StrategyCircuitBreaker:
		outcome = e.circuitBreaker(ctx, record)
	case StrategyGracefulDegradation:
		outcome = e.gracefulDegradation(ctx, record)
	case StrategyFailover, StrategyCacheFallback, StrategyLocalStorage:
		outcome = e.fallback(ctx, record)
	default:
		outcome = e.immediateRetry(ctx, record)
	}

	if e.metrics != nil {
		e.metrics.RecordRecoveryAttempt(string(record.Strategy), outcomeLabel(outcome))
	}

	e.logger.Debug("Recovery attempt finished",
		"failure_id", record.ID,
		"strategy", string(record.Strategy),
		"attempt", record.AttemptCount,
		"resolved", outcome.Resolved,
		"buffered", outcome.Buffered,
		"escalated", outcome.Escalated,
	)

	return outcome
}

func outcomeLabel(o Outcome) string {
	switch {
	case o.Resolved:
		return "resolved"
	case o.Escalated:
		return "escalated"
	case o.Buffered:
		return "buffered"
	case o.Retry:
		return "retry"
	default:
		return "failed"
	}
}

// attempt runs the probe for a dependency, treating a missing probe as a
// failure so unplumbed dependencies cannot report spurious recovery.
func (e *RecoveryExecutor) attempt(ctx context.Context, record *FailureRecord) error {
	probe := e.probe(record.Component)
	if probe == nil {
		return errNoProbe(record.Component)
	}
	return probe.Attempt(ctx)
}

func (e *RecoveryExecutor) immediateRetry(ctx context.Context, record *FailureRecord) Outcome {
	err := e.attempt(ctx, record)
	if err == nil {
		return Outcome{Resolved: true}
	}

	if record.AttemptCount >= e.config.MaxRetries {
		e.escalate(record)
		return Outcome{Escalated: true, Err: err}
	}

	return Outcome{Retry: true, Err: err}
}

func (e *RecoveryExecutor) exponentialBackoff(ctx context.Context, record *FailureRecord) Outcome {
	err := e.attempt(ctx, record)
	if err == nil {
		return Outcome{Resolved: true}
	}

	if record.AttemptCount >= e.config.MaxRetries {
		// Out of retries: go offline, keep events locally
		e.bufferEvent(record)
		e.escalate(record)
		return Outcome{Escalated: true, Buffered: true, Err: err}
	}

	return Outcome{
		Retry:      true,
		RetryAfter: e.retrier.Delay(record.AttemptCount),
		Err:        err,
	}
}

func (e *RecoveryExecutor) circuitBreaker(ctx context.Context, record *FailureRecord) Outcome {
	dependency := record.Component

	if !e.breakers.Allow(dependency) {
		// Breaker open: short-circuit to the fallback path without touching
		// the real dependency.
		e.bufferEvent(record)
		e.tracker.Raise(LevelModerate)

		retryAfter := e.config.RetryBaseDelay
		if next := e.breakers.State(dependency).NextRetryTime; !next.IsZero() {
			if wait := time.Until(next); wait > retryAfter {
				retryAfter = wait
			}
		}

		return Outcome{Buffered: true, Retry: true, RetryAfter: retryAfter}
	}

	err := e.attempt(ctx, record)
	if err != nil {
		e.breakers.RecordFailure(dependency)

		if record.AttemptCount >= e.config.MaxRetries {
			e.bufferEvent(record)
			e.escalate(record)
			return Outcome{Escalated: true, Buffered: true, Err: err}
		}

		return Outcome{
			Retry:      true,
			RetryAfter: e.retrier.Delay(record.AttemptCount),
			Err:        err,
		}
	}

	e.breakers.RecordSuccess(dependency)
	return Outcome{Resolved: true}
}

func (e *RecoveryExecutor) gracefulDegradation(ctx context.Context, record *FailureRecord) Outcome {
	// Remediate once; a persisting condition escalates instead of looping.
	if record.AttemptCount > 1 {
		e.escalate(record)
		return Outcome{Escalated: true}
	}

	if fn := e.remediation(record.Type); fn != nil {
		if err := fn(ctx); err != nil {
			e.escalate(record)
			return Outcome{Escalated: true, Err: err}
		}
	}

	// A probe, when plumbed, tells us whether the condition actually
	// cleared. Without one the remediation is assumed to have worked.
	if probe := e.probe(record.Component); probe != nil {
		if err := probe.Attempt(ctx); err != nil {
			e.escalate(record)
			return Outcome{Escalated: true, Err: err}
		}
	}

	return Outcome{Resolved: true}
}

func (e *RecoveryExecutor) fallback(ctx context.Context, record *FailureRecord) Outcome {
	e.bufferEvent(record)

	// Opportunistically try the primary so the buffer drains as soon as it
	// recovers.
	err := e.attempt(ctx, record)
	if err == nil {
		return Outcome{Resolved: true, Buffered: true}
	}

	if record.AttemptCount >= e.config.MaxRetries {
		e.escalate(record)
		return Outcome{Escalated: true, Buffered: true, Err: err}
	}

	return Outcome{
		Buffered:   true,
		Retry:      true,
		RetryAfter: e.retrier.Delay(record.AttemptCount),
		Err:        err,
	}
}

func (e *RecoveryExecutor) bufferEvent(record *FailureRecord) {
	e.buffer.Append(NewEvent(record.Component, string(record.Type), map[string]string{
		"failure_id":  record.ID,
		"description": record.Description,
		"severity":    string(record.Severity),
	}))
}

// escalate raises the degradation level according to the failure severity
func (e *RecoveryExecutor) escalate(record *FailureRecord) {
	level := LevelModerate
	if record.Severity == SeverityCritical {
		level = LevelSevere
	}
	e.tracker.Raise(level)

	e.logger.Warn("Recovery exhausted, escalating",
		"failure_id", record.ID,
		"failure_type", string(record.Type),
		"strategy", string(record.Strategy),
		"attempts", record.AttemptCount,
		"level", level.String(),
	)
}

type errNoProbe string

func (e errNoProbe) Error() string {
	return "no recovery probe registered for dependency: " + string(e)
}
