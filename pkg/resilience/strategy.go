package resilience

import "context"

// RecoveryStrategy identifies how a failure type is recovered from
type RecoveryStrategy string

const (
	StrategyImmediateRetry      RecoveryStrategy = "immediate_retry"
	StrategyExponentialBackoff  RecoveryStrategy = "exponential_backoff"
	StrategyCircuitBreaker      RecoveryStrategy = "circuit_breaker"
	StrategyGracefulDegradation RecoveryStrategy = "graceful_degradation"
	StrategyFailover            RecoveryStrategy = "failover"
	StrategyCacheFallback       RecoveryStrategy = "cache_fallback"
	StrategyLocalStorage        RecoveryStrategy = "local_storage"
)

// strategyByType maps each failure type to exactly one recovery strategy
var strategyByType = map[FailureType]RecoveryStrategy{
	FailureSentryUnavailable: StrategyCircuitBreaker,
	FailureLogging:           StrategyLocalStorage,
	FailureNetwork:           StrategyExponentialBackoff,
	FailureStorageFull:       StrategyGracefulDegradation,
	FailureConfig:            StrategyFailover,
	FailureMemoryExhausted:   StrategyGracefulDegradation,
	FailurePermissionDenied:  StrategyCacheFallback,
	FailureUnknown:           StrategyImmediateRetry,
}

// StrategyFor returns the recovery strategy for a failure type
func StrategyFor(t FailureType) RecoveryStrategy {
	if strategy, ok := strategyByType[t]; ok {
		return strategy
	}
	return StrategyImmediateRetry
}

// Probe is a single real recovery attempt against a dependency. Probes are
// injected per dependency so recovery outcomes are observable behavior of
// the dependency, not simulated, and tests can supply deterministic fakes.
type Probe interface {
	Attempt(ctx context.Context) error
}

// ProbeFunc adapts a function to the Probe interface
type ProbeFunc func(ctx context.Context) error

// Attempt implements Probe
func (f ProbeFunc) Attempt(ctx context.Context) error {
	return f(ctx)
}
