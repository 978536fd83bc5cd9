// Package resilience provides failure classification, circuit breaking,
// recovery-strategy execution, and graceful degradation for the telemetry
// subsystems obsguard protects.
//
// This package implements the following patterns:
//
// # Failure Classification
//
// Raised errors are mapped to a FailureType and a default severity, either
// from the application error taxonomy or from error-text heuristics.
//
//	classifier := resilience.NewClassifier()
//	failureType, severity := classifier.Classify(err, "sentry")
//
// # Circuit Breaker Pattern
//
// Per-dependency breakers stop calling a failing dependency for a cooldown
// period after repeated failures, bounding retry storms. An open breaker
// only closes again after a successful half-open probe.
//
//	reg := resilience.NewBreakerRegistry(resilience.DefaultBreakerConfig())
//	if reg.Allow("sentry") {
//		err := probe.Attempt(ctx)
//		if err != nil {
//			reg.RecordFailure("sentry")
//		} else {
//			reg.RecordSuccess("sentry")
//		}
//	}
//
// # Recovery Strategies
//
// Each FailureType maps to exactly one RecoveryStrategy (immediate retry,
// exponential backoff, circuit breaking, graceful degradation, failover,
// cache fallback, or local buffering). The RecoveryExecutor runs the
// strategy and reports the outcome; probes are injected per dependency so
// tests can supply deterministic fakes.
//
// # Graceful Degradation
//
// The DegradationTracker aggregates unresolved failures into a coarse
// level (none through critical) and exposes per-level operator
// recommendations. The level never silently downgrades mid-cycle; it only
// drops on an explicit resolution event.
//
// # Orchestration
//
// The Manager owns the failure records, component health, and periodic
// maintenance tasks. All shared state is mutated through Manager methods.
//
//	mgr := resilience.NewManager(cfg, resilience.WithLogger(logger))
//	mgr.Start()
//	defer mgr.Stop()
//
//	mgr.ReportFailure(resilience.FailureNetwork, err, "network")
//	health := mgr.GetSystemHealth()
//
// The package is designed to be thread-safe; ReportFailure and
// GetSystemHealth never panic through the public API.
package resilience
