// Package checks provides the built-in gate checks that inspect the
// resilience manager, runtime, and configuration of a running instance.
// Each check returns a scored result; the gate turns those into a
// proceed/warning/block decision.
package checks

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/obsguard/obsguard/pkg/config"
	"github.com/obsguard/obsguard/pkg/gate"
	"github.com/obsguard/obsguard/pkg/logging"
	"github.com/obsguard/obsguard/pkg/resilience"
)

// SystemHealth builds a check over the manager's health snapshot. Active
// failures surface as issues at their recorded severity; the score drops
// with the overall status.
func SystemHealth(manager *resilience.Manager) gate.NamedCheck {
	return gate.NamedCheck{
		Name: "system_health",
		Run: func(ctx context.Context) (*gate.CheckResult, error) {
			start := time.Now()
			health := manager.GetSystemHealth()

			result := &gate.CheckResult{
				Passed: true,
				Score:  100,
			}

			switch health.Overall {
			case resilience.OverallFailed:
				result.Passed = false
				result.Score = 0
			case resilience.OverallDegraded:
				result.Score = 60
			}

			for _, failure := range health.ActiveFailures {
				result.Issues = append(result.Issues, gate.CheckIssue{
					Category:       "system_health",
					Severity:       issueSeverity(failure.Severity),
					Title:          fmt.Sprintf("Active failure in %s", failure.Component),
					Description:    failure.Description,
					Impact:         failure.Impact,
					Recommendation: fmt.Sprintf("Investigate the %s failure; recovery strategy %s is in progress", failure.Type, failure.Strategy),
				})
			}

			result.Duration = time.Since(start)
			return result, nil
		},
	}
}

// CircuitBreakers builds a check that flags open breakers. An open
// breaker means a dependency is being actively avoided, which is worth a
// warning but not an automatic block.
func CircuitBreakers(manager *resilience.Manager) gate.NamedCheck {
	return gate.NamedCheck{
		Name: "circuit_breakers",
		Run: func(ctx context.Context) (*gate.CheckResult, error) {
			start := time.Now()

			result := &gate.CheckResult{
				Passed: true,
				Score:  100,
			}

			for dependency, state := range manager.Breakers().States() {
				switch state.State {
				case resilience.StateOpen:
					result.Score -= 30
					result.Issues = append(result.Issues, gate.CheckIssue{
						Category:       "circuit_breaker",
						Severity:       gate.SeverityHigh,
						Title:          fmt.Sprintf("Circuit breaker open for %s", dependency),
						Description:    fmt.Sprintf("%d consecutive failures recorded", state.FailureCount),
						Impact:         fmt.Sprintf("Calls to %s are being rejected until the cooldown elapses", dependency),
						Recommendation: fmt.Sprintf("Check %s availability; the breaker probes again at %s", dependency, state.NextRetryTime.Format(time.RFC3339)),
					})
				case resilience.StateHalfOpen:
					result.Score -= 10
					result.Issues = append(result.Issues, gate.CheckIssue{
						Category:    "circuit_breaker",
						Severity:    gate.SeverityMedium,
						Title:       fmt.Sprintf("Circuit breaker half-open for %s", dependency),
						Description: "A recovery probe is in flight",
					})
				}
			}

			if result.Score < 0 {
				result.Score = 0
			}
			result.Passed = result.Score >= 50
			result.Duration = time.Since(start)
			return result, nil
		},
	}
}

// Degradation builds a check over the manager's degradation level.
// Severe or critical degradation fails the check outright.
func Degradation(manager *resilience.Manager) gate.NamedCheck {
	return gate.NamedCheck{
		Name: "degradation",
		Run: func(ctx context.Context) (*gate.CheckResult, error) {
			start := time.Now()
			level := manager.DegradationLevel()

			result := &gate.CheckResult{
				Passed:   true,
				Score:    degradationScore(level),
				Duration: 0,
			}

			if level >= resilience.LevelModerate {
				severity := gate.SeverityMedium
				if level >= resilience.LevelSevere {
					severity = gate.SeverityCritical
					result.Passed = false
				}
				result.Issues = append(result.Issues, gate.CheckIssue{
					Category:       "degradation",
					Severity:       severity,
					Title:          fmt.Sprintf("System degradation is %s", level),
					Impact:         "Non-essential observability features may be reduced or disabled",
					Recommendation: firstRecommendation(manager.GetDegradationRecommendations()),
				})
			}

			result.Duration = time.Since(start)
			return result, nil
		},
	}
}

// Memory builds a check over process heap usage against the configured
// limit
func Memory(limitMB int) gate.NamedCheck {
	return gate.NamedCheck{
		Name: "memory",
		Run: func(ctx context.Context) (*gate.CheckResult, error) {
			start := time.Now()

			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			usedMB := int(stats.HeapAlloc / (1024 * 1024))

			result := &gate.CheckResult{
				Passed: true,
				Score:  100,
			}

			if limitMB > 0 {
				switch {
				case usedMB >= limitMB:
					result.Passed = false
					result.Score = 0
					result.Issues = append(result.Issues, gate.CheckIssue{
						Category:       "memory",
						Severity:       gate.SeverityCritical,
						Title:          "Memory limit exceeded",
						Description:    fmt.Sprintf("heap usage %dMB against a limit of %dMB", usedMB, limitMB),
						Impact:         "The process is at risk of being OOM-killed",
						Recommendation: "Reduce buffer capacity or raise the memory limit",
					})
				case usedMB*10 >= limitMB*8:
					result.Score = 60
					result.Issues = append(result.Issues, gate.CheckIssue{
						Category:    "memory",
						Severity:    gate.SeverityHigh,
						Title:       "Memory usage above 80% of limit",
						Description: fmt.Sprintf("heap usage %dMB against a limit of %dMB", usedMB, limitMB),
					})
				}
			}

			result.Duration = time.Since(start)
			return result, nil
		},
	}
}

// Config builds a check that validates the loaded configuration
func Config(cfg *config.Config) gate.NamedCheck {
	return gate.NamedCheck{
		Name: "config",
		Run: func(ctx context.Context) (*gate.CheckResult, error) {
			start := time.Now()

			result := &gate.CheckResult{
				Passed: true,
				Score:  100,
			}

			if err := cfg.Validate(); err != nil {
				result.Passed = false
				result.Score = 0
				result.Issues = append(result.Issues, gate.CheckIssue{
					Category:       "config",
					Severity:       gate.SeverityCritical,
					Title:          "Configuration validation failed",
					Description:    err.Error(),
					Recommendation: "Fix the configuration before deploying",
				})
			}

			result.Duration = time.Since(start)
			return result, nil
		},
	}
}

// EventBuffer builds a check over buffered and dropped event counts. A
// persistently full buffer means the sink has been unreachable long
// enough to lose data.
func EventBuffer(manager *resilience.Manager, capacity int) gate.NamedCheck {
	return gate.NamedCheck{
		Name: "event_buffer",
		Run: func(ctx context.Context) (*gate.CheckResult, error) {
			start := time.Now()
			buffer := manager.Buffer()

			result := &gate.CheckResult{
				Passed: true,
				Score:  100,
			}

			if dropped := buffer.Dropped(); dropped > 0 {
				result.Score = 50
				result.Issues = append(result.Issues, gate.CheckIssue{
					Category:       "event_buffer",
					Severity:       gate.SeverityHigh,
					Title:          "Buffered events have been dropped",
					Description:    fmt.Sprintf("%d events dropped since start", dropped),
					Impact:         "Observability data was lost while the sink was unavailable",
					Recommendation: "Restore sink connectivity or increase buffer capacity",
				})
			} else if capacity > 0 && buffer.Len()*10 >= capacity*9 {
				result.Score = 70
				result.Issues = append(result.Issues, gate.CheckIssue{
					Category:    "event_buffer",
					Severity:    gate.SeverityMedium,
					Title:       "Event buffer above 90% capacity",
					Description: fmt.Sprintf("%d of %d slots used", buffer.Len(), capacity),
				})
			}

			result.Duration = time.Since(start)
			return result, nil
		},
	}
}

// LoggingThroughput builds a long-running probe that measures sustained
// logging throughput against a floor of entries per second. Quick gate
// passes skip it.
func LoggingThroughput(logger *logging.Logger, entries int, minPerSecond float64) gate.NamedCheck {
	return gate.NamedCheck{
		Name:        "logging_throughput",
		LongRunning: true,
		Run: func(ctx context.Context) (*gate.CheckResult, error) {
			start := time.Now()

			for i := 0; i < entries; i++ {
				if i%100 == 0 {
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					default:
					}
				}
				logger.Debug("throughput probe", "sequence", i)
			}

			elapsed := time.Since(start)
			perSecond := float64(entries) / elapsed.Seconds()

			result := &gate.CheckResult{
				Passed:   true,
				Score:    100,
				Duration: elapsed,
			}

			if minPerSecond > 0 && perSecond < minPerSecond {
				result.Passed = false
				result.Score = 40
				result.Issues = append(result.Issues, gate.CheckIssue{
					Category:    "logging",
					Severity:    gate.SeverityHigh,
					Title:       "Logging throughput below floor",
					Description: fmt.Sprintf("measured %.0f entries/s against a floor of %.0f", perSecond, minPerSecond),
					Impact:      "Log emission may back-pressure request handling under load",
				})
			}

			return result, nil
		},
	}
}

// Defaults returns the standard set of checks wired to the given
// manager and configuration
func Defaults(manager *resilience.Manager, cfg *config.Config, logger *logging.Logger) []gate.NamedCheck {
	return []gate.NamedCheck{
		SystemHealth(manager),
		CircuitBreakers(manager),
		Degradation(manager),
		Memory(cfg.Resilience.MemoryLimitMB),
		Config(cfg),
		EventBuffer(manager, cfg.Resilience.BufferCapacity),
		LoggingThroughput(logger, 5000, 1000),
	}
}

func issueSeverity(severity resilience.Severity) gate.Severity {
	switch severity {
	case resilience.SeverityCritical:
		return gate.SeverityCritical
	case resilience.SeverityHigh:
		return gate.SeverityHigh
	case resilience.SeverityMedium:
		return gate.SeverityMedium
	default:
		return gate.SeverityLow
	}
}

func degradationScore(level resilience.DegradationLevel) int {
	switch level {
	case resilience.LevelNone:
		return 100
	case resilience.LevelMinimal:
		return 85
	case resilience.LevelModerate:
		return 65
	case resilience.LevelSevere:
		return 40
	default:
		return 10
	}
}

func firstRecommendation(recommendations []string) string {
	if len(recommendations) == 0 {
		return ""
	}
	return recommendations[0]
}
