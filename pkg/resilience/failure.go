package resilience

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/obsguard/obsguard/pkg/errors"
)

// FailureType identifies the class of a reported failure
type FailureType string

const (
	FailureSentryUnavailable FailureType = "sentry_unavailable"
	FailureLogging           FailureType = "logging_failure"
	FailureNetwork           FailureType = "network_error"
	FailureStorageFull       FailureType = "storage_full"
	FailureConfig            FailureType = "config_error"
	FailureMemoryExhausted   FailureType = "memory_exhausted"
	FailurePermissionDenied  FailureType = "permission_denied"
	FailureUnknown           FailureType = "unknown_error"
)

// Severity represents how serious a failure is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns an ordinal for severity comparison
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// DefaultSeverity returns the initial severity assigned to a failure type
func (t FailureType) DefaultSeverity() Severity {
	switch t {
	case FailureSentryUnavailable:
		return SeverityMedium
	case FailureLogging:
		return SeverityMedium
	case FailureNetwork:
		return SeverityMedium
	case FailureStorageFull:
		return SeverityHigh
	case FailureConfig:
		return SeverityHigh
	case FailureMemoryExhausted:
		return SeverityCritical
	case FailurePermissionDenied:
		return SeverityHigh
	default:
		return SeverityLow
	}
}

// FailureRecord tracks one reported failure through its recovery lifecycle.
// Owned exclusively by the Manager; callers only ever see copies.
type FailureRecord struct {
	ID           string           `json:"id"`
	Type         FailureType      `json:"type"`
	Severity     Severity         `json:"severity"`
	StartTime    time.Time        `json:"start_time"`
	Description  string           `json:"description"`
	Impact       string           `json:"impact"`
	Component    string           `json:"component"`
	Strategy     RecoveryStrategy `json:"recovery_strategy"`
	AttemptCount int              `json:"attempt_count"`
	LastAttempt  time.Time        `json:"last_attempt,omitempty"`
	Resolved     bool             `json:"resolved"`
	ResolvedAt   time.Time        `json:"resolved_at,omitempty"`
}

// NewFailureRecord creates a failure record for a classified failure
func NewFailureRecord(failureType FailureType, severity Severity, component, description string) *FailureRecord {
	return &FailureRecord{
		ID:          uuid.New().String(),
		Type:        failureType,
		Severity:    severity,
		StartTime:   time.Now(),
		Description: description,
		Impact:      failureImpact(failureType),
		Component:   component,
		Strategy:    StrategyFor(failureType),
	}
}

func failureImpact(t FailureType) string {
	switch t {
	case FailureSentryUnavailable:
		return "error reports are not reaching the backend"
	case FailureLogging:
		return "log records may be lost"
	case FailureNetwork:
		return "telemetry delivery is delayed"
	case FailureStorageFull:
		return "local buffering is at capacity"
	case FailureConfig:
		return "subsystem is running without valid configuration"
	case FailureMemoryExhausted:
		return "process is at risk of being killed"
	case FailurePermissionDenied:
		return "subsystem cannot access a required resource"
	default:
		return "impact unknown"
	}
}

// Classifier maps raised errors to a FailureType and initial severity
type Classifier struct{}

// NewClassifier creates a failure classifier
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify maps an error plus the dependency it was raised against into a
// FailureType and severity. Typed application errors win over text
// heuristics; the dependency name is the fallback.
func (c *Classifier) Classify(err error, dependency string) (FailureType, Severity) {
	failureType := c.classifyType(err, dependency)
	severity := failureType.DefaultSeverity()

	// Repeated network errors against the error reporter are treated as
	// the reporter being down, not a generic network problem.
	if failureType == FailureNetwork && dependency == "sentry" {
		failureType = FailureSentryUnavailable
	}

	return failureType, severity
}

func (c *Classifier) classifyType(err error, dependency string) FailureType {
	if err == nil {
		return FailureUnknown
	}

	switch errors.GetType(err) {
	case errors.ErrorTypeNetwork, errors.ErrorTypeTimeout:
		return FailureNetwork
	case errors.ErrorTypeStorage:
		return FailureStorageFull
	case errors.ErrorTypeConfig, errors.ErrorTypeValidation:
		return FailureConfig
	case errors.ErrorTypePermission:
		return FailurePermissionDenied
	case errors.ErrorTypeResource:
		return FailureMemoryExhausted
	case errors.ErrorTypeExternal:
		if dependency == "sentry" {
			return FailureSentryUnavailable
		}
		return FailureNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "out of memory") || strings.Contains(msg, "cannot allocate"):
		return FailureMemoryExhausted
	case strings.Contains(msg, "no space") || strings.Contains(msg, "disk full") || strings.Contains(msg, "quota exceeded"):
		return FailureStorageFull
	case strings.Contains(msg, "permission denied") || strings.Contains(msg, "access denied"):
		return FailurePermissionDenied
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "network"):
		return FailureNetwork
	}

	switch dependency {
	case "sentry":
		return FailureSentryUnavailable
	case "logging":
		return FailureLogging
	case "network":
		return FailureNetwork
	case "storage":
		return FailureStorageFull
	case "memory":
		return FailureMemoryExhausted
	}

	return FailureUnknown
}
