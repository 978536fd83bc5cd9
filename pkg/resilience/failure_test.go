package resilience

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/obsguard/obsguard/pkg/errors"
)

func TestClassifier_TypedErrorsWin(t *testing.T) {
	classifier := NewClassifier()

	tests := []struct {
		name       string
		err        error
		dependency string
		want       FailureType
	}{
		{"network error", errors.NewNetworkError("refused"), "redis", FailureNetwork},
		{"timeout is network", errors.NewTimeoutError("flush"), "redis", FailureNetwork},
		{"storage error", errors.NewStorageError("disk full"), "storage", FailureStorageFull},
		{"config error", errors.NewConfigError("bad key"), "config", FailureConfig},
		{"validation is config", errors.NewValidationError("bad value"), "config", FailureConfig},
		{"permission error", errors.NewPermissionError("denied"), "filesystem", FailurePermissionDenied},
		{"resource error", errors.NewResourceError("oom"), "memory", FailureMemoryExhausted},
		{"external against sentry", errors.NewExternalError("sentry", "503"), "sentry", FailureSentryUnavailable},
		{"external elsewhere", errors.NewExternalError("webhook", "503"), "webhook", FailureNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failureType, _ := classifier.Classify(tt.err, tt.dependency)
			assert.Equal(t, tt.want, failureType)
		})
	}
}

func TestClassifier_TextHeuristics(t *testing.T) {
	classifier := NewClassifier()

	tests := []struct {
		message string
		want    FailureType
	}{
		{"runtime: out of memory", FailureMemoryExhausted},
		{"write /var/log: no space left on device", FailureStorageFull},
		{"open /etc/secret: permission denied", FailurePermissionDenied},
		{"dial tcp: connection refused", FailureNetwork},
		{"lookup api.example.com: no such host", FailureNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			failureType, _ := classifier.Classify(stderrors.New(tt.message), "misc")
			assert.Equal(t, tt.want, failureType)
		})
	}
}

func TestClassifier_DependencyFallback(t *testing.T) {
	classifier := NewClassifier()
	opaque := stderrors.New("something happened")

	tests := []struct {
		dependency string
		want       FailureType
	}{
		{"sentry", FailureSentryUnavailable},
		{"logging", FailureLogging},
		{"network", FailureNetwork},
		{"storage", FailureStorageFull},
		{"memory", FailureMemoryExhausted},
		{"somewhere-else", FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.dependency, func(t *testing.T) {
			failureType, _ := classifier.Classify(opaque, tt.dependency)
			assert.Equal(t, tt.want, failureType)
		})
	}
}

func TestClassifier_NetworkAgainstSentryIsSentryDown(t *testing.T) {
	classifier := NewClassifier()

	failureType, _ := classifier.Classify(errors.NewNetworkError("refused"), "sentry")
	assert.Equal(t, FailureSentryUnavailable, failureType)
}

func TestClassifier_NilError(t *testing.T) {
	classifier := NewClassifier()

	failureType, severity := classifier.Classify(nil, "misc")
	assert.Equal(t, FailureUnknown, failureType)
	assert.Equal(t, SeverityLow, severity)
}

func TestFailureType_DefaultSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, FailureMemoryExhausted.DefaultSeverity())
	assert.Equal(t, SeverityHigh, FailureStorageFull.DefaultSeverity())
	assert.Equal(t, SeverityHigh, FailureConfig.DefaultSeverity())
	assert.Equal(t, SeverityHigh, FailurePermissionDenied.DefaultSeverity())
	assert.Equal(t, SeverityMedium, FailureSentryUnavailable.DefaultSeverity())
	assert.Equal(t, SeverityMedium, FailureNetwork.DefaultSeverity())
	assert.Equal(t, SeverityMedium, FailureLogging.DefaultSeverity())
	assert.Equal(t, SeverityLow, FailureUnknown.DefaultSeverity())
}

func TestSeverity_Rank(t *testing.T) {
	assert.Less(t, SeverityLow.Rank(), SeverityMedium.Rank())
	assert.Less(t, SeverityMedium.Rank(), SeverityHigh.Rank())
	assert.Less(t, SeverityHigh.Rank(), SeverityCritical.Rank())
}

func TestNewFailureRecord(t *testing.T) {
	record := NewFailureRecord(FailureSentryUnavailable, SeverityMedium, "sentry", "dsn unreachable")

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, StrategyCircuitBreaker, record.Strategy)
	assert.NotEmpty(t, record.Impact)
	assert.False(t, record.StartTime.IsZero())
	assert.False(t, record.Resolved)
	assert.Zero(t, record.AttemptCount)
}
