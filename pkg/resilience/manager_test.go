package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsguard/obsguard/pkg/errors"
)

func fastManagerConfig() ManagerConfig {
	config := DefaultManagerConfig()
	config.Executor = ExecutorConfig{
		MaxRetries:      3,
		RetryBaseDelay:  time.Millisecond,
		RetryMaxDelay:   10 * time.Millisecond,
		RetryMultiplier: 2.0,
	}
	config.SweepInterval = time.Hour
	config.CleanupInterval = time.Hour
	return config
}

func activeFailureCount(m *Manager) int {
	return len(m.GetSystemHealth().ActiveFailures)
}

// blockingProbe parks every attempt until the test releases it, then
// succeeds. It keeps records active for as long as an assertion needs.
type blockingProbe struct {
	release chan struct{}
}

func newBlockingProbe() *blockingProbe {
	return &blockingProbe{release: make(chan struct{})}
}

func (p *blockingProbe) Attempt(ctx context.Context) error {
	<-p.release
	return nil
}

func TestManager_ReportFailureCreatesRecord(t *testing.T) {
	manager := NewManager(fastManagerConfig())

	id := manager.ReportFailure(FailureSentryUnavailable, errors.NewExternalError("sentry", "503"), "sentry")
	require.NotEmpty(t, id)

	health := manager.GetSystemHealth()
	require.Len(t, health.ActiveFailures, 1)

	record := health.ActiveFailures[0]
	assert.Equal(t, id, record.ID)
	assert.Equal(t, FailureSentryUnavailable, record.Type)
	assert.Equal(t, StrategyCircuitBreaker, record.Strategy)
	assert.Equal(t, "sentry", record.Component)
	assert.NotEmpty(t, health.RecoveryActions)
}

func TestManager_ClassifiesWhenTypeOmitted(t *testing.T) {
	manager := NewManager(fastManagerConfig())

	probe := newBlockingProbe()
	defer close(probe.release)
	manager.RegisterProbe("storage", probe)

	id := manager.ReportFailure("", errors.NewStorageError("no space left on device"), "storage")
	require.NotEmpty(t, id)

	health := manager.GetSystemHealth()
	require.Len(t, health.ActiveFailures, 1)
	assert.Equal(t, FailureStorageFull, health.ActiveFailures[0].Type)
	assert.Equal(t, SeverityHigh, health.ActiveFailures[0].Severity)
}

func TestManager_RecoveryResolvesWithHealthyProbe(t *testing.T) {
	manager := NewManager(fastManagerConfig())
	manager.RegisterProbe("misc", ProbeFunc(func(ctx context.Context) error {
		return nil
	}))

	id := manager.ReportFailure(FailureUnknown, errors.NewInternalError("hiccup"), "misc")
	require.NotEmpty(t, id)

	assert.Eventually(t, func() bool {
		return activeFailureCount(manager) == 0
	}, 2*time.Second, 5*time.Millisecond, "a succeeding probe should resolve the failure")
}

func TestManager_RecoveryRetriesUntilProbeRecovers(t *testing.T) {
	manager := NewManager(fastManagerConfig())

	probe := &scriptedProbe{failures: 2}
	manager.RegisterProbe("network", probe)

	manager.ReportFailure(FailureNetwork, errors.NewNetworkError("link down"), "network")

	assert.Eventually(t, func() bool {
		return activeFailureCount(manager) == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, probe.calls)
}

func TestManager_ExhaustedRecoveryLeavesComponentDegraded(t *testing.T) {
	manager := NewManager(fastManagerConfig())
	manager.RegisterProbe("network", &scriptedProbe{failures: 100})

	manager.ReportFailure(FailureNetwork, errors.NewNetworkError("link down"), "network")

	assert.Eventually(t, func() bool {
		health := manager.GetSystemHealth()
		network, ok := health.Components["network"]
		return ok && network.Degraded
	}, 2*time.Second, 5*time.Millisecond)

	// The record stays active; the component operates degraded
	assert.Equal(t, 1, activeFailureCount(manager))
	assert.NotEqual(t, LevelNone, manager.DegradationLevel())
}

func TestManager_ResolveFailure(t *testing.T) {
	manager := NewManager(fastManagerConfig())

	id := manager.ReportFailure(FailureLogging, errors.NewInternalError("file handle lost"), "logging")
	require.NotEmpty(t, id)

	assert.True(t, manager.ResolveFailure(id))
	assert.Zero(t, activeFailureCount(manager))

	health := manager.GetSystemHealth()
	assert.Equal(t, ComponentHealthy, health.Components["logging"].Status)
}

func TestManager_ResolveUnknownFailure(t *testing.T) {
	manager := NewManager(fastManagerConfig())
	assert.False(t, manager.ResolveFailure("nonexistent"))
}

func TestManager_ResolutionLowersDegradation(t *testing.T) {
	manager := NewManager(fastManagerConfig())

	probe := newBlockingProbe()
	defer close(probe.release)
	manager.RegisterProbe("memory", probe)

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id := manager.ReportFailure(FailureMemoryExhausted, errors.NewResourceError("oom"), "memory")
		ids = append(ids, id)
	}

	// Three critical failures push the level to moderate
	assert.GreaterOrEqual(t, int(manager.DegradationLevel()), int(LevelModerate))

	for _, id := range ids {
		manager.ResolveFailure(id)
	}
	assert.Equal(t, LevelNone, manager.DegradationLevel())
}

func TestManager_ComponentStatusTracksSeverity(t *testing.T) {
	manager := NewManager(fastManagerConfig())

	probe := newBlockingProbe()
	defer close(probe.release)
	manager.RegisterProbe("sentry", probe)
	manager.RegisterProbe("storage", probe)

	manager.ReportFailure(FailureSentryUnavailable, errors.NewExternalError("sentry", "503"), "sentry")
	health := manager.GetSystemHealth()
	assert.Equal(t, ComponentWarning, health.Components["sentry"].Status, "medium severity warns")

	manager.ReportFailure(FailureStorageFull, errors.NewStorageError("disk full"), "storage")
	health = manager.GetSystemHealth()
	assert.Equal(t, ComponentError, health.Components["storage"].Status, "high severity errors")
}

func TestManager_OverallStatus(t *testing.T) {
	manager := NewManager(fastManagerConfig())
	assert.Equal(t, OverallHealthy, manager.GetSystemHealth().Overall)

	probe := newBlockingProbe()
	defer close(probe.release)
	manager.RegisterProbe("memory", probe)

	id := manager.ReportFailure(FailureMemoryExhausted, errors.NewResourceError("oom"), "memory")
	assert.Equal(t, OverallDegraded, manager.GetSystemHealth().Overall)

	manager.ResolveFailure(id)
	assert.Equal(t, OverallHealthy, manager.GetSystemHealth().Overall)
}

func TestManager_HealthSweepUsesStorageProbe(t *testing.T) {
	probeErr := errors.NewStorageError("disk full")
	manager := NewManager(fastManagerConfig(),
		WithStorageProbe(func(ctx context.Context) error { return probeErr }),
	)

	recovery := newBlockingProbe()
	defer close(recovery.release)
	manager.RegisterProbe("storage", recovery)

	require.NoError(t, manager.RunMaintenance("health_sweep"))

	health := manager.GetSystemHealth()
	require.Len(t, health.ActiveFailures, 1)
	assert.Equal(t, FailureStorageFull, health.ActiveFailures[0].Type)
	assert.Equal(t, "storage", health.ActiveFailures[0].Component)

	// A second sweep does not duplicate the active record
	require.NoError(t, manager.RunMaintenance("health_sweep"))
	assert.Equal(t, 1, activeFailureCount(manager))
}

func TestManager_HealthSweepFlushesBufferWhenSinkHealthy(t *testing.T) {
	sink := &recordingSink{healthy: true}
	manager := NewManager(fastManagerConfig(), WithSink(sink))

	manager.Buffer().Append(NewEvent("logging", "log_entry", nil))
	manager.Buffer().Append(NewEvent("logging", "log_entry", nil))

	require.NoError(t, manager.RunMaintenance("health_sweep"))

	assert.Zero(t, manager.Buffer().Len())
	require.Len(t, sink.writes, 1)
	assert.Len(t, sink.writes[0], 2)
}

func TestManager_HealthSweepSkipsUnhealthySink(t *testing.T) {
	sink := &recordingSink{healthy: false}
	manager := NewManager(fastManagerConfig(), WithSink(sink))

	manager.Buffer().Append(NewEvent("logging", "log_entry", nil))

	require.NoError(t, manager.RunMaintenance("health_sweep"))

	assert.Equal(t, 1, manager.Buffer().Len(), "events stay buffered while the sink is down")
	assert.Empty(t, sink.writes)
}

func TestManager_CleanupRemovesOldResolvedRecords(t *testing.T) {
	config := fastManagerConfig()
	config.ResolvedRetention = time.Millisecond
	manager := NewManager(config)

	id := manager.ReportFailure(FailureLogging, errors.NewInternalError("lost handle"), "logging")
	require.True(t, manager.ResolveFailure(id))

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, manager.RunMaintenance("failure_cleanup"))

	manager.mutex.Lock()
	_, exists := manager.records[id]
	manager.mutex.Unlock()
	assert.False(t, exists, "resolved records past retention are removed")
}

func TestManager_GetSystemHealthSortsFailuresByStartTime(t *testing.T) {
	manager := NewManager(fastManagerConfig())

	first := manager.ReportFailure(FailureNetwork, errors.NewNetworkError("one"), "network")
	time.Sleep(2 * time.Millisecond)
	second := manager.ReportFailure(FailureLogging, errors.NewInternalError("two"), "logging")

	health := manager.GetSystemHealth()
	require.Len(t, health.ActiveFailures, 2)
	assert.Equal(t, first, health.ActiveFailures[0].ID)
	assert.Equal(t, second, health.ActiveFailures[1].ID)
}

func TestManager_StartStopIdempotent(t *testing.T) {
	manager := NewManager(fastManagerConfig())

	manager.Start()
	manager.Start()
	manager.Stop()
	assert.NotPanics(t, manager.Stop)
}

func TestManager_EmptyComponentDefaultsToUnknown(t *testing.T) {
	manager := NewManager(fastManagerConfig())

	id := manager.ReportFailure(FailureUnknown, errors.NewInternalError("odd"), "")
	require.NotEmpty(t, id)

	health := manager.GetSystemHealth()
	require.Len(t, health.ActiveFailures, 1)
	assert.Equal(t, "unknown", health.ActiveFailures[0].Component)
}

func TestManager_ReportFailureSurvivesSevereDegradation(t *testing.T) {
	manager := NewManager(fastManagerConfig())

	probe := newBlockingProbe()
	defer close(probe.release)
	manager.RegisterProbe("memory", probe)

	// Five critical failures push the level to severe, which fires the
	// alerting hook. Reporting must still return promptly.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			manager.ReportFailure(FailureMemoryExhausted, errors.NewInternalError("heap exhausted"), "memory")
		}
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("ReportFailure blocked while raising the degradation level")
	}

	assert.Equal(t, LevelSevere, manager.DegradationLevel())

	health := manager.GetSystemHealth()
	assert.Len(t, health.ActiveFailures, 5)
	assert.NotEmpty(t, manager.GetDegradationRecommendations())
}
