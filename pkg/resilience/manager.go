package resilience

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/obsguard/obsguard/pkg/logging"
	"github.com/obsguard/obsguard/pkg/metrics"
	"github.com/obsguard/obsguard/pkg/tracing"
)

// ComponentStatus represents the health status of one monitored component
type ComponentStatus string

const (
	ComponentHealthy ComponentStatus = "healthy"
	ComponentWarning ComponentStatus = "warning"
	ComponentError   ComponentStatus = "error"
	ComponentUnknown ComponentStatus = "unknown"
)

// OverallStatus represents the aggregate system status
type OverallStatus string

const (
	OverallHealthy  OverallStatus = "healthy"
	OverallDegraded OverallStatus = "degraded"
	OverallCritical OverallStatus = "critical"
	OverallFailed   OverallStatus = "failed"
)

// ComponentHealth tracks the status of one monitored component
type ComponentHealth struct {
	Status     ComponentStatus `json:"status"`
	LastCheck  time.Time       `json:"last_check"`
	ErrorCount int             `json:"error_count"`
	LastError  string          `json:"last_error,omitempty"`
	Degraded   bool            `json:"degraded"`
}

// SystemHealth is a pull-based aggregate snapshot, recomputed on read
type SystemHealth struct {
	Timestamp        time.Time                  `json:"timestamp"`
	Overall          OverallStatus              `json:"overall"`
	Components       map[string]ComponentHealth `json:"components"`
	ActiveFailures   []FailureRecord            `json:"active_failures"`
	DegradationLevel string                     `json:"degradation_level"`
	RecoveryActions  []string                   `json:"recovery_actions"`
}

// monitoredComponents are the telemetry-adjacent subsystems the manager
// watches
var monitoredComponents = []string{"sentry", "logging", "storage", "network", "memory"}

const maxRecoveryActions = 20

// ManagerConfig holds resilience manager configuration
type ManagerConfig struct {
	Breaker           BreakerConfig
	Executor          ExecutorConfig
	SweepInterval     time.Duration
	CleanupInterval   time.Duration
	ResolvedRetention time.Duration
	BufferCapacity    int
	MemoryLimitMB     int
}

// DefaultManagerConfig returns the default manager configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Breaker:           DefaultBreakerConfig(),
		Executor:          DefaultExecutorConfig(),
		SweepInterval:     30 * time.Second,
		CleanupInterval:   5 * time.Minute,
		ResolvedRetention: 10 * time.Minute,
		BufferCapacity:    1000,
		MemoryLimitMB:     512,
	}
}

// Manager orchestrates failure classification, recovery execution, and
// degradation tracking. It owns the failure records and component health;
// all mutation of shared state goes through its methods.
type Manager struct {
	mutex  sync.Mutex
	config ManagerConfig

	classifier *Classifier
	breakers   *BreakerRegistry
	executor   *RecoveryExecutor
	tracker    *DegradationTracker
	buffer     *EventBuffer
	alerts     *AlertManager
	scheduler  *Scheduler

	records         map[string]*FailureRecord
	cancels         map[string]context.CancelFunc
	components      map[string]*ComponentHealth
	recoveryActions []string

	sink         Sink
	storageProbe func(ctx context.Context) error

	baseCtx    context.Context
	baseCancel context.CancelFunc
	started    bool

	logger  *logging.Logger
	metrics *metrics.Metrics
	tracing *tracing.TracingService
}

// ManagerOption customizes manager construction
type ManagerOption func(*Manager)

// WithLogger sets the manager logger
func WithLogger(logger *logging.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics sets the metrics collector
func WithMetrics(mx *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mx }
}

// WithTracing sets the tracing service recovery attempts are traced with
func WithTracing(ts *tracing.TracingService) ManagerOption {
	return func(m *Manager) { m.tracing = ts }
}

// WithSink sets the injected sink buffered events are flushed to
func WithSink(sink Sink) ManagerOption {
	return func(m *Manager) { m.sink = sink }
}

// WithStorageProbe sets the injected storage health probe
func WithStorageProbe(probe func(ctx context.Context) error) ManagerOption {
	return func(m *Manager) { m.storageProbe = probe }
}

// WithAlertManager sets the alert manager
func WithAlertManager(alerts *AlertManager) ManagerOption {
	return func(m *Manager) { m.alerts = alerts }
}

// NewManager creates a fully wired resilience manager
func NewManager(config ManagerConfig, opts ...ManagerOption) *Manager {
	if config.SweepInterval <= 0 {
		config.SweepInterval = 30 * time.Second
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.ResolvedRetention <= 0 {
		config.ResolvedRetention = 10 * time.Minute
	}

	m := &Manager{
		config:     config,
		classifier: NewClassifier(),
		tracker:    NewDegradationTracker(),
		scheduler:  NewScheduler(),
		records:    make(map[string]*FailureRecord),
		cancels:    make(map[string]context.CancelFunc),
		components: make(map[string]*ComponentHealth),
		logger:     logging.GetLogger(),
	}

	for _, opt := range opts {
		opt(m)
	}

	breakerConfig := config.Breaker
	if m.metrics != nil {
		base := config.Breaker.OnStateChange
		breakerConfig.OnStateChange = func(dep string, from, to CircuitState) {
			m.metrics.RecordBreakerTransition(dep, from.String(), to.String(), int(to))
			if base != nil {
				base(dep, from, to)
			}
		}
	}
	m.breakers = NewBreakerRegistry(breakerConfig)

	m.buffer = NewEventBuffer("telemetry", config.BufferCapacity, m.metrics)
	m.executor = NewRecoveryExecutor(config.Executor, m.breakers, m.buffer, m.tracker, m.metrics)

	if m.alerts == nil {
		m.alerts = NewAlertManager()
		m.alerts.AddHandler(NewLoggingAlertHandler(m.logger))
	}

	for _, name := range monitoredComponents {
		m.components[name] = &ComponentHealth{Status: ComponentUnknown}
	}

	m.tracker.OnRaise(func(level DegradationLevel) {
		if m.metrics != nil {
			m.metrics.UpdateDegradationLevel(int(level))
		}
		if level >= LevelSevere {
			alert := degradationAlert(level, m.tracker.Recommendations())
			go m.alerts.SendAlert(context.Background(), alert)
		}
	})

	// Background maintenance: tasks are registered before Start, cancelled
	// together on Stop.
	_ = m.scheduler.Register("health_sweep", config.SweepInterval, m.healthSweep)
	_ = m.scheduler.Register("failure_cleanup", config.CleanupInterval, m.cleanupResolved)

	return m
}

// Start launches background maintenance
func (m *Manager) Start() {
	m.mutex.Lock()
	if m.started {
		m.mutex.Unlock()
		return
	}
	m.started = true
	m.baseCtx, m.baseCancel = context.WithCancel(context.Background())
	m.mutex.Unlock()

	m.scheduler.Start()
	m.logger.Info("Resilience manager started",
		"sweep_interval", m.config.SweepInterval,
		"buffer_capacity", m.config.BufferCapacity,
	)
}

// Stop cancels background maintenance and all pending recovery retries
func (m *Manager) Stop() {
	m.mutex.Lock()
	if !m.started {
		m.mutex.Unlock()
		return
	}
	m.started = false
	cancel := m.baseCancel
	m.mutex.Unlock()

	cancel()
	m.scheduler.Stop()
	m.logger.Info("Resilience manager stopped")
}

// RegisterProbe registers the recovery probe for a dependency
func (m *Manager) RegisterProbe(dependency string, probe Probe) {
	m.executor.RegisterProbe(dependency, probe)
}

// Breakers exposes the circuit breaker registry for read-side inspection
func (m *Manager) Breakers() *BreakerRegistry {
	return m.breakers
}

// Buffer exposes the local event buffer
func (m *Manager) Buffer() *EventBuffer {
	return m.buffer
}

// DegradationLevel returns the current degradation level
func (m *Manager) DegradationLevel() DegradationLevel {
	return m.tracker.Level()
}

// GetDegradationRecommendations returns operator guidance for the current
// degradation level
func (m *Manager) GetDegradationRecommendations() []string {
	return m.tracker.Recommendations()
}

// ReportFailure records a failure and starts its recovery. An empty
// failure type is classified from the error. Never panics; returns the
// failure record ID, or empty string if the report could not be taken.
func (m *Manager) ReportFailure(failureType FailureType, err error, component string) (id string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.LogPanic(r, "ReportFailure panicked")
			id = ""
		}
	}()

	severity := failureType.DefaultSeverity()
	if failureType == "" || failureType == FailureUnknown {
		failureType, severity = m.classifier.Classify(err, component)
	}
	if component == "" {
		component = "unknown"
	}

	description := "failure reported with no error detail"
	if err != nil {
		description = err.Error()
	}

	record := NewFailureRecord(failureType, severity, component, description)

	m.mutex.Lock()
	m.records[record.ID] = record
	m.touchComponentLocked(component, severity, description)
	m.recordActionLocked(fmt.Sprintf("%s recovery started for %s (%s)",
		record.Strategy, component, failureType))
	active := m.activeRecordsLocked()

	var retryCtx context.Context
	if m.started {
		retryCtx, m.cancels[record.ID] = context.WithCancel(m.baseCtx)
	} else {
		retryCtx, m.cancels[record.ID] = context.WithCancel(context.Background())
	}
	m.mutex.Unlock()

	if m.metrics != nil {
		m.metrics.RecordFailure(string(failureType), string(severity), component)
	}

	m.tracker.Evaluate(active)
	m.updateActiveFailureGauges()

	m.logger.LogFailureEvent("reported", record.ID, string(failureType), component, nil)

	go m.runRecovery(retryCtx, record.ID)

	return record.ID
}

// runRecovery drives recovery attempts for one record until it resolves,
// escalates, or is cancelled
func (m *Manager) runRecovery(ctx context.Context, id string) {
	for {
		m.mutex.Lock()
		record, ok := m.records[id]
		if !ok || record.Resolved {
			m.mutex.Unlock()
			return
		}
		// Work on a copy so probe attempts run outside the manager lock.
		clone := *record
		m.mutex.Unlock()

		execCtx := ctx
		var span oteltrace.Span
		if m.tracing != nil {
			execCtx, span = m.tracing.StartRecoverySpan(ctx, string(clone.Strategy), clone.Component)
		}

		outcome := m.executor.Execute(execCtx, &clone)

		if span != nil {
			if outcome.Err != nil {
				m.tracing.RecordError(span, outcome.Err)
			}
			span.End()
		}

		m.mutex.Lock()
		record, ok = m.records[id]
		if !ok {
			m.mutex.Unlock()
			return
		}
		if record.Resolved {
			// Resolved concurrently; this attempt's bookkeeping is moot.
			m.mutex.Unlock()
			return
		}
		record.AttemptCount = clone.AttemptCount
		record.LastAttempt = clone.LastAttempt

		switch {
		case outcome.Resolved:
			m.markResolvedLocked(record, "recovered")
			active := m.activeRecordsLocked()
			m.mutex.Unlock()
			m.tracker.ResolutionEvent(active)
			m.updateActiveFailureGauges()
			return

		case outcome.Escalated:
			component := m.components[record.Component]
			if component != nil {
				component.Degraded = true
				component.Status = ComponentError
			}
			m.recordActionLocked(fmt.Sprintf("recovery for %s exhausted after %d attempts, operating degraded",
				record.Component, record.AttemptCount))
			m.mutex.Unlock()
			return

		case outcome.Retry:
			m.mutex.Unlock()
			if outcome.RetryAfter > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(outcome.RetryAfter):
				}
			} else if ctx.Err() != nil {
				return
			}

		default:
			m.mutex.Unlock()
			return
		}
	}
}

// ResolveFailure marks a failure resolved and cancels any pending retry
// timer for it. Returns false if the record is unknown.
func (m *Manager) ResolveFailure(id string) bool {
	m.mutex.Lock()
	record, ok := m.records[id]
	if !ok {
		m.mutex.Unlock()
		return false
	}

	if !record.Resolved {
		m.markResolvedLocked(record, "resolved by caller")
	}
	active := m.activeRecordsLocked()
	m.mutex.Unlock()

	m.tracker.ResolutionEvent(active)
	m.updateActiveFailureGauges()
	return true
}

// markResolvedLocked closes a record and cancels its retry loop. Caller
// must hold the mutex.
func (m *Manager) markResolvedLocked(record *FailureRecord, reason string) {
	record.Resolved = true
	record.ResolvedAt = time.Now()

	if cancel, ok := m.cancels[record.ID]; ok {
		cancel()
		delete(m.cancels, record.ID)
	}

	if component, ok := m.components[record.Component]; ok {
		component.LastCheck = time.Now()
		if !m.hasActiveFailureForLocked(record.Component) {
			component.Status = ComponentHealthy
			component.Degraded = false
		}
	}

	m.recordActionLocked(fmt.Sprintf("failure %s on %s %s after %d attempts",
		record.ID[:8], record.Component, reason, record.AttemptCount))

	m.logger.LogFailureEvent("resolved", record.ID, string(record.Type), record.Component, nil)
}

// GetSystemHealth returns an aggregate snapshot. It never panics; a broken
// manager reports itself as failed rather than blowing up the caller.
func (m *Manager) GetSystemHealth() (health *SystemHealth) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.LogPanic(r, "GetSystemHealth panicked")
			health = &SystemHealth{
				Timestamp:        time.Now(),
				Overall:          OverallFailed,
				Components:       map[string]ComponentHealth{},
				DegradationLevel: m.tracker.Level().String(),
			}
		}
	}()

	m.mutex.Lock()

	components := make(map[string]ComponentHealth, len(m.components))
	for name, c := range m.components {
		components[name] = *c
	}

	activeFailures := make([]FailureRecord, 0)
	for _, record := range m.records {
		if !record.Resolved {
			activeFailures = append(activeFailures, *record)
		}
	}

	actions := make([]string, len(m.recoveryActions))
	copy(actions, m.recoveryActions)

	m.mutex.Unlock()

	sort.Slice(activeFailures, func(i, j int) bool {
		return activeFailures[i].StartTime.Before(activeFailures[j].StartTime)
	})

	level := m.tracker.Level()

	return &SystemHealth{
		Timestamp:        time.Now(),
		Overall:          overallStatus(level, components),
		Components:       components,
		ActiveFailures:   activeFailures,
		DegradationLevel: level.String(),
		RecoveryActions:  actions,
	}
}

// overallStatus folds the degradation level and per-component statuses
// into one aggregate
func overallStatus(level DegradationLevel, components map[string]ComponentHealth) OverallStatus {
	if level >= LevelCritical {
		return OverallCritical
	}

	errored := 0
	for _, c := range components {
		if c.Status == ComponentError {
			errored++
		}
	}

	if len(components) > 0 && errored == len(components) {
		return OverallFailed
	}
	if errored > 0 || level >= LevelModerate {
		return OverallDegraded
	}
	if level > LevelNone {
		return OverallDegraded
	}
	return OverallHealthy
}

// healthSweep is the periodic self health check: memory pressure, storage
// probe, and opportunistic buffer flush
func (m *Manager) healthSweep(ctx context.Context) {
	now := time.Now()

	// Memory pressure
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	allocMB := int(stats.Alloc / (1 << 20))

	m.mutex.Lock()
	if c, ok := m.components["memory"]; ok {
		c.LastCheck = now
		if c.Status == ComponentUnknown {
			c.Status = ComponentHealthy
		}
	}
	memoryOver := m.config.MemoryLimitMB > 0 && allocMB > m.config.MemoryLimitMB
	memoryAlreadyActive := m.hasActiveFailureOfTypeLocked(FailureMemoryExhausted)
	m.mutex.Unlock()

	if memoryOver && !memoryAlreadyActive {
		m.ReportFailure(FailureMemoryExhausted,
			fmt.Errorf("heap allocation %dMB exceeds limit %dMB", allocMB, m.config.MemoryLimitMB),
			"memory")
	}

	// Storage probe (injected; the core never touches disk directly)
	if m.storageProbe != nil {
		err := m.storageProbe(ctx)

		m.mutex.Lock()
		storageAlreadyActive := m.hasActiveFailureForLocked("storage")
		if c, ok := m.components["storage"]; ok {
			c.LastCheck = now
			if err == nil && c.Status == ComponentUnknown {
				c.Status = ComponentHealthy
			}
		}
		m.mutex.Unlock()

		if err != nil && !storageAlreadyActive {
			m.ReportFailure("", err, "storage")
		}
	}

	// Opportunistic flush once the sink is reachable again
	if m.sink != nil && m.buffer.Len() > 0 && m.sink.Healthy(ctx) {
		if _, err := m.buffer.Flush(ctx, m.sink); err != nil {
			m.logger.Warn("Buffer flush failed", "error", err.Error())
		}
	}
}

// cleanupResolved sweeps resolved records past their retention window
func (m *Manager) cleanupResolved(ctx context.Context) {
	cutoff := time.Now().Add(-m.config.ResolvedRetention)

	m.mutex.Lock()
	removed := 0
	for id, record := range m.records {
		if record.Resolved && record.ResolvedAt.Before(cutoff) {
			delete(m.records, id)
			delete(m.cancels, id)
			removed++
		}
	}
	m.mutex.Unlock()

	if removed > 0 {
		m.logger.Debug("Resolved failure records cleaned up", "removed", removed)
	}
}

// RunMaintenance runs a named maintenance task immediately. Tests and
// operator tooling use this instead of waiting on timers.
func (m *Manager) RunMaintenance(name string) error {
	return m.scheduler.RunNow(name)
}

// touchComponentLocked updates a component for a new failure. Caller must
// hold the mutex.
func (m *Manager) touchComponentLocked(name string, severity Severity, lastError string) {
	component, ok := m.components[name]
	if !ok {
		component = &ComponentHealth{Status: ComponentUnknown}
		m.components[name] = component
	}

	component.LastCheck = time.Now()
	component.ErrorCount++
	component.LastError = lastError

	if severity.Rank() >= SeverityHigh.Rank() {
		component.Status = ComponentError
	} else if component.Status != ComponentError {
		component.Status = ComponentWarning
	}
}

// recordActionLocked appends to the bounded recovery action log. Caller
// must hold the mutex.
func (m *Manager) recordActionLocked(action string) {
	entry := fmt.Sprintf("%s %s", time.Now().Format(time.RFC3339), action)
	m.recoveryActions = append(m.recoveryActions, entry)
	if len(m.recoveryActions) > maxRecoveryActions {
		m.recoveryActions = m.recoveryActions[len(m.recoveryActions)-maxRecoveryActions:]
	}
}

// activeRecordsLocked returns copies of the unresolved records, so the
// tracker can read them after the manager lock is released. Caller must
// hold the mutex.
func (m *Manager) activeRecordsLocked() []FailureRecord {
	active := make([]FailureRecord, 0, len(m.records))
	for _, record := range m.records {
		if !record.Resolved {
			active = append(active, *record)
		}
	}
	return active
}

func (m *Manager) hasActiveFailureForLocked(component string) bool {
	for _, record := range m.records {
		if !record.Resolved && record.Component == component {
			return true
		}
	}
	return false
}

func (m *Manager) hasActiveFailureOfTypeLocked(failureType FailureType) bool {
	for _, record := range m.records {
		if !record.Resolved && record.Type == failureType {
			return true
		}
	}
	return false
}

// updateActiveFailureGauges refreshes the per-severity active failure
// gauges
func (m *Manager) updateActiveFailureGauges() {
	if m.metrics == nil {
		return
	}

	counts := map[Severity]int{}
	m.mutex.Lock()
	for _, record := range m.records {
		if !record.Resolved {
			counts[record.Severity]++
		}
	}
	m.mutex.Unlock()

	for _, severity := range []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		m.metrics.UpdateActiveFailures(string(severity), counts[severity])
	}
}
