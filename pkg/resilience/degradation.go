package resilience

import (
	"sync"

	"github.com/obsguard/obsguard/pkg/logging"
)

// DegradationLevel represents how much of the system's guarantees are
// currently compromised
type DegradationLevel int

const (
	// LevelNone - all telemetry subsystems are operational
	LevelNone DegradationLevel = iota
	// LevelMinimal - a failure is active but coverage is intact
	LevelMinimal
	// LevelModerate - some telemetry is being buffered or dropped
	LevelModerate
	// LevelSevere - significant loss of telemetry coverage
	LevelSevere
	// LevelCritical - the observability layer is barely functional
	LevelCritical
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelMinimal:
		return "minimal"
	case LevelModerate:
		return "moderate"
	case LevelSevere:
		return "severe"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// severityWeight scales a failure's contribution to the degradation score.
// One critical failure counts as a full unit.
func severityWeight(s Severity) float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.5
	case SeverityMedium:
		return 0.25
	case SeverityLow:
		return 0.1
	default:
		return 0.1
	}
}

// levelForScore maps the weighted unresolved-failure score to a level.
// With critical failures only the thresholds are 1, 3, 5, and 10 failures.
func levelForScore(score float64) DegradationLevel {
	switch {
	case score >= 10:
		return LevelCritical
	case score >= 5:
		return LevelSevere
	case score >= 3:
		return LevelModerate
	case score >= 1:
		return LevelMinimal
	default:
		return LevelNone
	}
}

// DegradationTracker aggregates active failures into a single degradation
// level. Within an evaluation cycle the level only rises; it drops only on
// an explicit resolution event.
type DegradationTracker struct {
	mutex   sync.RWMutex
	level   DegradationLevel
	onRaise func(DegradationLevel)
	logger  *logging.Logger
}

// NewDegradationTracker creates a degradation tracker at LevelNone
func NewDegradationTracker() *DegradationTracker {
	return &DegradationTracker{
		level:  LevelNone,
		logger: logging.GetLogger(),
	}
}

// OnRaise registers a callback fired whenever the level increases
func (t *DegradationTracker) OnRaise(fn func(DegradationLevel)) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.onRaise = fn
}

// Level returns the current degradation level
func (t *DegradationTracker) Level() DegradationLevel {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.level
}

// Evaluate recomputes the level from the active failure set, raising it if
// the computed level is higher. It never lowers the level.
func (t *DegradationTracker) Evaluate(active []FailureRecord) DegradationLevel {
	return t.raiseTo(computeLevel(active))
}

// Raise bumps the level to at least the given value. Used by recovery
// strategies that degrade service deliberately (e.g. an open breaker
// diverting to the local buffer).
func (t *DegradationTracker) Raise(level DegradationLevel) {
	t.raiseTo(level)
}

// ResolutionEvent recomputes the level after a failure has been resolved.
// This is the only path that can lower the level.
func (t *DegradationTracker) ResolutionEvent(active []FailureRecord) DegradationLevel {
	computed := computeLevel(active)

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if computed != t.level {
		t.logger.Info("Degradation level changed on resolution",
			"from", t.level.String(),
			"to", computed.String(),
		)
		t.level = computed
	}
	return t.level
}

// raiseTo transitions upward. The hook fires after the lock is released,
// so hooks may call back into the tracker.
func (t *DegradationTracker) raiseTo(level DegradationLevel) DegradationLevel {
	t.mutex.Lock()
	var hook func(DegradationLevel)
	if level > t.level {
		t.logger.Warn("Degradation level raised",
			"from", t.level.String(),
			"to", level.String(),
		)
		t.level = level
		hook = t.onRaise
	}
	current := t.level
	t.mutex.Unlock()

	if hook != nil {
		hook(current)
	}
	return current
}

func computeLevel(active []FailureRecord) DegradationLevel {
	score := 0.0
	for _, record := range active {
		if record.Resolved {
			continue
		}
		score += severityWeight(record.Severity)
	}
	return levelForScore(score)
}

// recommendationsByLevel holds operator guidance, more aggressive at the
// higher levels.
var recommendationsByLevel = map[DegradationLevel][]string{
	LevelNone: {
		"all telemetry subsystems operational, no action needed",
	},
	LevelMinimal: {
		"monitor active failures, no intervention required yet",
		"verify the affected dependency recovers on its own",
	},
	LevelModerate: {
		"events are being buffered locally; check sink connectivity",
		"review circuit breaker states for stuck-open dependencies",
	},
	LevelSevere: {
		"pause non-essential instrumentation to reduce load",
		"alert the operations team: telemetry coverage is significantly reduced",
		"inspect recent failure records for a common root cause",
	},
	LevelCritical: {
		"alert operators immediately: the observability layer is failing",
		"disable all non-essential instrumentation",
		"capture a diagnostic snapshot before state is lost",
		"consider restarting the affected process",
	},
}

// Recommendations returns human-readable guidance for the current level
func (t *DegradationTracker) Recommendations() []string {
	level := t.Level()

	recs, ok := recommendationsByLevel[level]
	if !ok {
		return nil
	}

	out := make([]string, len(recs))
	copy(out, recs)
	return out
}
