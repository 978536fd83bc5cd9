package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/obsguard/obsguard/pkg/logging"
	"github.com/obsguard/obsguard/pkg/metrics"
	"github.com/obsguard/obsguard/pkg/tracing"
)

// Options configures one gate run
type Options struct {
	Mode            Mode
	Strict          bool
	SkipLongRunning bool
	CheckTimeout    time.Duration
	// RunBudget bounds the whole run; zero means no budget. Exceeding it
	// blocks the gate with an insufficient-confidence issue.
	RunBudget time.Duration
}

// QuickOptions returns the quick preset: parallel, skip long-running
// checks, non-strict
func QuickOptions() Options {
	return Options{
		Mode:            ModeParallel,
		SkipLongRunning: true,
		CheckTimeout:    5 * time.Second,
	}
}

// FullOptions returns the full preset: every check, strict in production
func FullOptions(environment string) Options {
	return Options{
		Mode:         ModeParallel,
		Strict:       environment == "production",
		CheckTimeout: 10 * time.Second,
		RunBudget:    2 * time.Minute,
	}
}

// StrictOptions returns the strict preset: every check, always strict
func StrictOptions() Options {
	return Options{
		Mode:         ModeParallel,
		Strict:       true,
		CheckTimeout: 10 * time.Second,
		RunBudget:    2 * time.Minute,
	}
}

// Gatekeeper aggregates registered health checks into a single
// proceed/warning/block release-gating decision.
type Gatekeeper struct {
	mutex        sync.RWMutex
	checks       []NamedCheck
	orchestrator *Orchestrator
	analyzer     *Analyzer
	engine       *DecisionEngine
	logger       *logging.Logger
	metrics      *metrics.Metrics
	tracing      *tracing.TracingService
}

// GatekeeperOption customizes gatekeeper construction
type GatekeeperOption func(*Gatekeeper)

// WithLogger sets the gatekeeper logger
func WithLogger(logger *logging.Logger) GatekeeperOption {
	return func(g *Gatekeeper) { g.logger = logger }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Metrics) GatekeeperOption {
	return func(g *Gatekeeper) { g.metrics = m }
}

// WithTracing sets the tracing service
func WithTracing(ts *tracing.TracingService) GatekeeperOption {
	return func(g *Gatekeeper) { g.tracing = ts }
}

// NewGatekeeper creates a gatekeeper over the given checks
func NewGatekeeper(checks []NamedCheck, opts ...GatekeeperOption) *Gatekeeper {
	g := &Gatekeeper{
		checks: append([]NamedCheck(nil), checks...),
		logger: logging.GetLogger(),
	}

	for _, opt := range opts {
		opt(g)
	}

	g.orchestrator = NewOrchestrator(g.logger, g.metrics, g.tracing)
	g.analyzer = NewAnalyzer(g.logger)
	g.engine = NewDecisionEngine()

	return g
}

// Register adds a check to the gate
func (g *Gatekeeper) Register(check NamedCheck) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.checks = append(g.checks, check)
}

// RunGateCheck runs the gate and always returns a well-formed result. It
// never panics and never returns an error: a malfunction inside the gate
// itself produces a blocking result with a synthetic P0 issue, so a broken
// gate can never be mistaken for a passing one.
func (g *Gatekeeper) RunGateCheck(ctx context.Context, opts Options) (result *GateResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			g.logger.LogPanic(r, "Gate run panicked")
			result = g.failureResult(fmt.Sprintf("internal gate failure: %v", r), time.Since(start))
		}
		if g.metrics != nil && result != nil {
			mode := string(opts.Mode)
			if mode == "" {
				mode = string(ModeParallel)
			}
			g.metrics.RecordGateRun(string(result.Overall.Recommendation), mode, result.Overall.Score, result.Metrics.TotalDuration)
			for _, issue := range result.Gate.P0Issues {
				g.metrics.RecordGateIssue(string(TierP0), issue.Category)
			}
			for _, issue := range result.Gate.P1Issues {
				g.metrics.RecordGateIssue(string(TierP1), issue.Category)
			}
			for _, issue := range result.Gate.P2Issues {
				g.metrics.RecordGateIssue(string(TierP2), issue.Category)
			}
		}
	}()

	if opts.Mode == "" {
		opts.Mode = ModeParallel
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.RunBudget > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.RunBudget)
		defer cancel()
	}

	if g.tracing != nil {
		spanCtx, gateSpan := g.tracing.StartGateSpan(runCtx, string(opts.Mode), opts.Strict)
		defer gateSpan.End()
		runCtx = spanCtx
	}

	g.mutex.RLock()
	checks := make([]NamedCheck, len(g.checks))
	copy(checks, g.checks)
	g.mutex.RUnlock()

	outcomes := g.orchestrator.Run(runCtx, checks, RunOptions{
		Mode:            opts.Mode,
		CheckTimeout:    opts.CheckTimeout,
		SkipLongRunning: opts.SkipLongRunning,
	})

	issues := g.analyzer.Analyze(outcomes)

	elapsed := time.Since(start)
	if opts.RunBudget > 0 && elapsed > opts.RunBudget {
		issues = append(issues, NewSyntheticIssue("run_budget", "",
			fmt.Sprintf("gate run took %v against a budget of %v", elapsed.Round(time.Millisecond), opts.RunBudget)))
	}

	result = g.engine.Decide(outcomes, issues, opts.Strict, elapsed)

	g.logger.LogGateEvent("gate_completed", elapsed, map[string]interface{}{
		"score":          result.Overall.Score,
		"grade":          result.Overall.Grade,
		"recommendation": string(result.Overall.Recommendation),
		"p0_issues":      len(result.Gate.P0Issues),
		"p1_issues":      len(result.Gate.P1Issues),
		"p2_issues":      len(result.Gate.P2Issues),
	})

	return result
}

// failureResult builds the blocking result returned when the gate itself
// malfunctions
func (g *Gatekeeper) failureResult(description string, elapsed time.Duration) *GateResult {
	issue := NewSyntheticIssue("gate_execution", "", description)

	return &GateResult{
		Timestamp: time.Now(),
		Overall: OverallResult{
			Passed:         false,
			Score:          0,
			Grade:          "F",
			Recommendation: RecommendBlock,
			Confidence:     confidenceBlock,
		},
		Checks: map[string]*CheckResult{},
		Gate: IssueCounts{
			P0Issues: []GateIssue{issue},
			P1Issues: []GateIssue{},
			P2Issues: []GateIssue{},
		},
		Metrics: RunMetrics{
			TotalDuration:  elapsed,
			CheckDurations: map[string]time.Duration{},
		},
		Recommendations: []string{issue.Recommendation},
		Summary:         "gate execution failed: " + description,
	}
}

// ExitCode maps a gate result to a process exit code for CI use
func ExitCode(result *GateResult, failOnWarning bool) int {
	switch result.Overall.Recommendation {
	case RecommendBlock:
		return 1
	case RecommendWarning:
		if failOnWarning {
			return 1
		}
		return 0
	default:
		return 0
	}
}
