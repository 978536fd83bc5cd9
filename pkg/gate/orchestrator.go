package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/obsguard/obsguard/pkg/logging"
	"github.com/obsguard/obsguard/pkg/metrics"
	"github.com/obsguard/obsguard/pkg/tracing"
)

// Mode selects how checks are executed
type Mode string

const (
	// ModeParallel runs all checks concurrently, each racing its own
	// timeout
	ModeParallel Mode = "parallel"
	// ModeSequential runs checks one after another, for checks that share
	// exclusive resources
	ModeSequential Mode = "sequential"
)

// RunOptions controls one orchestration pass
type RunOptions struct {
	Mode            Mode
	CheckTimeout    time.Duration
	SkipLongRunning bool
}

// CheckOutcome captures how one check settled: a result, an execution
// error, a timeout, or a skip. Exactly one of Result/Err is meaningful
// unless the check was skipped.
type CheckOutcome struct {
	Check    string
	Result   *CheckResult
	Err      error
	Duration time.Duration
	TimedOut bool
	Skipped  bool
}

// Orchestrator runs a set of named checks with per-check timeouts and
// allSettled semantics: every check's outcome is captured, and no check
// failure aborts the run or drops another check's result.
type Orchestrator struct {
	logger  *logging.Logger
	metrics *metrics.Metrics
	tracing *tracing.TracingService
}

// NewOrchestrator creates a check orchestrator
func NewOrchestrator(logger *logging.Logger, m *metrics.Metrics, ts *tracing.TracingService) *Orchestrator {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Orchestrator{logger: logger, metrics: m, tracing: ts}
}

// Run executes the checks and returns one outcome per check, keyed by name
func (o *Orchestrator) Run(ctx context.Context, checks []NamedCheck, opts RunOptions) map[string]*CheckOutcome {
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 10 * time.Second
	}

	outcomes := make(map[string]*CheckOutcome, len(checks))

	runnable := make([]NamedCheck, 0, len(checks))
	for _, check := range checks {
		if opts.SkipLongRunning && check.LongRunning {
			outcomes[check.Name] = &CheckOutcome{Check: check.Name, Skipped: true}
			o.logger.Debug("Check skipped", "check", check.Name, "reason", "long_running")
			continue
		}
		runnable = append(runnable, check)
	}

	if opts.Mode == ModeSequential {
		for _, check := range runnable {
			outcomes[check.Name] = o.runOne(ctx, check, opts.CheckTimeout)
		}
		return outcomes
	}

	var wg sync.WaitGroup
	var mutex sync.Mutex

	for _, check := range runnable {
		wg.Add(1)
		go func(check NamedCheck) {
			defer wg.Done()

			outcome := o.runOne(ctx, check, opts.CheckTimeout)

			mutex.Lock()
			outcomes[check.Name] = outcome
			mutex.Unlock()
		}(check)
	}

	wg.Wait()
	return outcomes
}

// runOne races a single check against its timeout. A panicking check is
// converted into an execution error, never propagated.
func (o *Orchestrator) runOne(ctx context.Context, check NamedCheck, timeout time.Duration) *CheckOutcome {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var span oteltrace.Span
	if o.tracing != nil {
		checkCtx, span = o.tracing.StartCheckSpan(checkCtx, check.Name)
		defer span.End()
	}

	type settled struct {
		result *CheckResult
		err    error
	}
	done := make(chan settled, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.LogPanic(r, fmt.Sprintf("Check %q panicked", check.Name))
				done <- settled{err: fmt.Errorf("check %q panicked: %v", check.Name, r)}
			}
		}()

		result, err := check.Run(checkCtx)
		done <- settled{result: result, err: err}
	}()

	outcome := &CheckOutcome{Check: check.Name}

	select {
	case s := <-done:
		outcome.Result = s.result
		outcome.Err = s.err
		if s.err == nil && s.result == nil {
			outcome.Err = fmt.Errorf("check %q returned no result", check.Name)
		}
	case <-checkCtx.Done():
		outcome.TimedOut = true
		outcome.Err = fmt.Errorf("check %q timed out after %v", check.Name, timeout)
	}

	outcome.Duration = time.Since(start)
	if outcome.Result != nil && outcome.Result.Duration == 0 {
		outcome.Result.Duration = outcome.Duration
	}

	label := "success"
	switch {
	case outcome.TimedOut:
		label = "timeout"
	case outcome.Err != nil:
		label = "error"
	case outcome.Result != nil && !outcome.Result.Passed:
		label = "failed"
	}

	if o.metrics != nil {
		o.metrics.RecordCheckDuration(check.Name, label, outcome.Duration)
	}
	if span != nil && outcome.Err != nil {
		o.tracing.RecordError(span, outcome.Err)
	}

	o.logger.Debug("Check settled",
		"check", check.Name,
		"outcome", label,
		"duration_ms", outcome.Duration.Milliseconds(),
	)

	return outcome
}
