package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthyCheck(name string, score int) NamedCheck {
	return NamedCheck{
		Name: name,
		Run: func(ctx context.Context) (*CheckResult, error) {
			return &CheckResult{Passed: true, Score: score}, nil
		},
	}
}

func TestRunGateCheck_AllHealthyProceeds(t *testing.T) {
	g := NewGatekeeper([]NamedCheck{
		healthyCheck("config", 100),
		healthyCheck("memory", 90),
	})

	result := g.RunGateCheck(context.Background(), QuickOptions())

	require.NotNil(t, result)
	assert.Equal(t, RecommendProceed, result.Overall.Recommendation)
	assert.True(t, result.Overall.Passed)
	assert.Equal(t, 95, result.Overall.Score)
	assert.Len(t, result.Checks, 2)
	assert.Empty(t, result.Gate.P0Issues)
}

func TestRunGateCheck_FailingCheckBlocks(t *testing.T) {
	g := NewGatekeeper([]NamedCheck{
		healthyCheck("ok", 100),
		{
			Name: "broken",
			Run: func(ctx context.Context) (*CheckResult, error) {
				return nil, errors.New("dependency down")
			},
		},
	})

	result := g.RunGateCheck(context.Background(), QuickOptions())

	assert.Equal(t, RecommendBlock, result.Overall.Recommendation)
	require.Len(t, result.Gate.P0Issues, 1)
	assert.Equal(t, "check_execution", result.Gate.P0Issues[0].Category)
	assert.Equal(t, "broken", result.Gate.P0Issues[0].Check)
	assert.Equal(t, 50, result.Overall.Score)
}

func TestRunGateCheck_PanickingCheckDoesNotPanicGate(t *testing.T) {
	g := NewGatekeeper([]NamedCheck{
		healthyCheck("ok", 100),
		{
			Name: "explosive",
			Run: func(ctx context.Context) (*CheckResult, error) {
				panic("kaboom")
			},
		},
	})

	var result *GateResult
	assert.NotPanics(t, func() {
		result = g.RunGateCheck(context.Background(), QuickOptions())
	})

	require.NotNil(t, result)
	assert.Equal(t, RecommendBlock, result.Overall.Recommendation)
	require.Len(t, result.Gate.P0Issues, 1)
	assert.Equal(t, "check_execution", result.Gate.P0Issues[0].Category)
}

func TestRunGateCheck_FailedCheckReportedInIssues(t *testing.T) {
	check := NamedCheck{
		Name: "flaky",
		Run: func(ctx context.Context) (*CheckResult, error) {
			return &CheckResult{
				Passed: false,
				Score:  40,
				Issues: []CheckIssue{{
					Severity: SeverityHigh,
					Title:    "pool near limit",
				}},
			}, nil
		},
	}
	g := NewGatekeeper([]NamedCheck{check, healthyCheck("ok", 100)})

	result := g.RunGateCheck(context.Background(), QuickOptions())

	assert.Equal(t, RecommendWarning, result.Overall.Recommendation)
	require.Len(t, result.Gate.P1Issues, 1)
	assert.Equal(t, "flaky", result.Gate.P1Issues[0].Check)
}

func TestRunGateCheck_StrictEscalatesWarnings(t *testing.T) {
	check := NamedCheck{
		Name: "flaky",
		Run: func(ctx context.Context) (*CheckResult, error) {
			return &CheckResult{
				Passed: false,
				Score:  40,
				Issues: []CheckIssue{{Severity: SeverityHigh, Title: "pool near limit"}},
			}, nil
		},
	}
	g := NewGatekeeper([]NamedCheck{check})

	result := g.RunGateCheck(context.Background(), StrictOptions())

	assert.Equal(t, RecommendBlock, result.Overall.Recommendation)
	assert.False(t, result.Overall.Passed)
}

func TestRunGateCheck_QuickSkipsLongRunning(t *testing.T) {
	ran := false
	g := NewGatekeeper([]NamedCheck{
		healthyCheck("fast", 100),
		{
			Name:        "throughput",
			LongRunning: true,
			Run: func(ctx context.Context) (*CheckResult, error) {
				ran = true
				return &CheckResult{Passed: true, Score: 100}, nil
			},
		},
	})

	result := g.RunGateCheck(context.Background(), QuickOptions())

	assert.False(t, ran)
	assert.Equal(t, 100, result.Overall.Score)
	assert.NotContains(t, result.Checks, "throughput")
}

func TestRunGateCheck_RunBudgetExceededBlocks(t *testing.T) {
	g := NewGatekeeper([]NamedCheck{
		{
			Name: "slow",
			Run: func(ctx context.Context) (*CheckResult, error) {
				time.Sleep(50 * time.Millisecond)
				return &CheckResult{Passed: true, Score: 100}, nil
			},
		},
	})

	opts := QuickOptions()
	opts.RunBudget = 10 * time.Millisecond

	result := g.RunGateCheck(context.Background(), opts)

	assert.Equal(t, RecommendBlock, result.Overall.Recommendation)
	categories := make([]string, 0, len(result.Gate.P0Issues))
	for _, issue := range result.Gate.P0Issues {
		categories = append(categories, issue.Category)
	}
	assert.Contains(t, categories, "run_budget")
}

func TestRunGateCheck_EmptyModeDefaultsToParallel(t *testing.T) {
	g := NewGatekeeper([]NamedCheck{healthyCheck("only", 100)})

	result := g.RunGateCheck(context.Background(), Options{CheckTimeout: time.Second})

	assert.Equal(t, RecommendProceed, result.Overall.Recommendation)
	assert.Contains(t, result.Checks, "only")
}

func TestRunGateCheck_RepeatedRunsAreConsistent(t *testing.T) {
	g := NewGatekeeper([]NamedCheck{
		healthyCheck("a", 95),
		healthyCheck("b", 85),
	})

	first := g.RunGateCheck(context.Background(), QuickOptions())
	for i := 0; i < 5; i++ {
		again := g.RunGateCheck(context.Background(), QuickOptions())
		assert.Equal(t, first.Overall, again.Overall)
	}
}

func TestRegister_AddsCheckToSubsequentRuns(t *testing.T) {
	g := NewGatekeeper([]NamedCheck{healthyCheck("a", 100)})

	before := g.RunGateCheck(context.Background(), QuickOptions())
	assert.Len(t, before.Checks, 1)

	g.Register(healthyCheck("b", 80))

	after := g.RunGateCheck(context.Background(), QuickOptions())
	assert.Len(t, after.Checks, 2)
	assert.Equal(t, 90, after.Overall.Score)
}

func TestFailureResult_IsWellFormedBlock(t *testing.T) {
	g := NewGatekeeper(nil)

	result := g.failureResult("internal gate failure: boom", 5*time.Millisecond)

	assert.False(t, result.Overall.Passed)
	assert.Equal(t, RecommendBlock, result.Overall.Recommendation)
	assert.Equal(t, "F", result.Overall.Grade)
	assert.Equal(t, confidenceBlock, result.Overall.Confidence)
	require.Len(t, result.Gate.P0Issues, 1)
	assert.Equal(t, "gate_execution", result.Gate.P0Issues[0].Category)
	assert.NotNil(t, result.Checks)
	assert.NotEmpty(t, result.Summary)
}

func TestPresets(t *testing.T) {
	quick := QuickOptions()
	assert.Equal(t, ModeParallel, quick.Mode)
	assert.True(t, quick.SkipLongRunning)
	assert.False(t, quick.Strict)
	assert.Zero(t, quick.RunBudget)

	assert.True(t, FullOptions("production").Strict)
	assert.False(t, FullOptions("staging").Strict)
	assert.False(t, FullOptions("production").SkipLongRunning)

	strict := StrictOptions()
	assert.True(t, strict.Strict)
	assert.NotZero(t, strict.RunBudget)
}

func TestExitCode(t *testing.T) {
	block := &GateResult{Overall: OverallResult{Recommendation: RecommendBlock}}
	warning := &GateResult{Overall: OverallResult{Recommendation: RecommendWarning}}
	proceed := &GateResult{Overall: OverallResult{Recommendation: RecommendProceed}}

	assert.Equal(t, 1, ExitCode(block, false))
	assert.Equal(t, 1, ExitCode(block, true))
	assert.Equal(t, 0, ExitCode(warning, false))
	assert.Equal(t, 1, ExitCode(warning, true))
	assert.Equal(t, 0, ExitCode(proceed, false))
	assert.Equal(t, 0, ExitCode(proceed, true))
}
