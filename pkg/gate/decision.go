package gate

import (
	"fmt"
	"math"
	"time"
)

// Recommendation is the ternary gating decision
type Recommendation string

const (
	RecommendProceed Recommendation = "proceed"
	RecommendWarning Recommendation = "warning"
	RecommendBlock   Recommendation = "block"
)

// Confidence bands are fixed heuristics so the gate decision stays
// reproducible across runs with identical inputs.
const (
	confidenceBlock   = 0.95
	confidenceWarning = 0.75
	confidenceProceed = 0.9
)

// OverallResult summarizes one gate run
type OverallResult struct {
	Passed         bool           `json:"passed"`
	Score          int            `json:"score"`
	Grade          string         `json:"grade"`
	Recommendation Recommendation `json:"recommendation"`
	Confidence     float64        `json:"confidence"`
}

// IssueCounts holds the tiered issue lists for one run
type IssueCounts struct {
	P0Issues []GateIssue `json:"p0_issues"`
	P1Issues []GateIssue `json:"p1_issues"`
	P2Issues []GateIssue `json:"p2_issues"`
}

// RunMetrics holds per-run timing
type RunMetrics struct {
	TotalDuration  time.Duration            `json:"total_duration"`
	CheckDurations map[string]time.Duration `json:"check_durations"`
}

// GateResult is the complete output of one gate run. Created fresh per
// invocation and never persisted by the core.
type GateResult struct {
	Timestamp       time.Time               `json:"timestamp"`
	Overall         OverallResult           `json:"overall"`
	Checks          map[string]*CheckResult `json:"checks"`
	Gate            IssueCounts             `json:"gate"`
	Metrics         RunMetrics              `json:"metrics"`
	Recommendations []string                `json:"recommendations,omitempty"`
	Summary         string                  `json:"summary"`
}

// DecisionEngine turns check outcomes and issues into a gate decision.
// It is deterministic: identical inputs always yield the identical
// overall result.
type DecisionEngine struct{}

// NewDecisionEngine creates a decision engine
func NewDecisionEngine() *DecisionEngine {
	return &DecisionEngine{}
}

// Decide computes the gate result from settled outcomes and analyzed
// issues. Checks that failed to run contribute score 0 to the average.
func (e *DecisionEngine) Decide(outcomes map[string]*CheckOutcome, issues []GateIssue, strict bool, totalDuration time.Duration) *GateResult {
	checks := make(map[string]*CheckResult, len(outcomes))
	durations := make(map[string]time.Duration, len(outcomes))

	sum := 0
	counted := 0
	for name, outcome := range outcomes {
		durations[name] = outcome.Duration
		if outcome.Skipped {
			continue
		}

		counted++
		if outcome.Result != nil && outcome.Err == nil {
			checks[name] = outcome.Result
			sum += outcome.Result.Score
		} else {
			// Failed-to-run contributes a zero score and a zeroed result
			// entry so the report still names it.
			checks[name] = &CheckResult{Passed: false, Score: 0, Duration: outcome.Duration}
		}
	}

	score := 0
	if counted > 0 {
		score = int(math.Round(float64(sum) / float64(counted)))
	}

	counts := splitByTier(issues)
	recommendation := recommend(counts, strict)

	overall := OverallResult{
		Passed:         recommendation != RecommendBlock,
		Score:          score,
		Grade:          gradeFor(score),
		Recommendation: recommendation,
		Confidence:     confidenceFor(recommendation),
	}

	return &GateResult{
		Timestamp: time.Now(),
		Overall:   overall,
		Checks:    checks,
		Gate:      counts,
		Metrics: RunMetrics{
			TotalDuration:  totalDuration,
			CheckDurations: durations,
		},
		Recommendations: collectRecommendations(counts),
		Summary:         summarize(counted, overall, counts),
	}
}

// recommend applies the gating rule: block iff any P0 issue or (strict
// mode and any P1 issue); warning iff any P1 issue; else proceed.
func recommend(counts IssueCounts, strict bool) Recommendation {
	if len(counts.P0Issues) > 0 {
		return RecommendBlock
	}
	if len(counts.P1Issues) > 0 {
		if strict {
			return RecommendBlock
		}
		return RecommendWarning
	}
	return RecommendProceed
}

func confidenceFor(r Recommendation) float64 {
	switch r {
	case RecommendBlock:
		return confidenceBlock
	case RecommendWarning:
		return confidenceWarning
	default:
		return confidenceProceed
	}
}

// gradeFor maps a score to a letter grade
func gradeFor(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func splitByTier(issues []GateIssue) IssueCounts {
	counts := IssueCounts{
		P0Issues: make([]GateIssue, 0),
		P1Issues: make([]GateIssue, 0),
		P2Issues: make([]GateIssue, 0),
	}

	for _, issue := range issues {
		switch issue.Tier {
		case TierP0:
			counts.P0Issues = append(counts.P0Issues, issue)
		case TierP1:
			counts.P1Issues = append(counts.P1Issues, issue)
		default:
			counts.P2Issues = append(counts.P2Issues, issue)
		}
	}

	return counts
}

// collectRecommendations gathers deduplicated issue recommendations,
// highest tier first
func collectRecommendations(counts IssueCounts) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)

	for _, group := range [][]GateIssue{counts.P0Issues, counts.P1Issues, counts.P2Issues} {
		for _, issue := range group {
			if issue.Recommendation == "" || seen[issue.Recommendation] {
				continue
			}
			seen[issue.Recommendation] = true
			out = append(out, issue.Recommendation)
		}
	}

	return out
}

func summarize(counted int, overall OverallResult, counts IssueCounts) string {
	return fmt.Sprintf("%d checks, score %d (%s), %d P0 / %d P1 / %d P2 issues: %s",
		counted, overall.Score, overall.Grade,
		len(counts.P0Issues), len(counts.P1Issues), len(counts.P2Issues),
		overall.Recommendation)
}
