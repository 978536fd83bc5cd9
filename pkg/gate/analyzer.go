package gate

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/obsguard/obsguard/pkg/logging"
)

// Tier buckets issue severities for the gating decision
type Tier string

const (
	// TierP0 - critical correctness issues that block by themselves
	TierP0 Tier = "P0"
	// TierP1 - high-impact issues, non-blocking unless strict mode is on
	TierP1 Tier = "P1"
	// TierP2 - informational or auto-fixable issues
	TierP2 Tier = "P2"
)

// tierBySeverity is the single severity-to-tier lookup
var tierBySeverity = map[Severity]Tier{
	SeverityCritical: TierP0,
	SeverityHigh:     TierP1,
	SeverityMedium:   TierP2,
	SeverityLow:      TierP2,
}

// TierFor maps a severity to its tier
func TierFor(severity Severity) Tier {
	if tier, ok := tierBySeverity[severity]; ok {
		return tier
	}
	return TierP2
}

// GateIssue is a normalized issue produced for one gate run. Immutable
// once created.
type GateIssue struct {
	ID             string   `json:"id"`
	Category       string   `json:"category"`
	Severity       Severity `json:"severity"`
	Tier           Tier     `json:"tier"`
	Check          string   `json:"check"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Impact         string   `json:"impact,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	AutoFixable    bool     `json:"auto_fixable"`
}

// issueSpec is the build table for synthetic issues, keyed by category
type issueSpec struct {
	Severity       Severity
	Title          string
	Impact         string
	Recommendation string
}

var syntheticIssues = map[string]issueSpec{
	"check_execution": {
		Severity:       SeverityCritical,
		Title:          "check execution failed",
		Impact:         "the gate has no evidence for this subsystem",
		Recommendation: "fix or re-run the failing check before releasing",
	},
	"gate_execution": {
		Severity:       SeverityCritical,
		Title:          "gate execution failed",
		Impact:         "the gate itself malfunctioned and cannot vouch for the release",
		Recommendation: "investigate the gate failure; do not release on this result",
	},
	"run_budget": {
		Severity:       SeverityCritical,
		Title:          "gate run exceeded its time budget",
		Impact:         "results are incomplete, confidence is insufficient",
		Recommendation: "raise the budget or reduce the check set, then re-run",
	},
}

// NewSyntheticIssue builds a gate issue from the synthetic build table
func NewSyntheticIssue(category, check, description string) GateIssue {
	spec, ok := syntheticIssues[category]
	if !ok {
		spec = issueSpec{Severity: SeverityCritical, Title: category}
	}

	return GateIssue{
		ID:             uuid.New().String(),
		Category:       category,
		Severity:       spec.Severity,
		Tier:           TierFor(spec.Severity),
		Check:          check,
		Title:          spec.Title,
		Description:    description,
		Impact:         spec.Impact,
		Recommendation: spec.Recommendation,
	}
}

// Analyzer normalizes check outcomes into tiered gate issues
type Analyzer struct {
	logger *logging.Logger
}

// NewAnalyzer creates a result analyzer
func NewAnalyzer(logger *logging.Logger) *Analyzer {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Analyzer{logger: logger}
}

// Analyze walks every outcome and produces the normalized issue list. A
// check that failed to run contributes exactly one synthetic P0 issue.
func (a *Analyzer) Analyze(outcomes map[string]*CheckOutcome) []GateIssue {
	issues := make([]GateIssue, 0)

	names := make([]string, 0, len(outcomes))
	for name := range outcomes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		outcome := outcomes[name]
		if outcome.Skipped {
			continue
		}

		if outcome.Err != nil || outcome.Result == nil {
			description := fmt.Sprintf("check %q did not produce a result", name)
			if outcome.Err != nil {
				description = outcome.Err.Error()
			}
			issues = append(issues, NewSyntheticIssue("check_execution", name, description))
			continue
		}

		for _, raw := range outcome.Result.Issues {
			issues = append(issues, a.normalize(name, raw))
		}
	}

	return issues
}

// normalize converts a check-reported issue into a gate issue
func (a *Analyzer) normalize(check string, raw CheckIssue) GateIssue {
	category := raw.Category
	if category == "" {
		category = "uncategorized"
	}

	return GateIssue{
		ID:             uuid.New().String(),
		Category:       category,
		Severity:       raw.Severity,
		Tier:           TierFor(raw.Severity),
		Check:          check,
		Title:          raw.Title,
		Description:    raw.Description,
		Impact:         raw.Impact,
		Recommendation: raw.Recommendation,
		AutoFixable:    raw.AutoFixable,
	}
}
