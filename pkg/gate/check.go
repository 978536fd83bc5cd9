package gate

import (
	"context"
	"time"
)

// Severity classifies an issue raised by a check
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// CheckIssue is an issue reported inside a CheckResult. Checks are external
// collaborators; this is the only shape the gate inspects.
type CheckIssue struct {
	Category       string   `json:"category"`
	Severity       Severity `json:"severity"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Impact         string   `json:"impact,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	AutoFixable    bool     `json:"auto_fixable"`
}

// CheckResult is the contract every health check fulfills: a score, a
// pass flag, and a list of issues. The gate treats everything else as
// opaque.
type CheckResult struct {
	Passed   bool          `json:"passed"`
	Score    int           `json:"score"`
	Duration time.Duration `json:"duration"`
	Issues   []CheckIssue  `json:"issues,omitempty"`
}

// CheckFunc runs one health check
type CheckFunc func(ctx context.Context) (*CheckResult, error)

// NamedCheck pairs a check with its name structurally, so adding or
// removing checks cannot drift results out of alignment. LongRunning marks
// checks a quick gate pass may skip.
type NamedCheck struct {
	Name        string
	Run         CheckFunc
	LongRunning bool
}
