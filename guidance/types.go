// Package guidance turns a risk assessment into a tier message and a list of
// support tips. Tips are selected by CEL rules evaluated over the assessment.
package guidance

import (
	"time"

	"github.com/liamcoop/riskscore/risk"
)

// Rule selects a group of tips when its expression evaluates to true
type Rule struct {
	ID         string
	Name       string
	Expression string
	Priority   int // lower runs first
	Tips       []string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EvaluationResult contains the outcome of evaluating a rule
type EvaluationResult struct {
	RuleID   string
	RuleName string
	Matched  bool
	Tips     []string
	Error    error
	Trace    any // CEL evaluation state
}

// Advice is what a respondent is shown next to their score
type Advice struct {
	Message string   `json:"message"`
	Tips    []string `json:"tips"`
}

// Facts exposes an assessment to rule expressions as score, probability and tier
func Facts(a risk.Assessment) map[string]any {
	return map[string]any{
		"score":       a.Score,
		"probability": a.Probability,
		"tier":        a.Tier.String(),
	}
}
