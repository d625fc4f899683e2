package main

import (
	"time"

	"github.com/liamcoop/riskscore/features"
	"github.com/liamcoop/riskscore/guidance"
	"github.com/liamcoop/riskscore/survey"
)

// API Request and Response Models with Swagger annotations

// AssessResponse is the result of assessing one answer record
type AssessResponse struct {
	ID             string   `json:"id" example:"123e4567-e89b-12d3-a456-426614174000"`
	Probability    float64  `json:"probability" example:"0.82"`
	Score          float64  `json:"score" example:"82"`
	Tier           string   `json:"tier" example:"High"`
	Message        string   `json:"message" example:"High Risk: It’s important to seek support and talk to someone."`
	Tips           []string `json:"tips"`
	SchemaVersion  string   `json:"schemaVersion,omitempty" example:"2024-06-01"`
	EvaluationTime string   `json:"evaluationTime" example:"41.2µs"`
} // @name AssessResponse

// ExplainResponse lists the feature columns an answer record activates
type ExplainResponse struct {
	features.Explanation
	SchemaVersion string `json:"schemaVersion,omitempty" example:"2024-06-01"`
} // @name ExplainResponse

// QuestionsResponse lists the survey questions a record must answer
type QuestionsResponse struct {
	Questions []survey.Question `json:"questions"`
} // @name QuestionsResponse

// SchemaResponse is the feature schema served by the pipeline
type SchemaResponse struct {
	Version string   `json:"version,omitempty" example:"2024-06-01"`
	Columns []string `json:"columns" example:"Gender_Male,family_history_Yes"`
} // @name SchemaResponse

// CreateRuleRequest represents the request body for creating a guidance rule
type CreateRuleRequest struct {
	ID         string   `json:"id,omitempty" example:"crisis"`
	Name       string   `json:"name" example:"Very high score" binding:"required"`
	Expression string   `json:"expression" example:"score >= 90.0" binding:"required"`
	Priority   int      `json:"priority" example:"1"`
	Tips       []string `json:"tips"`
	Active     *bool    `json:"active,omitempty" example:"true"`
} // @name CreateRuleRequest

// UpdateRuleRequest represents the request body for updating a guidance rule
type UpdateRuleRequest struct {
	Name       string   `json:"name" example:"Very high score"`
	Expression string   `json:"expression" example:"score >= 90.0"`
	Priority   *int     `json:"priority,omitempty" example:"1"`
	Tips       []string `json:"tips,omitempty"`
	Active     *bool    `json:"active,omitempty" example:"true"`
} // @name UpdateRuleRequest

// EvaluateRuleRequest is the input for a single-rule dry run
type EvaluateRuleRequest struct {
	Probability *float64 `json:"probability" example:"0.82" binding:"required"`
} // @name EvaluateRuleRequest

// EvaluateRuleResponse reports whether one rule matched the given probability
type EvaluateRuleResponse struct {
	RuleID  string   `json:"ruleId" example:"high-score"`
	Matched bool     `json:"matched" example:"true"`
	Score   float64  `json:"score" example:"82"`
	Tier    string   `json:"tier" example:"High"`
	Tips    []string `json:"tips"`
} // @name EvaluateRuleResponse

// RuleResponse represents a guidance rule in API responses
type RuleResponse struct {
	ID         string    `json:"id" example:"high-score"`
	Name       string    `json:"name" example:"Score above 75"`
	Expression string    `json:"expression" example:"score > 75.0"`
	Priority   int       `json:"priority" example:"10"`
	Tips       []string  `json:"tips"`
	Active     bool      `json:"active" example:"true"`
	CreatedAt  time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt  time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
} // @name RuleResponse

// RulesListResponse represents the response for listing guidance rules
type RulesListResponse struct {
	Rules []RuleResponse `json:"rules"`
} // @name RulesListResponse

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"malformed answer record"`
	Details string `json:"details,omitempty" example:"malformed record: field \"Age\" value 12: must be between 18 and 65"`
	Field   string `json:"field,omitempty" example:"Age"`
} // @name ErrorResponse

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string `json:"status" example:"healthy"`
	SchemaVersion string `json:"schemaVersion,omitempty" example:"2024-06-01"`
	Features      int    `json:"features" example:"70"`
	Rules         int    `json:"rules" example:"3"`
} // @name HealthResponse

func toRuleResponse(r *guidance.Rule) RuleResponse {
	tips := r.Tips
	if tips == nil {
		tips = []string{}
	}
	return RuleResponse{
		ID:         r.ID,
		Name:       r.Name,
		Expression: r.Expression,
		Priority:   r.Priority,
		Tips:       tips,
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}
