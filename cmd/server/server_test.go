package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/riskscore/features"
	"github.com/liamcoop/riskscore/guidance"
	"github.com/liamcoop/riskscore/model"
	"github.com/liamcoop/riskscore/pipeline"
	"github.com/liamcoop/riskscore/risk"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	schema, err := features.LoadSchemaFile("../../artifacts/feature_schema.json")
	require.NoError(t, err)
	classifier, err := model.Load("../../artifacts/model.json")
	require.NoError(t, err)

	p, err := pipeline.New(schema, classifier)
	require.NoError(t, err)

	engine, err := guidance.NewDefaultEngine()
	require.NoError(t, err)

	return NewServer(p, engine, 5*time.Second, time.Second)
}

func answers() map[string]any {
	return map[string]any{
		"Age":                     30,
		"Gender":                  "Female",
		"Country":                 "United States",
		"self_employed":           "No",
		"family_history":          "Yes",
		"work_interfere":          "Often",
		"benefits":                "Don't know",
		"care_options":            "No",
		"anonymity":               "Don't know",
		"leave":                   "Don't know",
		"coworkers":               "No",
		"supervisor":              "No",
		"mental_health_interview": "Maybe",
		"obs_consequence":         "No",
	}
}

// do sends body as JSON and decodes the response into out when out is non-nil
func do(t *testing.T, s *Server, method, path string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestAssessHighRisk(t *testing.T) {
	s := newTestServer(t)

	var resp AssessResponse
	status := do(t, s, http.MethodPost, "/api/v1/assess", answers(), &resp)
	require.Equal(t, http.StatusOK, status)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "High", resp.Tier)
	assert.Equal(t, 82.0, resp.Score)
	assert.InDelta(t, 0.82, resp.Probability, 1e-12)
	assert.Equal(t, guidance.DefaultMessages[risk.High], resp.Message)
	assert.Equal(t, "2024-06-01", resp.SchemaVersion)
	require.Len(t, resp.Tips, 3)
	assert.Contains(t, resp.Tips[0], "Book an appointment with a therapist")
}

func TestAssessLowRisk(t *testing.T) {
	s := newTestServer(t)

	record := answers()
	record["family_history"] = "No"
	record["work_interfere"] = "Never"

	var resp AssessResponse
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/v1/assess", record, &resp))

	assert.Equal(t, "Low", resp.Tier)
	assert.Equal(t, 20.0, resp.Score)
	assert.Len(t, resp.Tips, 2)
}

func TestAssessRejectsMalformedRecords(t *testing.T) {
	s := newTestServer(t)

	testCases := []struct {
		name  string
		key   string
		value any
	}{
		{"age below range", "Age", 12},
		{"unknown option", "Gender", "Robot"},
		{"missing answer", "leave", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			record := answers()
			if tc.value == nil {
				delete(record, tc.key)
			} else {
				record[tc.key] = tc.value
			}

			var resp ErrorResponse
			status := do(t, s, http.MethodPost, "/api/v1/assess", record, &resp)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tc.key, resp.Field)
			assert.NotEmpty(t, resp.Details)
		})
	}
}

func TestAssessAcceptsAgeWithFractionDigits(t *testing.T) {
	s := newTestServer(t)

	body, err := json.Marshal(answers())
	require.NoError(t, err)
	body = bytes.Replace(body, []byte(`"Age":30,`), []byte(`"Age":30.0,`), 1)
	require.Contains(t, string(body), `"Age":30.0,`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assess", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AssessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "High", resp.Tier)
	assert.Equal(t, 82.0, resp.Score)
}

func TestAssessRejectsInvalidBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assess", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExplain(t *testing.T) {
	s := newTestServer(t)

	var resp ExplainResponse
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/v1/explain", answers(), &resp))

	assert.Contains(t, resp.Matched, "family_history_Yes")
	assert.Contains(t, resp.Matched, "work_interfere_Often")
	assert.Contains(t, resp.Dropped, "Country_United States")
	assert.Equal(t, "2024-06-01", resp.SchemaVersion)
}

func TestReadEndpoints(t *testing.T) {
	s := newTestServer(t)

	var health HealthResponse
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/health", nil, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 70, health.Features)
	assert.Equal(t, 3, health.Rules)

	var questions QuestionsResponse
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/questions", nil, &questions))
	assert.Len(t, questions.Questions, 14)

	var schema SchemaResponse
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/schema", nil, &schema))
	assert.Len(t, schema.Columns, 70)
	assert.Equal(t, "2024-06-01", schema.Version)

	var metrics map[string]int64
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/metrics", nil, &metrics))
	assert.Contains(t, metrics, "assessmentsCompleted")
}

func TestRuleLifecycle(t *testing.T) {
	s := newTestServer(t)
	base := "/api/v1/guidance/rules"

	var created RuleResponse
	status := do(t, s, http.MethodPost, base, CreateRuleRequest{
		ID:         "crisis",
		Name:       "Very high score",
		Expression: "score >= 80.0",
		Priority:   1,
		Tips:       []string{"Call a crisis line if you feel unsafe."},
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, created.Active)

	// The new rule runs first
	var assessed AssessResponse
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/v1/assess", answers(), &assessed))
	require.Len(t, assessed.Tips, 4)
	assert.Equal(t, "Call a crisis line if you feel unsafe.", assessed.Tips[0])

	var list RulesListResponse
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, base, nil, &list))
	require.Len(t, list.Rules, 4)
	assert.Equal(t, "crisis", list.Rules[0].ID)

	// Duplicate IDs are rejected
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, base, CreateRuleRequest{
		ID: "crisis", Name: "again", Expression: "true",
	}, nil))

	// Deactivate
	inactive := false
	var updated RuleResponse
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPut, base+"/crisis", UpdateRuleRequest{Active: &inactive}, &updated))
	assert.False(t, updated.Active)
	assert.Equal(t, "score >= 80.0", updated.Expression)

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/v1/assess", answers(), &assessed))
	assert.Len(t, assessed.Tips, 3)

	var fetched RuleResponse
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, base+"/crisis", nil, &fetched))
	assert.Equal(t, "Very high score", fetched.Name)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, base+"/crisis", nil, nil))
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, base+"/crisis", nil, nil))
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, base+"/crisis", nil, nil))
}

func TestRuleValidation(t *testing.T) {
	s := newTestServer(t)
	base := "/api/v1/guidance/rules"

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, base, CreateRuleRequest{
		Name: "no expression",
	}, nil))
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, base, CreateRuleRequest{
		Name: "unknown variable", Expression: "mood > 3",
	}, nil))

	var created RuleResponse
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, base, CreateRuleRequest{
		Name: "generated id", Expression: "tier == 'Low'",
	}, &created))
	assert.Contains(t, created.ID, "rule-")

	bad := "score >"
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, base+"/"+created.ID, UpdateRuleRequest{Expression: bad}, nil))
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPut, base+"/missing", UpdateRuleRequest{Name: "x"}, nil))
}

func TestEvaluateRule(t *testing.T) {
	s := newTestServer(t)
	base := "/api/v1/guidance/rules"

	prob := func(p float64) EvaluateRuleRequest { return EvaluateRuleRequest{Probability: &p} }

	var resp EvaluateRuleResponse
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, base+"/high-score/evaluate", prob(0.82), &resp))
	assert.True(t, resp.Matched)
	assert.Equal(t, "High", resp.Tier)
	assert.Equal(t, 82.0, resp.Score)
	assert.Len(t, resp.Tips, 3)

	resp = EvaluateRuleResponse{}
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, base+"/high-score/evaluate", prob(0.75), &resp))
	assert.False(t, resp.Matched)
	assert.Empty(t, resp.Tips)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, base+"/high-score/evaluate", prob(1.5), nil))
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, base+"/high-score/evaluate", EvaluateRuleRequest{}, nil))
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, base+"/missing/evaluate", prob(0.5), nil))
}
