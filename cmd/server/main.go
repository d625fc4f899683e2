package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/liamcoop/riskscore/features"
	"github.com/liamcoop/riskscore/guidance"
	"github.com/liamcoop/riskscore/internal/config"
	"github.com/liamcoop/riskscore/internal/logger"
	"github.com/liamcoop/riskscore/model"
	"github.com/liamcoop/riskscore/pipeline"
	"github.com/liamcoop/riskscore/risk"
	"github.com/liamcoop/riskscore/survey"
)

type Server struct {
	pipeline      *pipeline.Pipeline
	guidance      *guidance.Engine
	router        *chi.Mux
	timeout       time.Duration
	slowThreshold time.Duration
}

// NewServer wires the HTTP routes around a ready pipeline and guidance engine
func NewServer(p *pipeline.Pipeline, g *guidance.Engine, timeout, slowThreshold time.Duration) *Server {
	s := &Server{
		pipeline:      p,
		guidance:      g,
		timeout:       timeout,
		slowThreshold: slowThreshold,
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/metrics", s.handleMetrics)

	r.Get("/api/v1/questions", s.handleQuestions)
	r.Get("/api/v1/schema", s.handleSchema)

	r.Post("/api/v1/assess", s.handleAssess)
	r.Post("/api/v1/explain", s.handleExplain)

	// Guidance rule management
	r.Route("/api/v1/guidance/rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)
		r.Get("/{ruleId}", s.handleGetRule)
		r.Put("/{ruleId}", s.handleUpdateRule)
		r.Delete("/{ruleId}", s.handleDeleteRule)
		r.Post("/{ruleId}/evaluate", s.handleEvaluateRule)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger writes one structured line per request and counts slow and failed ones
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", elapsed.String(),
			"requestId", middleware.GetReqID(r.Context()),
		}

		switch {
		case status >= 500:
			logger.ErrorHttp5xx()
			logger.Error("request failed", args...)
		case status >= 400:
			logger.WarnHttp4xx(status)
			logger.Warn("request rejected", args...)
		default:
			logger.Debug("request served", args...)
		}

		if elapsed > s.slowThreshold {
			logger.WarnSlowRequest()
			logger.Warn("slow request", args...)
		}
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rules, err := s.guidance.ActiveRules()
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	schema := s.pipeline.Schema()
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		SchemaVersion: schema.Version(),
		Features:      schema.Len(),
		Rules:         len(rules),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, logger.Snapshot())
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, QuestionsResponse{
		Questions: s.pipeline.Questionnaire().Questions(),
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	schema := s.pipeline.Schema()
	respondJSON(w, http.StatusOK, SchemaResponse{
		Version: schema.Version(),
		Columns: schema.Columns(),
	})
}

// decodeRecord reads a raw answer record, keeping numbers as json.Number
func decodeRecord(r *http.Request) (survey.Record, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var record survey.Record
	if err := dec.Decode(&record); err != nil {
		return nil, err
	}
	return record, nil
}

// Assessment handler
func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	record, err := decodeRecord(r)
	if err != nil {
		logger.AssessmentRejected()
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	id := uuid.NewString()
	startTime := time.Now()

	assessment, err := s.pipeline.Assess(record)
	if err != nil {
		s.respondAssessmentError(w, id, err)
		return
	}

	advice, err := s.guidance.Advise(assessment)
	if err != nil {
		logger.AssessmentFailed()
		logger.Error("guidance failed", "assessmentId", id, "error", err)
		respondError(w, http.StatusInternalServerError, "guidance failed", err)
		return
	}

	evaluationTime := time.Since(startTime)
	logger.AssessmentCompleted()
	logger.Info("assessment completed",
		"assessmentId", id,
		"tier", assessment.Tier.String(),
		"score", assessment.Score,
		"evaluationTime", evaluationTime.String(),
	)

	respondJSON(w, http.StatusOK, AssessResponse{
		ID:             id,
		Probability:    assessment.Probability,
		Score:          assessment.Score,
		Tier:           assessment.Tier.String(),
		Message:        advice.Message,
		Tips:           advice.Tips,
		SchemaVersion:  s.pipeline.Schema().Version(),
		EvaluationTime: evaluationTime.String(),
	})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	record, err := decodeRecord(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	explanation, err := s.pipeline.Explain(record)
	if err != nil {
		s.respondAssessmentError(w, "", err)
		return
	}

	respondJSON(w, http.StatusOK, ExplainResponse{
		Explanation:   explanation,
		SchemaVersion: s.pipeline.Schema().Version(),
	})
}

// respondAssessmentError maps malformed records to 400 and everything else to 500
func (s *Server) respondAssessmentError(w http.ResponseWriter, id string, err error) {
	var malformed *survey.MalformedRecordError
	if errors.As(err, &malformed) {
		logger.AssessmentRejected()
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "malformed answer record",
			Details: malformed.Error(),
			Field:   malformed.Field,
		})
		return
	}

	logger.AssessmentFailed()
	logger.Error("assessment failed", "assessmentId", id, "error", err)
	respondError(w, http.StatusInternalServerError, "assessment failed", err)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.guidance.ActiveRules()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}

	resp := RulesListResponse{Rules: make([]RuleResponse, 0, len(rules))}
	for _, rule := range rules {
		resp.Rules = append(resp.Rules, toRuleResponse(rule))
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" || req.Expression == "" {
		respondError(w, http.StatusBadRequest, "name and expression are required", nil)
		return
	}

	rule := &guidance.Rule{
		ID:         req.ID,
		Name:       req.Name,
		Expression: req.Expression,
		Priority:   req.Priority,
		Tips:       req.Tips,
		Active:     req.Active == nil || *req.Active,
	}
	if rule.ID == "" {
		rule.ID = "rule-" + uuid.NewString()
	}

	if err := s.guidance.AddRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to add rule", err)
		return
	}

	respondJSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.guidance.Rule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	respondJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")

	var req UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	existing, err := s.guidance.Rule(ruleID)
	if err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	// Copy so a failed update leaves the stored rule untouched
	rule := *existing
	if req.Name != "" {
		rule.Name = req.Name
	}
	if req.Expression != "" {
		rule.Expression = req.Expression
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Tips != nil {
		rule.Tips = req.Tips
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}

	if err := s.guidance.UpdateRule(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to update rule", err)
		return
	}

	respondJSON(w, http.StatusOK, toRuleResponse(&rule))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.guidance.DeleteRule(chi.URLParam(r, "ruleId")); err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleEvaluateRule runs one stored rule against a probability without assessing a record
func (s *Server) handleEvaluateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")

	var req EvaluateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Probability == nil {
		respondError(w, http.StatusBadRequest, "probability is required", nil)
		return
	}

	assessment, err := risk.Classify(*req.Probability)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid probability", err)
		return
	}

	if _, err := s.guidance.Rule(ruleID); err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	result, err := s.guidance.Evaluate(ruleID, guidance.Facts(assessment))
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "rule evaluation failed", err)
		return
	}

	tips := result.Tips
	if tips == nil {
		tips = []string{}
	}
	respondJSON(w, http.StatusOK, EvaluateRuleResponse{
		RuleID:  result.RuleID,
		Matched: result.Matched,
		Score:   assessment.Score,
		Tier:    assessment.Tier.String(),
		Tips:    tips,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}

// loadSchema reads the feature schema from the configured source
func loadSchema(ctx context.Context, cfg *config.Config, db *sql.DB) (*features.Schema, error) {
	var store features.SchemaStore
	switch cfg.SchemaSource {
	case config.SourcePostgres:
		store = features.NewPostgresSchemaStore(db)
	default:
		store = features.NewFileSchemaStore(cfg.SchemaPath)
	}
	return store.Load(ctx)
}

// loadGuidance builds the guidance engine from the configured rule source
func loadGuidance(cfg *config.Config, db *sql.DB) (*guidance.Engine, error) {
	switch cfg.GuidanceSource {
	case config.SourceFile:
		set, err := guidance.LoadRuleSet(cfg.GuidanceRulesPath)
		if err != nil {
			return nil, err
		}
		return guidance.NewEngineFromRuleSet(set)

	case config.SourcePostgres:
		store := guidance.NewPostgresRuleStore(db)
		active, err := store.ListActive()
		if err != nil {
			return nil, err
		}
		// Seed an empty table so a fresh database serves the built-in tips
		if len(active) == 0 {
			for _, rule := range guidance.DefaultRules() {
				if err := store.Add(rule); err != nil {
					return nil, fmt.Errorf("failed to seed rule %s: %w", rule.ID, err)
				}
			}
		}
		return guidance.NewEngine(store, nil)

	default:
		return guidance.NewDefaultEngine()
	}
}

func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	ctx := context.Background()
	if err := logger.Setup(ctx, logger.Options{
		Level:       cfg.LogLevel,
		SampleRate:  cfg.ErrorSampleRate,
		OTELEnabled: cfg.OTELEnabled,
		ServiceName: cfg.OTELServiceName,
	}); err != nil {
		logger.WarnAlways("logger setup incomplete", "error", err)
	}

	var db *sql.DB
	if cfg.NeedsDatabase() {
		var err error
		db, err = openDatabase(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", "error", err)
		}
		defer db.Close()
	}

	schema, err := loadSchema(ctx, cfg, db)
	if err != nil {
		logger.Fatal("failed to load feature schema", "source", cfg.SchemaSource, "error", err)
	}

	classifier, err := model.Load(cfg.ModelPath)
	if err != nil {
		logger.Fatal("failed to load model", "path", cfg.ModelPath, "error", err)
	}

	p, err := pipeline.New(schema, classifier, pipeline.WithLogger(logger.Logger))
	if err != nil {
		logger.Fatal("model does not match feature schema", "error", err)
	}

	engine, err := loadGuidance(cfg, db)
	if err != nil {
		logger.Fatal("failed to load guidance rules", "source", cfg.GuidanceSource, "error", err)
	}

	logger.Info("pipeline ready",
		"schemaVersion", schema.Version(),
		"features", schema.Len(),
		"modelPath", cfg.ModelPath,
	)

	server := NewServer(p, engine, cfg.RequestTimeout, cfg.SlowRequestThreshold)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddress(),
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		logger.Error("logger shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
