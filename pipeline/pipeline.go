// Package pipeline turns one raw answer record into a risk assessment:
// validate, encode against the feature schema, predict, classify.
//
// A Pipeline is built once at startup from an immutable schema and model and is
// safe for concurrent use. Assess performs no I/O.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/liamcoop/riskscore/features"
	"github.com/liamcoop/riskscore/model"
	"github.com/liamcoop/riskscore/risk"
	"github.com/liamcoop/riskscore/survey"
)

// Stages reported in AssessmentError
const (
	StageValidate = "validate"
	StageEncode   = "encode"
	StagePredict  = "predict"
	StageClassify = "classify"
)

var (
	// ErrNotReady is returned by Assess on a pipeline that was never built
	ErrNotReady = errors.New("pipeline is not ready")

	// ErrIncompatible is returned by New when the model was not trained on the schema
	ErrIncompatible = errors.New("model and feature schema are incompatible")
)

// AssessmentError reports the stage at which an assessment failed.
// The underlying typed error is reachable with errors.As.
type AssessmentError struct {
	Stage string
	Err   error
}

func (e *AssessmentError) Error() string {
	return fmt.Sprintf("assessment failed at %s: %v", e.Stage, e.Err)
}

func (e *AssessmentError) Unwrap() error {
	return e.Err
}

// Pipeline binds a feature schema, a classifier and a questionnaire
type Pipeline struct {
	schema        *features.Schema
	classifier    model.Classifier
	questionnaire *survey.Questionnaire
	logger        *slog.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithQuestionnaire replaces the default questionnaire used for validation
func WithQuestionnaire(q *survey.Questionnaire) Option {
	return func(p *Pipeline) {
		p.questionnaire = q
	}
}

// WithLogger sets the logger used for debug output
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New checks that classifier was trained on schema and builds a pipeline.
// The check uses the vector length, and also the feature names and schema
// version when the model artifact records them.
func New(schema *features.Schema, classifier model.Classifier, opts ...Option) (*Pipeline, error) {
	if schema == nil {
		return nil, fmt.Errorf("feature schema is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}

	p := &Pipeline{
		schema:        schema,
		classifier:    classifier,
		questionnaire: survey.Default(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.questionnaire == nil {
		p.questionnaire = survey.Default()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	if err := checkCompatible(schema, classifier); err != nil {
		return nil, err
	}

	return p, nil
}

func checkCompatible(schema *features.Schema, classifier model.Classifier) error {
	if n := classifier.NumFeatures(); n != schema.Len() {
		return fmt.Errorf("%w: model expects %d features, schema %q has %d columns",
			ErrIncompatible, n, schema.Version(), schema.Len())
	}

	d, ok := classifier.(model.Describer)
	if !ok {
		return nil
	}
	meta := d.Metadata()

	if meta.SchemaVersion != "" && schema.Version() != "" && meta.SchemaVersion != schema.Version() {
		return fmt.Errorf("%w: model was trained on schema %q, loaded schema is %q",
			ErrIncompatible, meta.SchemaVersion, schema.Version())
	}

	if len(meta.FeatureNames) == 0 {
		return nil
	}
	columns := schema.Columns()
	if len(meta.FeatureNames) != len(columns) {
		return fmt.Errorf("%w: model lists %d feature names, schema has %d columns",
			ErrIncompatible, len(meta.FeatureNames), len(columns))
	}
	for i := range columns {
		if meta.FeatureNames[i] != columns[i] {
			return fmt.Errorf("%w: column %d is %q in the schema but %q in the model",
				ErrIncompatible, i, columns[i], meta.FeatureNames[i])
		}
	}

	return nil
}

// Assess validates, encodes, predicts and classifies one record.
// Any failure aborts the assessment and is returned as *AssessmentError.
func (p *Pipeline) Assess(raw survey.Record) (risk.Assessment, error) {
	if p == nil || p.schema == nil || p.classifier == nil {
		return risk.Assessment{}, &AssessmentError{Stage: StageValidate, Err: ErrNotReady}
	}

	if err := p.questionnaire.Validate(raw); err != nil {
		return risk.Assessment{}, &AssessmentError{Stage: StageValidate, Err: err}
	}

	vec := features.Encode(p.normalize(raw), p.schema)
	if len(vec) != p.classifier.NumFeatures() {
		return risk.Assessment{}, &AssessmentError{
			Stage: StageEncode,
			Err:   fmt.Errorf("encoded %d features, model expects %d", len(vec), p.classifier.NumFeatures()),
		}
	}

	prob, err := p.classifier.PredictProbability(vec)
	if err != nil {
		return risk.Assessment{}, &AssessmentError{Stage: StagePredict, Err: err}
	}

	a, err := risk.Classify(prob)
	if err != nil {
		return risk.Assessment{}, &AssessmentError{Stage: StageClassify, Err: err}
	}

	p.logger.Debug("assessment complete",
		"probability", a.Probability,
		"tier", a.Tier.String(),
		"score", a.Score,
	)

	return a, nil
}

// Explain reports which columns a record activates and which it drops as
// unseen. The record is validated first.
func (p *Pipeline) Explain(raw survey.Record) (features.Explanation, error) {
	if p == nil || p.schema == nil {
		return features.Explanation{}, &AssessmentError{Stage: StageValidate, Err: ErrNotReady}
	}
	if err := p.questionnaire.Validate(raw); err != nil {
		return features.Explanation{}, &AssessmentError{Stage: StageValidate, Err: err}
	}
	return features.Explain(p.normalize(raw), p.schema), nil
}

// normalize rewrites numeric answers as int so 30, 30.0, json.Number("30")
// and json.Number("30.0") encode identically, whether the schema carries a
// numeric Age column or one-hot Age_<n> columns.
func (p *Pipeline) normalize(raw survey.Record) map[string]any {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		if q, ok := p.questionnaire.Question(key); ok && q.Kind == survey.KindNumeric {
			if n, ok := survey.AsInt(value); ok {
				value = n
			}
		}
		out[key] = value
	}
	return out
}

// Schema returns the feature schema the pipeline encodes against
func (p *Pipeline) Schema() *features.Schema {
	return p.schema
}

// Questionnaire returns the questionnaire records are validated against
func (p *Pipeline) Questionnaire() *survey.Questionnaire {
	return p.questionnaire
}
