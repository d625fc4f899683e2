package model

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

const TypeLogistic = "logistic"

// Logistic is a fitted binary logistic regression
type Logistic struct {
	meta      Metadata
	coef      []float64
	intercept float64
}

type logisticArtifact struct {
	Metadata
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// DecodeLogistic parses and validates a logistic regression artifact
func DecodeLogistic(data []byte) (*Logistic, error) {
	var a logisticArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("invalid logistic artifact: %w", err)
	}
	return NewLogistic(a.Metadata, a.Coef, a.Intercept)
}

// NewLogistic builds a logistic model from its coefficients
func NewLogistic(meta Metadata, coef []float64, intercept float64) (*Logistic, error) {
	if len(coef) == 0 {
		return nil, fmt.Errorf("logistic model has no coefficients")
	}
	for i, c := range coef {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("coefficient %d is not finite", i)
		}
	}
	if math.IsNaN(intercept) || math.IsInf(intercept, 0) {
		return nil, fmt.Errorf("intercept is not finite")
	}

	meta.Type = TypeLogistic
	return &Logistic{meta: meta, coef: slices.Clone(coef), intercept: intercept}, nil
}

// PredictProbability returns sigmoid(intercept + coef·x)
func (l *Logistic) PredictProbability(x []float64) (float64, error) {
	if l == nil || len(l.coef) == 0 {
		return 0, &InferenceError{Op: "predict", Err: ErrNotLoaded}
	}
	if err := checkInput(l, x); err != nil {
		return 0, err
	}

	z := l.intercept
	for i, c := range l.coef {
		z += c * x[i]
	}

	return 1 / (1 + math.Exp(-z)), nil
}

// NumFeatures returns the number of coefficients
func (l *Logistic) NumFeatures() int {
	if l == nil {
		return 0
	}
	return len(l.coef)
}

// Metadata returns the training-side description of the model
func (l *Logistic) Metadata() Metadata {
	m := l.meta
	m.FeatureNames = slices.Clone(l.meta.FeatureNames)
	return m
}
