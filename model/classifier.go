// Package model holds the trained probability estimators used at inference time.
//
// Models are produced offline and loaded once from a JSON artifact. After
// loading they are immutable and safe for concurrent use without locking.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Classifier estimates the probability of the positive class for an encoded vector.
// Any model family satisfying this contract can back the pipeline.
type Classifier interface {
	// PredictProbability returns a probability in [0,1]
	PredictProbability(x []float64) (float64, error)

	// NumFeatures is the vector length the model was trained on
	NumFeatures() int
}

// Metadata is the training-side description carried by a model artifact
type Metadata struct {
	Type          string   `json:"type"`
	SchemaVersion string   `json:"schema_version,omitempty"`
	FeatureNames  []string `json:"feature_names,omitempty"`
}

// Describer is implemented by classifiers that know which schema they were trained on
type Describer interface {
	Metadata() Metadata
}

// ErrNotLoaded is returned when inference is attempted on a model that never loaded
var ErrNotLoaded = errors.New("model artifact not loaded")

// InferenceError reports an unusable model artifact
type InferenceError struct {
	Op  string
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("model %s: %v", e.Op, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// Decoder builds a Classifier from a raw artifact
type Decoder func(data []byte) (Classifier, error)

var decoders = map[string]Decoder{
	TypeDecisionTree: func(data []byte) (Classifier, error) { return DecodeDecisionTree(data) },
	TypeLogistic:     func(data []byte) (Classifier, error) { return DecodeLogistic(data) },
}

// Types lists the artifact types Load understands
func Types() []string {
	types := make([]string, 0, len(decoders))
	for t := range decoders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Decode builds a Classifier from artifact bytes, dispatching on its "type" field
func Decode(data []byte) (Classifier, error) {
	var header Metadata
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, &InferenceError{Op: "load", Err: fmt.Errorf("invalid artifact: %w", err)}
	}

	decode, ok := decoders[header.Type]
	if !ok {
		return nil, &InferenceError{Op: "load", Err: fmt.Errorf("unknown model type %q (known: %v)", header.Type, Types())}
	}

	c, err := decode(data)
	if err != nil {
		return nil, &InferenceError{Op: "load", Err: err}
	}

	if n := len(header.FeatureNames); n > 0 && n != c.NumFeatures() {
		return nil, &InferenceError{Op: "load", Err: fmt.Errorf("artifact lists %d feature names but the model uses %d features", n, c.NumFeatures())}
	}

	return c, nil
}

// Load reads a model artifact from disk
func Load(path string) (Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InferenceError{Op: "load", Err: err}
	}

	c, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return c, nil
}

func checkInput(c Classifier, x []float64) error {
	if len(x) != c.NumFeatures() {
		return &InferenceError{Op: "predict", Err: fmt.Errorf("vector has %d features, model expects %d", len(x), c.NumFeatures())}
	}
	return nil
}
