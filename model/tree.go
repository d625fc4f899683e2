package model

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

const (
	TypeDecisionTree = "decision_tree"

	// leaf marks a node without children, as in scikit-learn's tree_ arrays
	leaf = -1
)

// TreeNodes is the parallel-array layout of a fitted binary decision tree
type TreeNodes struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

// DecisionTree is a fitted decision tree classifier
type DecisionTree struct {
	meta        Metadata
	nFeatures   int
	positive    int
	nodes       TreeNodes
	probability []float64 // per-node positive-class probability, leaves only
}

type treeArtifact struct {
	Metadata
	NFeatures     int       `json:"n_features"`
	Classes       []string  `json:"classes"`
	PositiveClass string    `json:"positive_class"`
	Tree          TreeNodes `json:"tree"`
}

// DecodeDecisionTree parses and validates a decision tree artifact
func DecodeDecisionTree(data []byte) (*DecisionTree, error) {
	var a treeArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("invalid decision tree artifact: %w", err)
	}
	a.Type = TypeDecisionTree

	positive, err := positiveIndex(a.Classes, a.PositiveClass)
	if err != nil {
		return nil, err
	}

	return NewDecisionTree(a.Metadata, a.NFeatures, positive, a.Tree)
}

// positiveIndex picks the column of the leaf value holding the positive class.
// Without explicit labels the second column is positive, matching predict_proba(x)[1].
func positiveIndex(classes []string, positive string) (int, error) {
	if len(classes) == 0 {
		return 1, nil
	}
	if positive == "" {
		if len(classes) != 2 {
			return 0, fmt.Errorf("positive_class is required for %d classes", len(classes))
		}
		return 1, nil
	}
	i := slices.Index(classes, positive)
	if i < 0 {
		return 0, fmt.Errorf("positive class %q is not one of %v", positive, classes)
	}
	return i, nil
}

// NewDecisionTree validates the node arrays and builds a tree
func NewDecisionTree(meta Metadata, nFeatures, positive int, nodes TreeNodes) (*DecisionTree, error) {
	n := len(nodes.ChildrenLeft)
	if n == 0 {
		return nil, fmt.Errorf("decision tree has no nodes")
	}
	if nFeatures <= 0 {
		return nil, fmt.Errorf("n_features must be positive, got %d", nFeatures)
	}
	if len(nodes.ChildrenRight) != n || len(nodes.Feature) != n || len(nodes.Threshold) != n || len(nodes.Value) != n {
		return nil, fmt.Errorf("tree arrays have mismatched lengths (left=%d right=%d feature=%d threshold=%d value=%d)",
			n, len(nodes.ChildrenRight), len(nodes.Feature), len(nodes.Threshold), len(nodes.Value))
	}

	t := &DecisionTree{
		meta:        meta,
		nFeatures:   nFeatures,
		positive:    positive,
		nodes:       nodes,
		probability: make([]float64, n),
	}
	t.meta.Type = TypeDecisionTree

	for i := 0; i < n; i++ {
		left, right := nodes.ChildrenLeft[i], nodes.ChildrenRight[i]

		if left == leaf || right == leaf {
			if left != right {
				return nil, fmt.Errorf("node %d has exactly one child", i)
			}
			p, err := leafProbability(nodes.Value[i], positive)
			if err != nil {
				return nil, fmt.Errorf("node %d: %w", i, err)
			}
			t.probability[i] = p
			continue
		}

		// Children always follow their parent, which rules out cycles
		if left <= i || left >= n || right <= i || right >= n {
			return nil, fmt.Errorf("node %d has out-of-order children %d/%d", i, left, right)
		}
		if f := nodes.Feature[i]; f < 0 || f >= nFeatures {
			return nil, fmt.Errorf("node %d splits on feature %d, model has %d", i, f, nFeatures)
		}
		if math.IsNaN(nodes.Threshold[i]) {
			return nil, fmt.Errorf("node %d has a NaN threshold", i)
		}
	}

	return t, nil
}

func leafProbability(value []float64, positive int) (float64, error) {
	if positive < 0 || positive >= len(value) {
		return 0, fmt.Errorf("leaf has %d class counts, positive class index is %d", len(value), positive)
	}

	total := 0.0
	for _, v := range value {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("invalid class count %v", v)
		}
		total += v
	}
	if total == 0 {
		return 0, fmt.Errorf("leaf has no samples")
	}

	return value[positive] / total, nil
}

// PredictProbability walks the tree from the root to a leaf.
// A sample goes left when x[feature] <= threshold.
func (t *DecisionTree) PredictProbability(x []float64) (float64, error) {
	if t == nil || len(t.probability) == 0 {
		return 0, &InferenceError{Op: "predict", Err: ErrNotLoaded}
	}
	if err := checkInput(t, x); err != nil {
		return 0, err
	}

	node := 0
	for t.nodes.ChildrenLeft[node] != leaf {
		if x[t.nodes.Feature[node]] <= t.nodes.Threshold[node] {
			node = t.nodes.ChildrenLeft[node]
		} else {
			node = t.nodes.ChildrenRight[node]
		}
	}

	return t.probability[node], nil
}

// NumFeatures returns the input width of the tree
func (t *DecisionTree) NumFeatures() int {
	if t == nil {
		return 0
	}
	return t.nFeatures
}

// Metadata returns the training-side description of the tree
func (t *DecisionTree) Metadata() Metadata {
	m := t.meta
	m.FeatureNames = slices.Clone(t.meta.FeatureNames)
	return m
}
