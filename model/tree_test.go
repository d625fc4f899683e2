package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Three features: work_interfere_Often, family_history_Yes, Gender_Male
const treeFixture = `{
	"type": "decision_tree",
	"schema_version": "v1",
	"feature_names": ["work_interfere_Often", "family_history_Yes", "Gender_Male"],
	"n_features": 3,
	"classes": ["No", "Yes"],
	"positive_class": "Yes",
	"tree": {
		"children_left":  [1, -1, 3, -1, -1],
		"children_right": [2, -1, 4, -1, -1],
		"feature":        [0, -2, 1, -2, -2],
		"threshold":      [0.5, -2, 0.5, -2, -2],
		"value":          [[100, 100], [0.8, 0.2], [50, 50], [0.5, 0.5], [18, 82]]
	}
}`

func TestDecisionTreePredictProbability(t *testing.T) {
	c, err := Decode([]byte(treeFixture))
	require.NoError(t, err)
	require.Equal(t, 3, c.NumFeatures())

	testCases := []struct {
		name string
		x    []float64
		want float64
	}{
		{"all zero goes left", []float64{0, 0, 0}, 0.2},
		{"threshold is inclusive on the left", []float64{0.5, 1, 1}, 0.2},
		{"often without family history", []float64{1, 0, 1}, 0.5},
		{"often with family history", []float64{1, 1, 0}, 0.82},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := c.PredictProbability(tc.x)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, p, 1e-12)
		})
	}
}

func TestDecisionTreeIsDeterministic(t *testing.T) {
	c, err := Decode([]byte(treeFixture))
	require.NoError(t, err)

	x := []float64{1, 1, 0}
	first, err := c.PredictProbability(x)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		p, err := c.PredictProbability(x)
		require.NoError(t, err)
		assert.Equal(t, first, p)
	}
}

func TestDecisionTreeMetadata(t *testing.T) {
	c, err := Decode([]byte(treeFixture))
	require.NoError(t, err)

	tree, ok := c.(*DecisionTree)
	require.True(t, ok)

	meta := tree.Metadata()
	assert.Equal(t, TypeDecisionTree, meta.Type)
	assert.Equal(t, "v1", meta.SchemaVersion)
	assert.Equal(t, []string{"work_interfere_Often", "family_history_Yes", "Gender_Male"}, meta.FeatureNames)

	meta.FeatureNames[0] = "changed"
	assert.Equal(t, "work_interfere_Often", tree.Metadata().FeatureNames[0])
}

func TestDecisionTreeWrongLength(t *testing.T) {
	c, err := Decode([]byte(treeFixture))
	require.NoError(t, err)

	_, err = c.PredictProbability([]float64{1, 1})

	var inferenceErr *InferenceError
	require.ErrorAs(t, err, &inferenceErr)
	assert.Equal(t, "predict", inferenceErr.Op)
	assert.Contains(t, err.Error(), "vector has 2 features, model expects 3")
}

func TestDecisionTreeNotLoaded(t *testing.T) {
	var tree *DecisionTree

	_, err := tree.PredictProbability([]float64{1})

	assert.ErrorIs(t, err, ErrNotLoaded)
	var inferenceErr *InferenceError
	assert.ErrorAs(t, err, &inferenceErr)

	_, err = (&DecisionTree{}).PredictProbability(nil)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestPositiveClassSelection(t *testing.T) {
	nodes := TreeNodes{
		ChildrenLeft:  []int{-1},
		ChildrenRight: []int{-1},
		Feature:       []int{-2},
		Threshold:     []float64{-2},
		Value:         [][]float64{{3, 1}},
	}

	testCases := []struct {
		name     string
		classes  []string
		positive string
		want     float64
	}{
		{"no labels uses second column", nil, "", 0.25},
		{"binary labels default to second", []string{"No", "Yes"}, "", 0.25},
		{"explicit first column", []string{"Yes", "No"}, "Yes", 0.75},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			idx, err := positiveIndex(tc.classes, tc.positive)
			require.NoError(t, err)

			tree, err := NewDecisionTree(Metadata{}, 1, idx, nodes)
			require.NoError(t, err)

			p, err := tree.PredictProbability([]float64{0})
			require.NoError(t, err)
			assert.InDelta(t, tc.want, p, 1e-12)
		})
	}

	_, err := positiveIndex([]string{"No", "Yes"}, "Maybe")
	assert.Error(t, err)

	_, err = positiveIndex([]string{"a", "b", "c"}, "")
	assert.Error(t, err)
}

func TestNewDecisionTreeRejectsMalformedTrees(t *testing.T) {
	valid := func() TreeNodes {
		return TreeNodes{
			ChildrenLeft:  []int{1, -1, -1},
			ChildrenRight: []int{2, -1, -1},
			Feature:       []int{0, -2, -2},
			Threshold:     []float64{0.5, -2, -2},
			Value:         [][]float64{{2, 2}, {1, 0}, {0, 1}},
		}
	}

	testCases := []struct {
		name     string
		mutate   func(n *TreeNodes)
		contains string
	}{
		{"no nodes", func(n *TreeNodes) { *n = TreeNodes{} }, "no nodes"},
		{"mismatched arrays", func(n *TreeNodes) { n.Threshold = n.Threshold[:2] }, "mismatched lengths"},
		{"single child", func(n *TreeNodes) { n.ChildrenRight[0] = -1 }, "exactly one child"},
		{"cycle", func(n *TreeNodes) { n.ChildrenLeft[0] = 0 }, "out-of-order"},
		{"child out of range", func(n *TreeNodes) { n.ChildrenRight[0] = 7 }, "out-of-order"},
		{"feature out of range", func(n *TreeNodes) { n.Feature[0] = 4 }, "feature 4"},
		{"empty leaf", func(n *TreeNodes) { n.Value[1] = []float64{0, 0} }, "no samples"},
		{"negative count", func(n *TreeNodes) { n.Value[2] = []float64{-1, 2} }, "invalid class count"},
		{"leaf too narrow", func(n *TreeNodes) { n.Value[2] = []float64{1} }, "positive class index"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			nodes := valid()
			tc.mutate(&nodes)

			_, err := NewDecisionTree(Metadata{}, 2, 1, nodes)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.contains)
		})
	}

	_, err := NewDecisionTree(Metadata{}, 0, 1, valid())
	assert.ErrorContains(t, err, "n_features")
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type": "random_forest"}`))

	var inferenceErr *InferenceError
	require.ErrorAs(t, err, &inferenceErr)
	assert.Contains(t, err.Error(), "unknown model type")
	assert.Contains(t, err.Error(), "decision_tree")
}

func TestDecodeRejectsCorruptArtifact(t *testing.T) {
	for _, data := range []string{"", "{", `{"type": "decision_tree", "n_features": "three"}`} {
		_, err := Decode([]byte(data))

		var inferenceErr *InferenceError
		assert.ErrorAs(t, err, &inferenceErr, "data %q", data)
	}
}

func TestDecodeRejectsFeatureNameMismatch(t *testing.T) {
	data := `{
		"type": "logistic",
		"feature_names": ["a_1", "b_1", "c_1"],
		"coef": [0.1, 0.2],
		"intercept": 0
	}`

	_, err := Decode([]byte(data))
	assert.ErrorContains(t, err, "3 feature names")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(treeFixture), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, c.NumFeatures())

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	var inferenceErr *InferenceError
	require.ErrorAs(t, err, &inferenceErr)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestTypes(t *testing.T) {
	assert.Equal(t, []string{TypeDecisionTree, TypeLogistic}, Types())
}
