package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"churn-model-service/internal/core/domain"
)

// TreeNode is one node of a flattened binary tree. Leaves have Feature == -1.
type TreeNode struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

type treeParams struct {
	maxDepth       int // 0 means unlimited
	minSamplesLeaf int
	maxFeatures    int // 0 means all features
}

// treeGrower fits a weighted least-squares regression tree. On 0/1 targets the
// squared-error split criterion ranks splits exactly like Gini impurity and the
// leaf value is the weighted positive fraction.
type treeGrower struct {
	X      [][]float64
	target []float64
	weight []float64
	params treeParams
	rng    *rand.Rand
	nodes  []TreeNode
}

func growTree(X [][]float64, target, weight []float64, idx []int, params treeParams, rng *rand.Rand) []TreeNode {
	if params.minSamplesLeaf < 1 {
		params.minSamplesLeaf = 1
	}
	g := &treeGrower{X: X, target: target, weight: weight, params: params, rng: rng}
	g.grow(idx, 0)
	return g.nodes
}

func (g *treeGrower) grow(idx []int, depth int) int {
	id := len(g.nodes)
	var sw, swy, swy2 float64
	for _, i := range idx {
		w := g.weight[i]
		sw += w
		swy += w * g.target[i]
		swy2 += w * g.target[i] * g.target[i]
	}
	value := 0.0
	if sw > 0 {
		value = swy / sw
	}
	g.nodes = append(g.nodes, TreeNode{Feature: -1, Left: -1, Right: -1, Value: value})

	if g.params.maxDepth > 0 && depth >= g.params.maxDepth {
		return id
	}
	if len(idx) < 2*g.params.minSamplesLeaf || sw <= 0 {
		return id
	}
	if sse(sw, swy, swy2) <= 1e-12 {
		return id
	}

	feature, threshold, ok := g.bestSplit(idx, sw, swy, swy2)
	if !ok {
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if g.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.nodes[id].Feature = feature
	g.nodes[id].Threshold = threshold
	g.nodes[id].Left = l
	g.nodes[id].Right = r
	return id
}

func (g *treeGrower) bestSplit(idx []int, sw, swy, swy2 float64) (int, float64, bool) {
	nFeatures := len(g.X[idx[0]])
	features := make([]int, nFeatures)
	for f := range features {
		features[f] = f
	}
	if g.params.maxFeatures > 0 && g.params.maxFeatures < nFeatures && g.rng != nil {
		g.rng.Shuffle(nFeatures, func(a, b int) { features[a], features[b] = features[b], features[a] })
		features = features[:g.params.maxFeatures]
		sort.Ints(features)
	}

	parent := sse(sw, swy, swy2)
	bestGain := 1e-12
	bestFeature := -1
	bestThreshold := 0.0

	order := make([]int, len(idx))
	minLeaf := g.params.minSamplesLeaf
	for _, f := range features {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool { return g.X[order[a]][f] < g.X[order[b]][f] })

		var lw, lwy, lwy2 float64
		for k := 0; k < len(order)-1; k++ {
			i := order[k]
			w := g.weight[i]
			lw += w
			lwy += w * g.target[i]
			lwy2 += w * g.target[i] * g.target[i]

			cur, next := g.X[i][f], g.X[order[k+1]][f]
			if cur == next {
				continue
			}
			if k+1 < minLeaf || len(order)-(k+1) < minLeaf {
				continue
			}
			rw := sw - lw
			if lw <= 0 || rw <= 0 {
				continue
			}
			gain := parent - sse(lw, lwy, lwy2) - sse(rw, swy-lwy, swy2-lwy2)
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func sse(sw, swy, swy2 float64) float64 {
	if sw <= 0 {
		return 0
	}
	v := swy2 - swy*swy/sw
	if v < 0 {
		return 0
	}
	return v
}

func leafIndex(nodes []TreeNode, x []float64) int {
	i := 0
	for nodes[i].Feature >= 0 {
		if x[nodes[i].Feature] <= nodes[i].Threshold {
			i = nodes[i].Left
		} else {
			i = nodes[i].Right
		}
	}
	return i
}

// DecisionTree is a CART classifier.
type DecisionTree struct {
	MaxDepth       int
	MinSamplesLeaf int
	Balanced       bool

	Features int
	Nodes    []TreeNode
}

func (t *DecisionTree) Kind() domain.ModelKind { return domain.ModelKindDecisionTree }

func (t *DecisionTree) NumFeatures() int { return t.Features }

func (t *DecisionTree) Fit(X [][]float64, y []int) error {
	n, err := checkTrainingData(X, y)
	if err != nil {
		return err
	}
	target, weight := targetsAndWeights(y, t.Balanced)
	t.Features = n
	t.Nodes = growTree(X, target, weight, allRows(len(y)), treeParams{
		maxDepth:       t.MaxDepth,
		minSamplesLeaf: t.MinSamplesLeaf,
	}, nil)
	return nil
}

func (t *DecisionTree) PredictProba(x []float64) (float64, error) {
	if len(t.Nodes) == 0 {
		return 0, domain.ErrNotFitted
	}
	if len(x) != t.Features {
		return 0, fmt.Errorf("%w: got %d, want %d", domain.ErrFeatureCount, len(x), t.Features)
	}
	return clamp01(t.Nodes[leafIndex(t.Nodes, x)].Value), nil
}

func checkTrainingData(X [][]float64, y []int) (int, error) {
	if len(X) == 0 {
		return 0, domain.ErrEmptyDataset
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("%w: %d rows, %d labels", domain.ErrMalformedDataset, len(X), len(y))
	}
	width := len(X[0])
	if width == 0 {
		return 0, fmt.Errorf("%w: rows have no features", domain.ErrMalformedDataset)
	}
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("%w: row %d has %d values, want %d", domain.ErrMalformedDataset, i, len(row), width)
		}
		if y[i] != 0 && y[i] != 1 {
			return 0, fmt.Errorf("%w: row %d", domain.ErrInvalidLabel, i)
		}
	}
	return width, nil
}

// targetsAndWeights converts labels to float targets and per-sample weights.
// Balanced weighting gives each class the same total weight.
func targetsAndWeights(y []int, balanced bool) ([]float64, []float64) {
	target := make([]float64, len(y))
	weight := make([]float64, len(y))
	var pos int
	for i, v := range y {
		target[i] = float64(v)
		pos += v
	}
	neg := len(y) - pos
	wPos, wNeg := 1.0, 1.0
	if balanced && pos > 0 && neg > 0 {
		wPos = float64(len(y)) / (2 * float64(pos))
		wNeg = float64(len(y)) / (2 * float64(neg))
	}
	for i, v := range y {
		if v == 1 {
			weight[i] = wPos
		} else {
			weight[i] = wNeg
		}
	}
	return target, weight
}

func allRows(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
