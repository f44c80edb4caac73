package ml

import (
	"fmt"
	"math"
	"math/rand/v2"

	"churn-model-service/internal/core/domain"
)

// GradientBoosting fits shallow regression trees to the logistic-loss gradient
// with a Newton step in every leaf.
type GradientBoosting struct {
	NEstimators    int
	LearningRate   float64
	MaxDepth       int
	MinSamplesLeaf int
	Subsample      float64
	Seed           int64

	Features int
	Init     float64
	Trees    [][]TreeNode
}

func (b *GradientBoosting) Kind() domain.ModelKind { return domain.ModelKindGradientBoostedTrees }

func (b *GradientBoosting) NumFeatures() int { return b.Features }

func (b *GradientBoosting) Fit(X [][]float64, y []int) error {
	d, err := checkTrainingData(X, y)
	if err != nil {
		return err
	}
	rounds := b.NEstimators
	if rounds <= 0 {
		rounds = 100
	}
	lr := b.LearningRate
	if lr <= 0 {
		lr = 0.1
	}
	depth := b.MaxDepth
	if depth <= 0 {
		depth = 3
	}
	subsample := b.Subsample
	if subsample <= 0 || subsample > 1 {
		subsample = 1
	}

	n := len(y)
	target, _ := targetsAndWeights(y, false)
	p0 := 0.0
	for _, v := range target {
		p0 += v
	}
	p0 = math.Min(math.Max(p0/float64(n), 1e-6), 1-1e-6)
	init := math.Log(p0 / (1 - p0))

	score := make([]float64, n)
	for i := range score {
		score[i] = init
	}
	residual := make([]float64, n)
	hessian := make([]float64, n)
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}

	rng := rand.New(rand.NewPCG(uint64(b.Seed), 0x9e3779b97f4a7c15))
	sampleSize := int(math.Max(1, math.Round(subsample*float64(n))))
	trees := make([][]TreeNode, 0, rounds)

	for m := 0; m < rounds; m++ {
		for i := range score {
			p := sigmoid(score[i])
			residual[i] = target[i] - p
			hessian[i] = p * (1 - p)
		}

		idx := allRows(n)
		if sampleSize < n {
			idx = rng.Perm(n)[:sampleSize]
		}

		nodes := growTree(X, residual, ones, idx, treeParams{
			maxDepth:       depth,
			minSamplesLeaf: b.MinSamplesLeaf,
		}, nil)

		num := make([]float64, len(nodes))
		den := make([]float64, len(nodes))
		for _, i := range idx {
			leaf := leafIndex(nodes, X[i])
			num[leaf] += residual[i]
			den[leaf] += hessian[i]
		}
		for k := range nodes {
			if nodes[k].Feature >= 0 {
				continue
			}
			if den[k] > 1e-12 {
				nodes[k].Value = num[k] / den[k]
			} else {
				nodes[k].Value = 0
			}
		}

		for i := range score {
			score[i] += lr * nodes[leafIndex(nodes, X[i])].Value
		}
		trees = append(trees, nodes)
	}

	b.Features = d
	b.Init = init
	b.LearningRate = lr
	b.Trees = trees
	return nil
}

func (b *GradientBoosting) PredictProba(x []float64) (float64, error) {
	if len(b.Trees) == 0 {
		return 0, domain.ErrNotFitted
	}
	if len(x) != b.Features {
		return 0, fmt.Errorf("%w: got %d, want %d", domain.ErrFeatureCount, len(x), b.Features)
	}
	s := b.Init
	for _, nodes := range b.Trees {
		s += b.LearningRate * nodes[leafIndex(nodes, x)].Value
	}
	return sigmoid(s), nil
}
