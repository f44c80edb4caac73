package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	"churn-model-service/internal/core/domain"
)

// RandomForest averages bootstrapped CART trees grown on random feature subsets.
// Each tree draws from its own seeded source, so the fit is reproducible no
// matter how the trees are scheduled.
type RandomForest struct {
	NEstimators    int
	MaxDepth       int
	MinSamplesLeaf int
	MaxFeatures    int // 0 means sqrt(features)
	Balanced       bool
	Seed           int64

	Features int
	Trees    [][]TreeNode
}

func (f *RandomForest) Kind() domain.ModelKind { return domain.ModelKindRandomForest }

func (f *RandomForest) NumFeatures() int { return f.Features }

func (f *RandomForest) Fit(X [][]float64, y []int) error {
	d, err := checkTrainingData(X, y)
	if err != nil {
		return err
	}
	nTrees := f.NEstimators
	if nTrees <= 0 {
		nTrees = 100
	}
	maxFeatures := f.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(d)))))
	}
	target, classWeight := targetsAndWeights(y, f.Balanced)
	n := len(y)

	trees := make([][]TreeNode, nTrees)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := 0; t < nTrees; t++ {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(f.Seed), uint64(t)))
			counts := make([]int, n)
			for k := 0; k < n; k++ {
				counts[rng.IntN(n)]++
			}
			weight := make([]float64, n)
			idx := make([]int, 0, n)
			for i, c := range counts {
				if c > 0 {
					weight[i] = classWeight[i] * float64(c)
					idx = append(idx, i)
				}
			}
			if len(idx) == 0 {
				return fmt.Errorf("tree %d: empty bootstrap sample", t)
			}
			trees[t] = growTree(X, target, weight, idx, treeParams{
				maxDepth:       f.MaxDepth,
				minSamplesLeaf: f.MinSamplesLeaf,
				maxFeatures:    maxFeatures,
			}, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.Features = d
	f.Trees = trees
	return nil
}

func (f *RandomForest) PredictProba(x []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, domain.ErrNotFitted
	}
	if len(x) != f.Features {
		return 0, fmt.Errorf("%w: got %d, want %d", domain.ErrFeatureCount, len(x), f.Features)
	}
	sum := 0.0
	for _, nodes := range f.Trees {
		sum += nodes[leafIndex(nodes, x)].Value
	}
	return clamp01(sum / float64(len(f.Trees))), nil
}
