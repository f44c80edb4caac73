package ml

import (
	"fmt"

	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/core/ports/output"
)

// Params holds the hyperparameters of every supported kind.
type Params struct {
	Seed     int64
	Balanced bool

	LogisticC       float64
	LogisticMaxIter int

	TreeMaxDepth int
	TreeMinLeaf  int

	ForestTrees       int
	ForestMaxDepth    int
	ForestMaxFeatures int

	BoostRounds       int
	BoostLearningRate float64
	BoostMaxDepth     int
	BoostSubsample    float64
}

func DefaultParams() Params {
	return Params{
		Seed:              42,
		Balanced:          true,
		LogisticC:         1.0,
		LogisticMaxIter:   500,
		TreeMaxDepth:      0,
		TreeMinLeaf:       1,
		ForestTrees:       300,
		ForestMaxDepth:    0,
		ForestMaxFeatures: 0,
		BoostRounds:       400,
		BoostLearningRate: 0.1,
		BoostMaxDepth:     6,
		BoostSubsample:    0.9,
	}
}

type Factory struct {
	params Params
}

func NewFactory(params Params) *Factory {
	return &Factory{params: params}
}

func (f *Factory) New(kind domain.ModelKind) (ports.Estimator, error) {
	p := f.params
	switch kind {
	case domain.ModelKindLogisticRegression:
		return &LogisticRegression{C: p.LogisticC, MaxIter: p.LogisticMaxIter, Balanced: p.Balanced}, nil
	case domain.ModelKindDecisionTree:
		return &DecisionTree{MaxDepth: p.TreeMaxDepth, MinSamplesLeaf: p.TreeMinLeaf, Balanced: p.Balanced}, nil
	case domain.ModelKindRandomForest:
		return &RandomForest{
			NEstimators:    p.ForestTrees,
			MaxDepth:       p.ForestMaxDepth,
			MinSamplesLeaf: 1,
			MaxFeatures:    p.ForestMaxFeatures,
			Balanced:       p.Balanced,
			Seed:           p.Seed,
		}, nil
	case domain.ModelKindGradientBoostedTrees:
		return &GradientBoosting{
			NEstimators:    p.BoostRounds,
			LearningRate:   p.BoostLearningRate,
			MaxDepth:       p.BoostMaxDepth,
			MinSamplesLeaf: 1,
			Subsample:      p.BoostSubsample,
			Seed:           p.Seed,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownModelKind, kind)
	}
}
