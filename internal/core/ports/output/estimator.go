package ports

import "churn-model-service/internal/core/domain"

// Estimator is an unfitted classifier of one kind.
type Estimator interface {
	domain.Predictor
	Fit(X [][]float64, y []int) error
}

// EstimatorFactory builds a fresh estimator with the configured hyperparameters.
type EstimatorFactory interface {
	New(kind domain.ModelKind) (Estimator, error)
}
