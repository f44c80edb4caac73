package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"churn-model-service/internal/core/domain"
)

// LogisticRegression is an L2-regularised binary logistic model fitted with
// L-BFGS on standardised features. C is the inverse regularisation strength.
type LogisticRegression struct {
	C        float64
	MaxIter  int
	Balanced bool

	Features  int
	Mean      []float64
	Scale     []float64
	Coef      []float64
	Intercept float64
}

func (m *LogisticRegression) Kind() domain.ModelKind { return domain.ModelKindLogisticRegression }

func (m *LogisticRegression) NumFeatures() int { return m.Features }

func (m *LogisticRegression) Fit(X [][]float64, y []int) error {
	d, err := checkTrainingData(X, y)
	if err != nil {
		return err
	}
	c := m.C
	if c <= 0 {
		c = 1
	}
	maxIter := m.MaxIter
	if maxIter <= 0 {
		maxIter = 100
	}

	mean := make([]float64, d)
	scale := make([]float64, d)
	col := make([]float64, len(X))
	for j := 0; j < d; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		mu, sd := stat.MeanStdDev(col, nil)
		mean[j] = mu
		if sd > 0 && !math.IsNaN(sd) {
			scale[j] = sd
		} else {
			scale[j] = 1
		}
	}

	Z := make([][]float64, len(X))
	for i, row := range X {
		z := make([]float64, d)
		for j, v := range row {
			z[j] = (v - mean[j]) / scale[j]
		}
		Z[i] = z
	}
	target, weight := targetsAndWeights(y, m.Balanced)

	// theta = [coef..., intercept]
	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			coef, b := theta[:d], theta[d]
			loss := 0.5 * floats.Dot(coef, coef) / c
			for i, z := range Z {
				s := floats.Dot(coef, z) + b
				loss += weight[i] * (log1pExp(s) - target[i]*s)
			}
			return loss
		},
		Grad: func(grad, theta []float64) {
			coef, b := theta[:d], theta[d]
			for j := 0; j < d; j++ {
				grad[j] = coef[j] / c
			}
			grad[d] = 0
			for i, z := range Z {
				r := weight[i] * (sigmoid(floats.Dot(coef, z)+b) - target[i])
				floats.AddScaled(grad[:d], r, z)
				grad[d] += r
			}
		},
	}

	result, err := optimize.Minimize(problem, make([]float64, d+1), &optimize.Settings{MajorIterations: maxIter}, &optimize.LBFGS{})
	// Hitting the iteration limit still leaves a usable location.
	if result == nil || !allFinite(result.X) {
		if err == nil {
			err = fmt.Errorf("optimizer returned a non-finite solution")
		}
		return err
	}

	m.Features = d
	m.Mean = mean
	m.Scale = scale
	m.Coef = append([]float64(nil), result.X[:d]...)
	m.Intercept = result.X[d]
	return nil
}

func (m *LogisticRegression) PredictProba(x []float64) (float64, error) {
	if len(m.Coef) == 0 {
		return 0, domain.ErrNotFitted
	}
	if len(x) != m.Features {
		return 0, fmt.Errorf("%w: got %d, want %d", domain.ErrFeatureCount, len(x), m.Features)
	}
	s := m.Intercept
	for j, v := range x {
		s += m.Coef[j] * (v - m.Mean[j]) / m.Scale[j]
	}
	return sigmoid(s), nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// log1pExp computes log(1+exp(z)) without overflow.
func log1pExp(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
