package ml

import (
	"fmt"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"churn-model-service/internal/core/domain"
)

// Evaluate scores positive-class probabilities against true labels.
// Threshold-based metrics count p >= threshold as positive. Both classes must
// be present; ROC-AUC is undefined otherwise.
func Evaluate(yTrue []int, proba []float64, threshold float64) (domain.Metrics, error) {
	if len(yTrue) == 0 {
		return nil, domain.ErrEmptyDataset
	}
	if len(yTrue) != len(proba) {
		return nil, fmt.Errorf("%w: %d labels, %d scores", domain.ErrMalformedDataset, len(yTrue), len(proba))
	}

	var tp, fp, tn, fn, pos int
	for i, y := range yTrue {
		predicted := proba[i] >= threshold
		switch {
		case y == 1 && predicted:
			tp++
		case y == 1:
			fn++
		case predicted:
			fp++
		default:
			tn++
		}
		if y == 1 {
			pos++
		}
	}
	if pos == 0 || pos == len(yTrue) {
		return nil, domain.ErrSingleClass
	}

	n := float64(len(yTrue))
	precision := ratio(tp, tp+fp)
	recall := ratio(tp, tp+fn)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	return domain.Metrics{
		domain.MetricROCAUC:           rocAUC(yTrue, proba),
		domain.MetricAveragePrecision: averagePrecision(yTrue, proba),
		domain.MetricF1:               f1,
		domain.MetricAccuracy:         float64(tp+tn) / n,
		domain.MetricPrecision:        precision,
		domain.MetricRecall:           recall,
		domain.MetricPositiveRate:     float64(pos) / n,
	}, nil
}

func rocAUC(yTrue []int, proba []float64) float64 {
	scores, classes := sortedScores(yTrue, proba)
	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return clamp01(integrate.Trapezoidal(fpr, tpr))
}

// averagePrecision is the step-wise area under the precision-recall curve,
// taking one point per distinct score.
func averagePrecision(yTrue []int, proba []float64) float64 {
	scores, classes := sortedScores(yTrue, proba)
	totalPos := 0
	for _, c := range classes {
		if c {
			totalPos++
		}
	}

	var tp, seen int
	ap, prevRecall := 0.0, 0.0
	for i := len(scores) - 1; i >= 0; {
		j := i
		for j >= 0 && scores[j] == scores[i] {
			if classes[j] {
				tp++
			}
			seen++
			j--
		}
		recall := float64(tp) / float64(totalPos)
		ap += (recall - prevRecall) * float64(tp) / float64(seen)
		prevRecall = recall
		i = j
	}
	return clamp01(ap)
}

// sortedScores returns copies sorted by ascending score, as stat.ROC requires.
func sortedScores(yTrue []int, proba []float64) ([]float64, []bool) {
	scores := append([]float64(nil), proba...)
	classes := make([]bool, len(yTrue))
	for i, y := range yTrue {
		classes[i] = y == 1
	}
	stat.SortWeightedLabeled(scores, classes, nil)
	return scores, classes
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
