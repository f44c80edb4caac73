package domain

import (
	"sort"
	"time"
)

// Metric names written to metrics.json.
const (
	MetricROCAUC           = "roc_auc"
	MetricAveragePrecision = "average_precision"
	MetricF1               = "f1"
	MetricAccuracy         = "accuracy"
	MetricPrecision        = "precision"
	MetricRecall           = "recall"
	MetricPositiveRate     = "positive_rate"
)

// RequiredMetrics are produced for every trained kind.
var RequiredMetrics = []string{
	MetricROCAUC,
	MetricAveragePrecision,
	MetricF1,
	MetricAccuracy,
	MetricPrecision,
	MetricRecall,
	MetricPositiveRate,
}

type Metrics map[string]float64

// Names returns the metric names sorted for stable output.
func (m Metrics) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Predictor is a fitted binary classifier.
type Predictor interface {
	Kind() ModelKind
	NumFeatures() int
	// PredictProba returns p(label=1) for one row in schema order.
	PredictProba(x []float64) (float64, error)
}

// ModelRecord is the result of fitting and scoring one kind in one run.
type ModelRecord struct {
	Kind      ModelKind
	Predictor Predictor
	Metrics   Metrics
	CreatedAt time.Time
}

func (r *ModelRecord) ROCAUC() float64 {
	return r.Metrics[MetricROCAUC]
}
