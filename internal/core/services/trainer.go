package services

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/core/ports/output"
	"churn-model-service/internal/ml"
)

type TrainerConfig struct {
	Kinds     []domain.ModelKind
	TestSize  float64
	Seed      int64
	Threshold float64
}

func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Kinds:     domain.AllModelKinds,
		TestSize:  0.2,
		Seed:      42,
		Threshold: 0.5,
	}
}

// Trainer fits every configured kind on one split and scores it on the held-out rows.
// It has no persistence side effects.
type Trainer struct {
	cfg     TrainerConfig
	factory ports.EstimatorFactory
	now     func() time.Time
}

func NewTrainer(cfg TrainerConfig, factory ports.EstimatorFactory) (*Trainer, error) {
	if len(cfg.Kinds) == 0 {
		return nil, fmt.Errorf("%w: no model kinds configured", domain.ErrUnknownModelKind)
	}
	seen := map[domain.ModelKind]bool{}
	for _, k := range cfg.Kinds {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownModelKind, k)
		}
		if seen[k] {
			return nil, fmt.Errorf("model kind %q listed twice", k)
		}
		seen[k] = true
	}
	if cfg.TestSize <= 0 || cfg.TestSize >= 1 {
		return nil, fmt.Errorf("test size must be in (0, 1), got %v", cfg.TestSize)
	}
	if cfg.Threshold <= 0 || cfg.Threshold >= 1 {
		return nil, fmt.Errorf("threshold must be in (0, 1), got %v", cfg.Threshold)
	}
	return &Trainer{cfg: cfg, factory: factory, now: time.Now}, nil
}

// Train returns one record per configured kind, in configured order. Data
// problems surface before any estimator is fitted; a failing kind aborts the run.
func (t *Trainer) Train(ctx context.Context, ds *domain.Dataset) ([]*domain.ModelRecord, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	trainIdx, testIdx, err := ml.StratifiedSplit(ds.Y, t.cfg.TestSize, t.cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedDataset, err)
	}
	train, test := ds.Subset(trainIdx), ds.Subset(testIdx)
	if err := requireBothClasses("train", train); err != nil {
		return nil, err
	}
	if err := requireBothClasses("test", test); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"rows":     ds.Len(),
		"train":    train.Len(),
		"test":     test.Len(),
		"features": ds.Schema.Len(),
	}).Info("Dataset split")

	records := make([]*domain.ModelRecord, 0, len(t.cfg.Kinds))
	for _, kind := range t.cfg.Kinds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := t.fitOne(kind, train, test)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (t *Trainer) fitOne(kind domain.ModelKind, train, test *domain.Dataset) (*domain.ModelRecord, error) {
	start := time.Now()
	est, err := t.factory.New(kind)
	if err != nil {
		return nil, &domain.FitError{Kind: kind, Err: err}
	}
	if err := est.Fit(train.X, train.Y); err != nil {
		return nil, &domain.FitError{Kind: kind, Err: err}
	}

	proba := make([]float64, test.Len())
	for i, row := range test.X {
		p, err := est.PredictProba(row)
		if err != nil {
			return nil, &domain.FitError{Kind: kind, Err: err}
		}
		proba[i] = p
	}
	metrics, err := ml.Evaluate(test.Y, proba, t.cfg.Threshold)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"kind":     kind,
		"roc_auc":  metrics[domain.MetricROCAUC],
		"f1":       metrics[domain.MetricF1],
		"duration": time.Since(start).String(),
	}).Info("Model trained")

	return &domain.ModelRecord{
		Kind:      kind,
		Predictor: est,
		Metrics:   metrics,
		CreatedAt: t.now().UTC(),
	}, nil
}

func requireBothClasses(split string, ds *domain.Dataset) error {
	neg, pos := ds.ClassCounts()
	if neg == 0 || pos == 0 {
		return fmt.Errorf("%w: %s split has %d negative and %d positive rows", domain.ErrSingleClass, split, neg, pos)
	}
	return nil
}
