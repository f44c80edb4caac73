package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"churn-model-service/internal/bootstrap"
	"churn-model-service/internal/config"
	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/dataset"
	"churn-model-service/internal/logger"
)

// Exit codes: 0 promoted, 1 failed, 2 rejected by the promotion gate.
const (
	exitFailed   = 1
	exitRejected = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Errorf("load config: %v", err)
		return exitFailed
	}

	closer := logger.Init(cfg.Logger)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ds, err := dataset.LoadFile(cfg.Training.DatasetPath, bootstrap.DatasetOptions(cfg))
	if err != nil {
		log.WithError(err).Error("Failed to load training dataset")
		return exitFailed
	}

	registry, err := bootstrap.Registry(cfg)
	if err != nil {
		log.WithError(err).Error("Failed to open registry")
		return exitFailed
	}
	svc, closeRuns, err := bootstrap.TrainingService(ctx, cfg, registry)
	if err != nil {
		log.WithError(err).Error("Failed to build training pipeline")
		return exitFailed
	}
	defer closeRuns()

	result, err := svc.Run(ctx, ds)
	switch {
	case errors.Is(err, domain.ErrPromotionRejected):
		log.WithFields(log.Fields{
			"run_id":    result.Run.RunID,
			"best_kind": result.Run.BestKind,
			"gate":      cfg.Training.PromotionGate,
		}).Warn("Training finished; selected model rejected by promotion gate")
		return exitRejected
	case err != nil:
		log.WithError(err).Error("Training run failed")
		return exitFailed
	}

	for _, kind := range result.Run.Kinds() {
		m := result.Run.Results[kind]
		log.WithFields(log.Fields{
			"kind":              kind,
			"roc_auc":           m[domain.MetricROCAUC],
			"average_precision": m[domain.MetricAveragePrecision],
			"f1":                m[domain.MetricF1],
		}).Info("Model evaluated")
	}
	log.WithFields(log.Fields{
		"run_id": result.Run.RunID,
		"entry":  result.Best.Name,
		"path":   result.Best.Path,
	}).Info("Training finished; best model promoted")
	return 0
}
