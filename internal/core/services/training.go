package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/core/ports/output"
)

// TrainingService runs one end-to-end pipeline execution:
// train, select, record every kind, gate, promote, then save history and notify.
type TrainingService struct {
	trainer   *Trainer
	selector  *Selector
	registry  ports.ArtifactRegistry
	gate      *PromotionGate
	runs      ports.RunStore
	notifiers []ports.ReloadNotifier
	now       func() time.Time
}

func NewTrainingService(
	trainer *Trainer,
	selector *Selector,
	registry ports.ArtifactRegistry,
	gate *PromotionGate,
	runs ports.RunStore,
	notifiers ...ports.ReloadNotifier,
) *TrainingService {
	return &TrainingService{
		trainer:   trainer,
		selector:  selector,
		registry:  registry,
		gate:      gate,
		runs:      runs,
		notifiers: notifiers,
		now:       time.Now,
	}
}

type RunResult struct {
	Run     *domain.TrainingRun
	Best    *domain.RegistryEntry
	Entries []*domain.RegistryEntry
}

// Run executes the pipeline. Any error after entries were recorded removes
// them again, so a failed run leaves no registry writes behind. A run rejected
// by the promotion gate keeps its entries and returns ErrPromotionRejected.
func (s *TrainingService) Run(ctx context.Context, ds *domain.Dataset) (*RunResult, error) {
	started := s.now().UTC()
	run := &domain.TrainingRun{
		ID:        uuid.New(),
		RunID:     domain.NewRunID(started),
		StartedAt: started,
		Results:   map[domain.ModelKind]domain.Metrics{},
	}
	logger := log.WithFields(log.Fields{"run_id": run.RunID, "run_uuid": run.ID.String()})
	logger.Info("Training run started")

	result, err := s.run(ctx, ds, run, logger)
	run.FinishedAt = s.now().UTC()
	switch {
	case err == nil:
		run.Status = domain.RunStatusSucceeded
	case errors.Is(err, domain.ErrPromotionRejected):
		run.Status = domain.RunStatusRejected
		run.Error = err.Error()
	default:
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
	}
	s.saveRun(ctx, run, logger)

	if err != nil {
		logger.WithError(err).WithField("status", run.Status).Error("Training run did not promote a model")
		return &RunResult{Run: run, Entries: result.Entries}, err
	}

	s.notify(ctx, result.Best, logger)
	logger.WithFields(log.Fields{
		"best":     result.Best.Name,
		"duration": run.FinishedAt.Sub(run.StartedAt).String(),
	}).Info("Training run finished")
	result.Run = run
	return result, nil
}

func (s *TrainingService) run(ctx context.Context, ds *domain.Dataset, run *domain.TrainingRun, logger *log.Entry) (*RunResult, error) {
	result := &RunResult{}

	records, err := s.trainer.Train(ctx, ds)
	if err != nil {
		return result, err
	}
	for _, rec := range records {
		run.Results[rec.Kind] = rec.Metrics.Clone()
	}

	best, err := s.selector.Select(records)
	if err != nil {
		return result, err
	}
	run.BestKind = best.Kind
	logger.WithFields(log.Fields{"kind": best.Kind, "roc_auc": best.ROCAUC()}).Info("Best model selected")

	var bestEntry *domain.RegistryEntry
	for _, rec := range records {
		entry, err := s.registry.Record(ctx, run.RunID, rec, ds.Schema)
		if err != nil {
			s.rollback(ctx, result.Entries, logger)
			result.Entries = nil
			return result, fmt.Errorf("record %s: %w", rec.Kind, err)
		}
		result.Entries = append(result.Entries, entry)
		if rec == best {
			bestEntry = entry
		}
	}
	run.BestEntry = bestEntry.Name

	allowed, err := s.gate.Allow(best)
	if err != nil {
		s.rollback(ctx, result.Entries, logger)
		result.Entries = nil
		return result, err
	}
	if !allowed {
		return result, fmt.Errorf("%w: %s failed %q", domain.ErrPromotionRejected, bestEntry.Name, s.gate.String())
	}

	if err := s.registry.Promote(ctx, bestEntry); err != nil {
		s.rollback(ctx, result.Entries, logger)
		result.Entries = nil
		return result, err
	}
	result.Best = bestEntry
	return result, nil
}

func (s *TrainingService) rollback(ctx context.Context, entries []*domain.RegistryEntry, logger *log.Entry) {
	for _, e := range entries {
		if err := s.registry.Remove(ctx, e); err != nil {
			logger.WithError(err).WithField("entry", e.Name).Warn("Failed to remove entry of failed run")
		}
	}
}

func (s *TrainingService) saveRun(ctx context.Context, run *domain.TrainingRun, logger *log.Entry) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Save(ctx, run); err != nil {
		logger.WithError(err).Warn("Failed to save training run history")
	}
}

func (s *TrainingService) notify(ctx context.Context, entry *domain.RegistryEntry, logger *log.Entry) {
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, entry); err != nil {
			logger.WithError(err).Warn("Reload notification failed")
		}
	}
}

// Promote makes an existing entry current outside of a training run, e.g. for a manual rollback.
func (s *TrainingService) Promote(ctx context.Context, name string) (*domain.RegistryEntry, error) {
	entry, err := s.registry.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.registry.Promote(ctx, entry); err != nil {
		return nil, err
	}
	s.notify(ctx, entry, log.WithField("entry", entry.Name))
	return entry, nil
}

// History lists the most recent training runs, newest first.
func (s *TrainingService) History(ctx context.Context, limit int) ([]*domain.TrainingRun, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.List(ctx, limit)
}
