package ports

import (
	"context"

	"churn-model-service/internal/core/domain"
)

type RunStore interface {
	Save(ctx context.Context, run *domain.TrainingRun) error
	List(ctx context.Context, limit int) ([]*domain.TrainingRun, error)
	Close() error
}

// ReloadNotifier tells running inference services that a new model was promoted.
type ReloadNotifier interface {
	Notify(ctx context.Context, entry *domain.RegistryEntry) error
}
