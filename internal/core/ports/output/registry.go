package ports

import (
	"context"

	"churn-model-service/internal/core/domain"
)

// ArtifactRegistry persists trained artifacts and owns the current-model slot.
// Record and Promote assume a single writer; LoadCurrent may run concurrently
// with any number of other readers and with an in-flight Promote.
type ArtifactRegistry interface {
	Record(ctx context.Context, runID string, record *domain.ModelRecord, schema domain.FeatureSchema) (*domain.RegistryEntry, error)
	Promote(ctx context.Context, entry *domain.RegistryEntry) error
	LoadCurrent(ctx context.Context) (*domain.CurrentModel, error)
	Get(ctx context.Context, name string) (*domain.RegistryEntry, error)
	List(ctx context.Context) ([]*domain.RegistryEntry, error)
	// Remove deletes an entry written by a run that then failed.
	Remove(ctx context.Context, entry *domain.RegistryEntry) error
}

// CurrentModelLoader is the read side used by the inference service.
type CurrentModelLoader interface {
	LoadCurrent(ctx context.Context) (*domain.CurrentModel, error)
}

// PredictorCodec turns fitted predictors into opaque model.bin bytes and back.
type PredictorCodec interface {
	Encode(p domain.Predictor) ([]byte, error)
	Decode(data []byte) (domain.Predictor, error)
}
