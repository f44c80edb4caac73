package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/core/ports/output"
)

// MockArtifactRegistry is a mock of ArtifactRegistry.
type MockArtifactRegistry struct {
	mock.Mock
}

func (m *MockArtifactRegistry) Record(ctx context.Context, runID string, record *domain.ModelRecord, schema domain.FeatureSchema) (*domain.RegistryEntry, error) {
	args := m.Called(ctx, runID, record, schema)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RegistryEntry), args.Error(1)
}

func (m *MockArtifactRegistry) Promote(ctx context.Context, entry *domain.RegistryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockArtifactRegistry) LoadCurrent(ctx context.Context) (*domain.CurrentModel, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CurrentModel), args.Error(1)
}

func (m *MockArtifactRegistry) Get(ctx context.Context, name string) (*domain.RegistryEntry, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RegistryEntry), args.Error(1)
}

func (m *MockArtifactRegistry) List(ctx context.Context) ([]*domain.RegistryEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.RegistryEntry), args.Error(1)
}

func (m *MockArtifactRegistry) Remove(ctx context.Context, entry *domain.RegistryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// MockModelLoader is a mock of CurrentModelLoader.
type MockModelLoader struct {
	mock.Mock
}

func (m *MockModelLoader) LoadCurrent(ctx context.Context) (*domain.CurrentModel, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CurrentModel), args.Error(1)
}

// MockRunStore is a mock of RunStore.
type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) Save(ctx context.Context, run *domain.TrainingRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunStore) List(ctx context.Context, limit int) ([]*domain.TrainingRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TrainingRun), args.Error(1)
}

func (m *MockRunStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockReloadNotifier is a mock of ReloadNotifier.
type MockReloadNotifier struct {
	mock.Mock
}

func (m *MockReloadNotifier) Notify(ctx context.Context, entry *domain.RegistryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// MockEstimatorFactory is a mock of EstimatorFactory.
type MockEstimatorFactory struct {
	mock.Mock
}

func (m *MockEstimatorFactory) New(kind domain.ModelKind) (ports.Estimator, error) {
	args := m.Called(kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.Estimator), args.Error(1)
}

// StubEstimator scores a row with Score, or with its first feature when Score
// is nil. FitErr makes Fit fail.
type StubEstimator struct {
	ModelKind domain.ModelKind
	Score     func(x []float64) float64
	FitErr    error

	Width  int
	Fitted bool
}

func (s *StubEstimator) Kind() domain.ModelKind { return s.ModelKind }

func (s *StubEstimator) NumFeatures() int { return s.Width }

func (s *StubEstimator) Fit(X [][]float64, y []int) error {
	if s.FitErr != nil {
		return s.FitErr
	}
	if len(X) > 0 {
		s.Width = len(X[0])
	}
	s.Fitted = true
	return nil
}

func (s *StubEstimator) PredictProba(x []float64) (float64, error) {
	if !s.Fitted {
		return 0, domain.ErrNotFitted
	}
	if s.Score != nil {
		return s.Score(x), nil
	}
	return x[0], nil
}
