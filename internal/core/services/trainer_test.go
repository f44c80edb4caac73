package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/testutil"
)

// churnDataset has n rows; the first column equals the label scaled into
// (0,1), so an estimator scoring by that column ranks perfectly.
func churnDataset(t *testing.T, n, positives int) *domain.Dataset {
	t.Helper()
	schema, err := domain.NewFeatureSchema([]string{"thumbs_down", "sessions"})
	require.NoError(t, err)
	ds := &domain.Dataset{Schema: schema}
	for i := 0; i < n; i++ {
		label := 0
		if i < positives {
			label = 1
		}
		ds.X = append(ds.X, []float64{0.2 + 0.6*float64(label), float64(i % 7)})
		ds.Y = append(ds.Y, label)
	}
	return ds
}

func stubFactory(scores map[domain.ModelKind]func([]float64) float64) *testutil.MockEstimatorFactory {
	f := new(testutil.MockEstimatorFactory)
	for _, kind := range domain.AllModelKinds {
		f.On("New", kind).Return(&testutil.StubEstimator{ModelKind: kind, Score: scores[kind]}, nil).Maybe()
	}
	return f
}

func reversed(x []float64) float64 { return 1 - x[0] }

func TestTrainer_OneRecordPerKind(t *testing.T) {
	cfg := DefaultTrainerConfig()
	trainer, err := NewTrainer(cfg, stubFactory(nil))
	require.NoError(t, err)

	records, err := trainer.Train(context.Background(), churnDataset(t, 100, 30))
	require.NoError(t, err)
	require.Len(t, records, len(cfg.Kinds))

	for i, r := range records {
		assert.Equal(t, cfg.Kinds[i], r.Kind)
		for _, name := range domain.RequiredMetrics {
			v, ok := r.Metrics[name]
			require.True(t, ok, "metric %s missing", name)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		assert.InDelta(t, 1.0, r.ROCAUC(), 1e-9)
		assert.InDelta(t, 0.3, r.Metrics[domain.MetricPositiveRate], 1e-9)
		assert.False(t, r.CreatedAt.IsZero())
	}
}

func TestTrainer_ReproducibleSplit(t *testing.T) {
	scores := map[domain.ModelKind]func([]float64) float64{
		domain.ModelKindLogisticRegression: func(x []float64) float64 { return x[1] / 7 },
	}
	cfg := DefaultTrainerConfig()
	cfg.Kinds = []domain.ModelKind{domain.ModelKindLogisticRegression}

	a, err := NewTrainer(cfg, stubFactory(scores))
	require.NoError(t, err)
	b, err := NewTrainer(cfg, stubFactory(scores))
	require.NoError(t, err)

	ra, err := a.Train(context.Background(), churnDataset(t, 120, 40))
	require.NoError(t, err)
	rb, err := b.Train(context.Background(), churnDataset(t, 120, 40))
	require.NoError(t, err)
	assert.Equal(t, ra[0].Metrics, rb[0].Metrics)
}

func TestTrainer_SingleClassInSplit(t *testing.T) {
	trainer, err := NewTrainer(DefaultTrainerConfig(), stubFactory(nil))
	require.NoError(t, err)

	_, err = trainer.Train(context.Background(), churnDataset(t, 50, 0))
	assert.ErrorIs(t, err, domain.ErrSingleClass)
	assert.ErrorIs(t, err, domain.ErrData)

	// one positive row cannot land in both partitions
	_, err = trainer.Train(context.Background(), churnDataset(t, 50, 1))
	assert.ErrorIs(t, err, domain.ErrSingleClass)
}

func TestTrainer_DataErrorsBeforeFit(t *testing.T) {
	factory := new(testutil.MockEstimatorFactory)
	trainer, err := NewTrainer(DefaultTrainerConfig(), factory)
	require.NoError(t, err)

	ds := churnDataset(t, 20, 10)
	ds.Y[3] = 7
	_, err = trainer.Train(context.Background(), ds)
	assert.ErrorIs(t, err, domain.ErrInvalidLabel)

	_, err = trainer.Train(context.Background(), &domain.Dataset{Schema: ds.Schema})
	assert.ErrorIs(t, err, domain.ErrEmptyDataset)

	factory.AssertNotCalled(t, "New", mock.Anything)
}

func TestTrainer_FitErrorAbortsRun(t *testing.T) {
	factory := new(testutil.MockEstimatorFactory)
	factory.On("New", domain.ModelKindLogisticRegression).Return(&testutil.StubEstimator{ModelKind: domain.ModelKindLogisticRegression}, nil)
	factory.On("New", domain.ModelKindRandomForest).Return(&testutil.StubEstimator{ModelKind: domain.ModelKindRandomForest, FitErr: errors.New("singular matrix")}, nil)

	cfg := DefaultTrainerConfig()
	cfg.Kinds = []domain.ModelKind{domain.ModelKindLogisticRegression, domain.ModelKindRandomForest, domain.ModelKindDecisionTree}
	trainer, err := NewTrainer(cfg, factory)
	require.NoError(t, err)

	records, err := trainer.Train(context.Background(), churnDataset(t, 60, 20))
	assert.Nil(t, records)
	var fitErr *domain.FitError
	require.ErrorAs(t, err, &fitErr)
	assert.Equal(t, domain.ModelKindRandomForest, fitErr.Kind)
	factory.AssertNotCalled(t, "New", domain.ModelKindDecisionTree)
}

func TestNewTrainer_Validation(t *testing.T) {
	cfg := DefaultTrainerConfig()
	cfg.Kinds = nil
	_, err := NewTrainer(cfg, stubFactory(nil))
	assert.Error(t, err)

	cfg = DefaultTrainerConfig()
	cfg.TestSize = 1
	_, err = NewTrainer(cfg, stubFactory(nil))
	assert.Error(t, err)

	cfg = DefaultTrainerConfig()
	cfg.Kinds = []domain.ModelKind{domain.ModelKindDecisionTree, domain.ModelKindDecisionTree}
	_, err = NewTrainer(cfg, stubFactory(nil))
	assert.Error(t, err)
}
