package fsregistry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/ml"
)

var ctx = context.Background()

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(t.TempDir(), ml.GobCodec{})
	require.NoError(t, err)
	return r
}

func testSchema(t *testing.T) domain.FeatureSchema {
	t.Helper()
	s, err := domain.NewFeatureSchema([]string{"sessions", "thumbs_down"})
	require.NoError(t, err)
	return s
}

// fittedRecord fits a small tree whose split depends on shift, so records
// built with different shifts serialise differently.
func fittedRecord(t *testing.T, shift float64) *domain.ModelRecord {
	t.Helper()
	X := [][]float64{{0, shift}, {1, shift}, {2, shift + 1}, {3, shift + 1}, {4, shift}, {5, shift + 2}}
	y := []int{0, 0, 1, 1, 0, 1}
	tree := &ml.DecisionTree{}
	require.NoError(t, tree.Fit(X, y))
	return &domain.ModelRecord{
		Kind:      domain.ModelKindDecisionTree,
		Predictor: tree,
		Metrics:   domain.Metrics{domain.MetricROCAUC: 0.75 + shift/100, domain.MetricF1: 0.5},
		CreatedAt: time.Now().UTC(),
	}
}

func runID(offset time.Duration) string {
	return domain.NewRunID(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).Add(offset))
}

func TestRecord_WritesEntry(t *testing.T) {
	r := newRegistry(t)
	rec := fittedRecord(t, 0)

	entry, err := r.Record(ctx, runID(0), rec, testSchema(t))
	require.NoError(t, err)
	assert.Equal(t, "decision_tree_20250301T120000.000000Z", entry.Name)
	for _, f := range []string{ModelFile, MetricsFile, SchemaFile} {
		assert.FileExists(t, filepath.Join(entry.Path, f))
	}

	got, err := r.Get(ctx, entry.Name)
	require.NoError(t, err)
	assert.Equal(t, domain.ModelKindDecisionTree, got.Kind)
	assert.Equal(t, rec.Metrics, got.Metrics)

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, entry.Name, list[0].Name)
}

func TestRecord_NeverOverwrites(t *testing.T) {
	r := newRegistry(t)
	rec := fittedRecord(t, 0)
	entry, err := r.Record(ctx, runID(0), rec, testSchema(t))
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(entry.Path, ModelFile))
	require.NoError(t, err)

	_, err = r.Record(ctx, runID(0), fittedRecord(t, 5), testSchema(t))
	assert.ErrorIs(t, err, domain.ErrEntryExists)

	after, err := os.ReadFile(filepath.Join(entry.Path, ModelFile))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRecord_SchemaWidthMismatch(t *testing.T) {
	r := newRegistry(t)
	schema, err := domain.NewFeatureSchema([]string{"only_one"})
	require.NoError(t, err)

	_, err = r.Record(ctx, runID(0), fittedRecord(t, 0), schema)
	assert.ErrorIs(t, err, domain.ErrFeatureCount)
}

func TestRecord_AppendOnlyAcrossRuns(t *testing.T) {
	r := newRegistry(t)
	first, err := r.Record(ctx, runID(0), fittedRecord(t, 0), testSchema(t))
	require.NoError(t, err)
	firstModel, err := os.ReadFile(filepath.Join(first.Path, ModelFile))
	require.NoError(t, err)
	require.NoError(t, r.Promote(ctx, first))

	second, err := r.Record(ctx, runID(time.Microsecond), fittedRecord(t, 3), testSchema(t))
	require.NoError(t, err)
	require.NoError(t, r.Promote(ctx, second))

	assert.NotEqual(t, first.Name, second.Name)
	stillThere, err := os.ReadFile(filepath.Join(first.Path, ModelFile))
	require.NoError(t, err)
	assert.Equal(t, firstModel, stillThere)

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.Name, list[0].Name)
	assert.Equal(t, second.Name, list[1].Name)
}

func TestLoadCurrent_NotFound(t *testing.T) {
	r := newRegistry(t)
	_, err := r.LoadCurrent(ctx)
	assert.ErrorIs(t, err, domain.ErrCurrentNotFound)
}

func TestPromote_RoundTrip(t *testing.T) {
	r := newRegistry(t)
	schema := testSchema(t)
	rec := fittedRecord(t, 0)
	entry, err := r.Record(ctx, runID(0), rec, schema)
	require.NoError(t, err)
	staged, err := os.ReadFile(filepath.Join(entry.Path, ModelFile))
	require.NoError(t, err)

	require.NoError(t, r.Promote(ctx, entry))

	cur, err := r.LoadCurrent(ctx)
	require.NoError(t, err)
	assert.True(t, schema.Equal(cur.Schema))
	assert.Equal(t, rec.Metrics, cur.Metrics)
	assert.Equal(t, entry.Name, cur.Manifest.Entry)
	assert.Equal(t, entry.RunID, cur.Manifest.RunID)
	assert.Equal(t, domain.ModelKindDecisionTree, cur.Manifest.Kind)

	reencoded, err := ml.GobCodec{}.Encode(cur.Predictor)
	require.NoError(t, err)
	assert.Equal(t, staged, reencoded)

	served, err := os.ReadFile(filepath.Join(r.root, bestLink, ModelFile))
	require.NoError(t, err)
	assert.Equal(t, staged, served)

	inputSchema, err := os.ReadFile(filepath.Join(r.root, InputSchemaFile))
	require.NoError(t, err)
	assert.JSONEq(t, `["sessions","thumbs_down"]`, string(inputSchema))
}

func TestPromote_FaultBeforeSwapKeepsPrevious(t *testing.T) {
	r := newRegistry(t)
	first, err := r.Record(ctx, runID(0), fittedRecord(t, 0), testSchema(t))
	require.NoError(t, err)
	require.NoError(t, r.Promote(ctx, first))
	gensBefore, err := os.ReadDir(filepath.Join(r.root, generationsDir))
	require.NoError(t, err)

	second, err := r.Record(ctx, runID(time.Second), fittedRecord(t, 3), testSchema(t))
	require.NoError(t, err)

	r.beforeSwap = func() error { return errors.New("disk full") }
	err = r.Promote(ctx, second)
	var perr *domain.PromotionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "swap", perr.Stage)

	cur, err := r.LoadCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Name, cur.Manifest.Entry)

	gensAfter, err := os.ReadDir(filepath.Join(r.root, generationsDir))
	require.NoError(t, err)
	assert.Len(t, gensAfter, len(gensBefore))
}

func TestPromote_FaultWithoutPrevious(t *testing.T) {
	r := newRegistry(t)
	entry, err := r.Record(ctx, runID(0), fittedRecord(t, 0), testSchema(t))
	require.NoError(t, err)

	r.beforeSwap = func() error { return errors.New("crash") }
	require.Error(t, r.Promote(ctx, entry))

	_, err = r.LoadCurrent(ctx)
	assert.ErrorIs(t, err, domain.ErrCurrentNotFound)
}

func TestPromote_PrunesOldGenerations(t *testing.T) {
	r := newRegistry(t)
	for i := 0; i < 4; i++ {
		entry, err := r.Record(ctx, runID(time.Duration(i)*time.Second), fittedRecord(t, float64(i)), testSchema(t))
		require.NoError(t, err)
		require.NoError(t, r.Promote(ctx, entry))
	}
	gens, err := os.ReadDir(filepath.Join(r.root, generationsDir))
	require.NoError(t, err)
	assert.Len(t, gens, 2)

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 4)
}

func TestPromote_MissingEntry(t *testing.T) {
	r := newRegistry(t)
	err := r.Promote(ctx, &domain.RegistryEntry{Name: "random_forest_" + runID(0)})
	var perr *domain.PromotionError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)
}

func TestLoadCurrent_DetectsCorruption(t *testing.T) {
	r := newRegistry(t)
	entry, err := r.Record(ctx, runID(0), fittedRecord(t, 0), testSchema(t))
	require.NoError(t, err)
	require.NoError(t, r.Promote(ctx, entry))

	modelPath := filepath.Join(r.root, bestLink, ModelFile)
	require.NoError(t, os.WriteFile(modelPath, []byte("tampered"), 0o644))

	_, err = r.LoadCurrent(ctx)
	assert.ErrorIs(t, err, domain.ErrCorruptArtifact)
}

func TestRemove(t *testing.T) {
	r := newRegistry(t)
	promoted, err := r.Record(ctx, runID(0), fittedRecord(t, 0), testSchema(t))
	require.NoError(t, err)
	require.NoError(t, r.Promote(ctx, promoted))
	failed, err := r.Record(ctx, runID(time.Second), fittedRecord(t, 1), testSchema(t))
	require.NoError(t, err)

	require.NoError(t, r.Remove(ctx, failed))
	_, err = r.Get(ctx, failed.Name)
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)

	assert.Error(t, r.Remove(ctx, promoted))
	_, err = r.Get(ctx, promoted.Name)
	assert.NoError(t, err)
}

func TestNew_CleansStaleStaging(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, bestTmpPrefix+"123"), nil, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, stagingPrefix+"decision_tree_x-1"), 0o755))

	_, err := New(root, ml.GobCodec{})
	require.NoError(t, err)

	items, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, it := range items {
		assert.NotContains(t, it.Name(), ".tmp-")
		assert.NotContains(t, it.Name(), stagingPrefix)
	}
}

func TestPromote_SyncFailureAfterSwapKeepsNewModel(t *testing.T) {
	r := newRegistry(t)
	first, err := r.Record(ctx, runID(0), fittedRecord(t, 0), testSchema(t))
	require.NoError(t, err)
	require.NoError(t, r.Promote(ctx, first))

	second, err := r.Record(ctx, runID(time.Second), fittedRecord(t, 3), testSchema(t))
	require.NoError(t, err)

	r.syncRoot = func(string) error { return errors.New("fsync: input/output error") }
	require.NoError(t, r.Promote(ctx, second))

	cur, err := r.LoadCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Name, cur.Manifest.Entry)
}

func TestRecord_SyncFailureReturnsEntry(t *testing.T) {
	r := newRegistry(t)
	r.syncRoot = func(string) error { return errors.New("fsync: input/output error") }

	entry, err := r.Record(ctx, runID(0), fittedRecord(t, 0), testSchema(t))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.FileExists(t, filepath.Join(entry.Path, ModelFile))

	require.NoError(t, r.Remove(ctx, entry))
	_, err = r.Get(ctx, entry.Name)
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)
}
