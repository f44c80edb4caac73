package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"churn-model-service/internal/adapters/primary/http/middleware"
	"churn-model-service/internal/auth"
	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/core/services"
	"churn-model-service/internal/testutil"
)

func currentModel(t *testing.T, entry string, kind domain.ModelKind) *domain.CurrentModel {
	t.Helper()
	schema, err := domain.NewFeatureSchema([]string{"thumbs_down", "sessions"})
	require.NoError(t, err)
	return &domain.CurrentModel{
		Predictor: &testutil.StubEstimator{ModelKind: kind, Width: 2, Fitted: true},
		Schema:    schema,
		Metrics:   domain.Metrics{domain.MetricROCAUC: 0.91},
		Manifest: domain.Manifest{
			Entry:      entry,
			Kind:       kind,
			RunID:      "20250101T000000.000000Z",
			SHA256:     "sha-" + entry,
			PromotedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Path: "/registry/.generations/g1",
	}
}

type fixture struct {
	loader *testutil.MockModelLoader
	svc    *services.InferenceService
	router *gin.Engine
}

func setupRouter(t *testing.T, signer *auth.Signer, examples *domain.Dataset) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	loader := new(testutil.MockModelLoader)
	svc, err := services.NewInferenceService(loader, services.InferenceConfig{Threshold: 0.5, CacheSize: 8}, examples)
	require.NoError(t, err)

	h := New(svc, middleware.NewMetrics())
	r := gin.New()
	h.RegisterRoutes(&r.RouterGroup, middleware.AdminAuth(signer, auth.SubjectReload))
	return &fixture{loader: loader, svc: svc, router: r}
}

// reloadAs issues a reload token from signer and posts to /admin/reload.
func (f *fixture) reloadAs(t *testing.T, signer *auth.Signer) *httptest.ResponseRecorder {
	t.Helper()
	token, err := signer.Issue(auth.SubjectReload)
	require.NoError(t, err)
	return do(f.router, "POST", "/admin/reload", nil, "Authorization", "Bearer "+token)
}

func testSigner(t *testing.T) *auth.Signer {
	t.Helper()
	signer, err := auth.NewSigner("s3cret", "churn-trainer", time.Minute)
	require.NoError(t, err)
	return signer
}

func (f *fixture) load(t *testing.T, cur *domain.CurrentModel) {
	t.Helper()
	f.loader.On("LoadCurrent", mock.Anything).Return(cur, nil).Once()
	require.NoError(t, f.svc.Load(context.Background()))
}

func do(r *gin.Engine, method, path string, body []byte, headers ...string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRootAndHealth_NoModel(t *testing.T) {
	f := setupRouter(t, nil, nil)

	w := do(f.router, "GET", "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/health", decode(t, w)["health"])

	w = do(f.router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, false, resp["model_loaded"])
	assert.Equal(t, []any{}, resp["expects"])
}

func TestModelEndpoints_NoModel(t *testing.T) {
	f := setupRouter(t, nil, nil)

	w := do(f.router, "GET", "/model/info", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, false, resp["loaded"])
	assert.NotEmpty(t, resp["detail"])

	w = do(f.router, "GET", "/model/schema", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	schema := decode(t, w)
	assert.Equal(t, []any{}, schema["expected_columns"])
	assert.Equal(t, float64(0), schema["count"])

	w = do(f.router, "POST", "/predict", []byte(`{"thumbs_down": 1, "sessions": 2}`))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestModelInfoAndSchema(t *testing.T) {
	f := setupRouter(t, nil, nil)
	f.load(t, currentModel(t, "random_forest_a", domain.ModelKindRandomForest))

	w := do(f.router, "GET", "/model/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode(t, w)
	assert.Equal(t, true, info["loaded"])
	assert.Equal(t, "RandomForestClassifier", info["model_class"])
	assert.Equal(t, "random_forest_a", info["entry"])
	assert.Equal(t, 0.91, info["metrics"].(map[string]any)["roc_auc"])

	w = do(f.router, "GET", "/model/schema", nil)
	require.Equal(t, http.StatusOK, w.Code)
	schema := decode(t, w)
	assert.Equal(t, []any{"thumbs_down", "sessions"}, schema["expected_columns"])
	assert.Equal(t, float64(2), schema["count"])

	w = do(f.router, "GET", "/health", nil)
	assert.Equal(t, true, decode(t, w)["model_loaded"])
}

func TestPredict(t *testing.T) {
	f := setupRouter(t, nil, nil)
	f.load(t, currentModel(t, "logistic_regression_a", domain.ModelKindLogisticRegression))

	w := do(f.router, "POST", "/predict", []byte(`{"sessions": 3, "thumbs_down": 0.75}`))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, 0.75, resp["churn_probability"])
	assert.Equal(t, float64(1), resp["label"])
	assert.Equal(t, 0.5, resp["threshold"])
	assert.Equal(t, "logistic_regression", resp["model_kind"])

	w = do(f.router, "POST", "/predict", []byte(`{"sessions": 3, "thumbs_down": 0.25}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["label"])
}

func TestPredict_SchemaMismatch(t *testing.T) {
	f := setupRouter(t, nil, nil)
	f.load(t, currentModel(t, "logistic_regression_a", domain.ModelKindLogisticRegression))

	w := do(f.router, "POST", "/predict", []byte(`{"sessions": "many", "level": 1}`))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode(t, w)
	assert.Equal(t, []any{"thumbs_down"}, resp["missing"])
	assert.Equal(t, []any{"level"}, resp["unexpected"])
	assert.Equal(t, []any{"sessions"}, resp["invalid"])
	assert.Equal(t, []any{"thumbs_down", "sessions"}, resp["expected_order"])
}

func TestPredict_MalformedBody(t *testing.T) {
	f := setupRouter(t, nil, nil)
	f.load(t, currentModel(t, "logistic_regression_a", domain.ModelKindLogisticRegression))

	for _, body := range []string{`{"sessions": `, `[1, 2]`, ``} {
		w := do(f.router, "POST", "/predict", []byte(body))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestModelExample(t *testing.T) {
	schema, err := domain.NewFeatureSchema([]string{"sessions", "thumbs_down", "userId"})
	require.NoError(t, err)
	examples := &domain.Dataset{Schema: schema, X: [][]float64{{4, 2, 99}}, Y: []int{1}}

	f := setupRouter(t, nil, examples)
	f.load(t, currentModel(t, "decision_tree_a", domain.ModelKindDecisionTree))

	w := do(f.router, "GET", "/model/example?minimal=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "minimal", resp["mode"])
	assert.Equal(t, map[string]any{"thumbs_down": 0.0, "sessions": 0.0}, resp["example"])

	w = do(f.router, "GET", "/model/example?idx=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode(t, w)
	assert.Equal(t, "row", resp["mode"])
	assert.Equal(t, map[string]any{"thumbs_down": 2.0, "sessions": 4.0}, resp["example"])

	w = do(f.router, "GET", "/model/example?idx=5", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(f.router, "GET", "/model/example?minimal=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReload_SwapsModel(t *testing.T) {
	signer := testSigner(t)
	f := setupRouter(t, signer, nil)
	f.load(t, currentModel(t, "logistic_regression_a", domain.ModelKindLogisticRegression))

	f.loader.On("LoadCurrent", mock.Anything).Return(currentModel(t, "random_forest_b", domain.ModelKindRandomForest), nil).Once()
	w := f.reloadAs(t, signer)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "reloaded", resp["status"])
	assert.Equal(t, "random_forest_b", resp["entry"])

	assert.Equal(t, "random_forest_b", f.svc.Current().Manifest.Entry)
}

func TestReload_FailureKeepsModel(t *testing.T) {
	signer := testSigner(t)
	f := setupRouter(t, signer, nil)
	f.load(t, currentModel(t, "logistic_regression_a", domain.ModelKindLogisticRegression))

	f.loader.On("LoadCurrent", mock.Anything).Return(nil, fmt.Errorf("%w: model.bin", domain.ErrCorruptArtifact)).Once()
	w := f.reloadAs(t, signer)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "logistic_regression_a", f.svc.Current().Manifest.Entry)
}

func TestReload_RequiresToken(t *testing.T) {
	signer := testSigner(t)
	f := setupRouter(t, signer, nil)
	f.load(t, currentModel(t, "logistic_regression_a", domain.ModelKindLogisticRegression))

	w := do(f.router, "POST", "/admin/reload", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(f.router, "POST", "/admin/reload", nil, "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	f.loader.On("LoadCurrent", mock.Anything).Return(currentModel(t, "decision_tree_b", domain.ModelKindDecisionTree), nil).Once()
	w = f.reloadAs(t, signer)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReload_DisabledWithoutSecret(t *testing.T) {
	f := setupRouter(t, nil, nil)
	f.load(t, currentModel(t, "logistic_regression_a", domain.ModelKindLogisticRegression))

	w := f.reloadAs(t, testSigner(t))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "logistic_regression_a", f.svc.Current().Manifest.Entry)
	f.loader.AssertNumberOfCalls(t, "LoadCurrent", 1)
}
