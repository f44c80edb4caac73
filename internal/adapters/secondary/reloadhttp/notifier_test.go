package reloadhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churn-model-service/internal/auth"
	"churn-model-service/internal/core/domain"
)

func reloadServer(t *testing.T, signer *auth.Signer, status int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ReloadPath, r.URL.Path)
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if _, err := signer.Verify(token, auth.SubjectReload); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"status":"reloaded"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNotifier_PostsToEveryURL(t *testing.T) {
	signer, err := auth.NewSigner("s3cret", "churn-trainer", time.Minute)
	require.NoError(t, err)

	var hits atomic.Int32
	a := reloadServer(t, signer, http.StatusOK, &hits)
	b := reloadServer(t, signer, http.StatusOK, &hits)

	n := NewNotifier([]string{a.URL, b.URL + "/"}, signer, time.Second)
	err = n.Notify(context.Background(), &domain.RegistryEntry{Name: "random_forest_20250101T000000.000000Z"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestNotifier_ReportsFailures(t *testing.T) {
	signer, err := auth.NewSigner("s3cret", "churn-trainer", time.Minute)
	require.NoError(t, err)
	wrong, err := auth.NewSigner("other", "churn-trainer", time.Minute)
	require.NoError(t, err)

	var hits atomic.Int32
	ok := reloadServer(t, signer, http.StatusOK, &hits)
	unavailable := reloadServer(t, signer, http.StatusServiceUnavailable, &hits)
	strict := reloadServer(t, wrong, http.StatusOK, &hits)

	n := NewNotifier([]string{ok.URL, unavailable.URL, strict.URL}, signer, time.Second)
	err = n.Notify(context.Background(), &domain.RegistryEntry{Name: "decision_tree_x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, int32(3), hits.Load())
}
