package kube

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/dynamic/fake"

	"churn-model-service/internal/core/domain"
)

func deployment(namespace, name string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata": map[string]any{
			"name":      name,
			"namespace": namespace,
		},
		"spec": map[string]any{
			"replicas": int64(2),
			"template": map[string]any{
				"metadata": map[string]any{
					"labels": map[string]any{"app": name},
				},
			},
		},
	}}
}

func TestRolloutNotifier_PatchesPodTemplate(t *testing.T) {
	client := fake.NewSimpleDynamicClient(runtime.NewScheme(), deployment("ml", "churn-api"))
	n := NewRolloutNotifierWithClient(client, "ml", "churn-api").(*rolloutNotifier)
	n.now = func() time.Time { return time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC) }

	entry := &domain.RegistryEntry{Name: "logistic_regression_20250504T100000.000000Z"}
	require.NoError(t, n.Notify(context.Background(), entry))

	got, err := client.Resource(deploymentGVR).Namespace("ml").Get(context.Background(), "churn-api", metav1.GetOptions{})
	require.NoError(t, err)

	annotations, found, err := unstructured.NestedStringMap(got.Object, "spec", "template", "metadata", "annotations")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry.Name, annotations[AnnotationPromotedEntry])
	assert.Equal(t, "2025-05-04T10:00:00Z", annotations[AnnotationPromotedAt])

	labels, _, _ := unstructured.NestedStringMap(got.Object, "spec", "template", "metadata", "labels")
	assert.Equal(t, "churn-api", labels["app"])
}

func TestRolloutNotifier_MissingDeployment(t *testing.T) {
	client := fake.NewSimpleDynamicClient(runtime.NewScheme(), deployment("ml", "other"))
	n := NewRolloutNotifierWithClient(client, "ml", "churn-api")

	err := n.Notify(context.Background(), &domain.RegistryEntry{Name: "decision_tree_x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ml/churn-api")
}
