package kube

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"churn-model-service/internal/config"
	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/core/ports/output"
)

// Pod template annotations written on every promotion. Changing them makes
// the Deployment controller roll the inference pods, which load the new model
// on start.
const (
	AnnotationPromotedEntry = "churn.io/promoted-entry"
	AnnotationPromotedAt    = "churn.io/promoted-at"
)

var deploymentGVR = schema.GroupVersionResource{
	Group:    "apps",
	Version:  "v1",
	Resource: "deployments",
}

type rolloutNotifier struct {
	client     dynamic.Interface
	namespace  string
	deployment string
	now        func() time.Time
}

// NewRolloutNotifier builds a notifier that restarts the inference Deployment
// named in cfg after each promotion.
func NewRolloutNotifier(cfg *config.KubernetesConfig) (ports.ReloadNotifier, error) {
	var restCfg *rest.Config
	var err error

	if cfg.InCluster {
		restCfg, err = rest.InClusterConfig()
	} else if cfg.KubeConfigPath != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.KubeConfigPath)
	} else {
		home, _ := os.UserHomeDir()
		restCfg, err = clientcmd.BuildConfigFromFlags("", filepath.Join(home, ".kube", "config"))
	}
	if err != nil {
		return nil, fmt.Errorf("build k8s config: %w", err)
	}

	client, err := dynamic.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create dynamic client: %w", err)
	}
	return NewRolloutNotifierWithClient(client, cfg.DefaultNS, cfg.Deployment), nil
}

// NewRolloutNotifierWithClient uses an existing dynamic client.
func NewRolloutNotifierWithClient(client dynamic.Interface, namespace, deployment string) ports.ReloadNotifier {
	if namespace == "" {
		namespace = "default"
	}
	return &rolloutNotifier{
		client:     client,
		namespace:  namespace,
		deployment: deployment,
		now:        time.Now,
	}
}

func (n *rolloutNotifier) Notify(ctx context.Context, entry *domain.RegistryEntry) error {
	patch := map[string]any{
		"spec": map[string]any{
			"template": map[string]any{
				"metadata": map[string]any{
					"annotations": map[string]string{
						AnnotationPromotedEntry: entry.Name,
						AnnotationPromotedAt:    n.now().UTC().Format(time.RFC3339),
					},
				},
			},
		},
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal rollout patch: %w", err)
	}

	_, err = n.client.Resource(deploymentGVR).
		Namespace(n.namespace).
		Patch(ctx, n.deployment, types.MergePatchType, body, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("patch deployment %s/%s: %w", n.namespace, n.deployment, err)
	}

	log.WithFields(log.Fields{
		"namespace":  n.namespace,
		"deployment": n.deployment,
		"entry":      entry.Name,
	}).Info("Inference deployment rollout triggered")
	return nil
}
