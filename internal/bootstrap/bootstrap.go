// Package bootstrap builds the adapters shared by the server, trainer and
// registryctl binaries from a loaded configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"churn-model-service/internal/adapters/secondary/fsregistry"
	"churn-model-service/internal/adapters/secondary/kube"
	"churn-model-service/internal/adapters/secondary/postgres"
	"churn-model-service/internal/adapters/secondary/reloadhttp"
	"churn-model-service/internal/adapters/secondary/sqlite"
	"churn-model-service/internal/auth"
	"churn-model-service/internal/config"
	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/core/ports/output"
	"churn-model-service/internal/core/services"
	"churn-model-service/internal/dataset"
	"churn-model-service/internal/ml"
)

func Registry(cfg *config.Config) (*fsregistry.Registry, error) {
	return fsregistry.New(cfg.Registry.Root, ml.GobCodec{})
}

// RunStore opens the configured history backend. Driver "none" returns nil,
// which the training service treats as history disabled.
func RunStore(ctx context.Context, cfg *config.Config) (ports.RunStore, error) {
	switch cfg.RunStore.Driver {
	case "", "none":
		log.Info("Run history disabled")
		return nil, nil
	case "sqlite":
		return sqlite.NewRunStore(cfg.RunStore.SQLitePath)
	case "postgres":
		if cfg.RunStore.PostgresDSN == "" {
			return nil, fmt.Errorf("RUNSTORE_POSTGRES_DSN is required for the postgres driver")
		}
		return postgres.NewRunStore(ctx, cfg.RunStore.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown run store driver %q", cfg.RunStore.Driver)
	}
}

// AdminSigner returns nil when no admin secret is configured.
func AdminSigner(cfg *config.Config) (*auth.Signer, error) {
	if cfg.Admin.JWTSecret == "" {
		return nil, nil
	}
	return auth.NewSigner(cfg.Admin.JWTSecret, cfg.Admin.JWTIssuer, cfg.Admin.TokenTTL)
}

// ReloadNotifiers builds the post-promotion hooks. Notifiers that cannot be
// initialised are logged and skipped; promotion never depends on them.
func ReloadNotifiers(cfg *config.Config) []ports.ReloadNotifier {
	var notifiers []ports.ReloadNotifier

	if cfg.Kubernetes.Enabled {
		n, err := kube.NewRolloutNotifier(&cfg.Kubernetes)
		if err != nil {
			log.Warnf("Kubernetes rollout notifier init failed (continuing without it): %v", err)
		} else {
			notifiers = append(notifiers, n)
			log.WithField("deployment", cfg.Kubernetes.Deployment).Info("Kubernetes rollout notifier initialized")
		}
	}

	if len(cfg.Notify.ReloadURLs) > 0 {
		signer, err := AdminSigner(cfg)
		switch {
		case err != nil:
			log.Warnf("HTTP reload notifier init failed (continuing without it): %v", err)
		case signer == nil:
			log.Warn("NOTIFY_RELOAD_URLS set but ADMIN_JWT_SECRET is empty; HTTP reload notifier disabled")
		default:
			notifiers = append(notifiers, reloadhttp.NewNotifier(cfg.Notify.ReloadURLs, signer, cfg.Notify.Timeout))
			log.WithField("urls", cfg.Notify.ReloadURLs).Info("HTTP reload notifier initialized")
		}
	}

	return notifiers
}

func MLParams(cfg *config.Config) ml.Params {
	p := ml.DefaultParams()
	t := cfg.Training
	p.Seed = t.Seed
	p.Balanced = t.ClassBalanced
	p.LogisticC = t.LogisticC
	p.LogisticMaxIter = t.LogisticMaxIter
	p.TreeMaxDepth = t.TreeMaxDepth
	p.ForestTrees = t.ForestTrees
	p.ForestMaxDepth = t.ForestMaxDepth
	p.BoostRounds = t.BoostRounds
	p.BoostLearningRate = t.BoostLearningRate
	p.BoostMaxDepth = t.BoostMaxDepth
	p.BoostSubsample = t.BoostSubsample
	return p
}

func DatasetOptions(cfg *config.Config) dataset.Options {
	opts := dataset.DefaultOptions()
	opts.Label = cfg.Training.LabelColumn
	opts.Drop = cfg.Training.DropColumns
	opts.DropConstant = cfg.Training.DropConstant
	return opts
}

// Examples loads the rows served by /model/example. The label column is
// optional there. A missing or unreadable file only disables row examples.
func Examples(cfg *config.Config) *domain.Dataset {
	path := cfg.Inference.ExamplesPath
	if path == "" {
		path = cfg.Training.DatasetPath
	}
	if path == "" {
		return nil
	}
	opts := DatasetOptions(cfg)
	opts.RequireLabel = false
	opts.DropConstant = false
	ds, err := dataset.LoadFile(path, opts)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("Example rows unavailable; /model/example falls back to zeros")
		return nil
	}
	return ds
}

// TrainingService assembles the pipeline around registry. The returned closer
// releases the run store.
func TrainingService(ctx context.Context, cfg *config.Config, registry ports.ArtifactRegistry) (*services.TrainingService, func(), error) {
	kinds, err := domain.ParseModelKinds(cfg.Training.Kinds)
	if err != nil {
		return nil, nil, fmt.Errorf("training kinds: %w", err)
	}
	priority, err := domain.ParseModelKinds(cfg.Training.Priority)
	if err != nil {
		return nil, nil, fmt.Errorf("training priority: %w", err)
	}

	trainer, err := services.NewTrainer(services.TrainerConfig{
		Kinds:     kinds,
		TestSize:  cfg.Training.TestSize,
		Seed:      cfg.Training.Seed,
		Threshold: cfg.Training.Threshold,
	}, ml.NewFactory(MLParams(cfg)))
	if err != nil {
		return nil, nil, err
	}
	selector, err := services.NewSelector(priority)
	if err != nil {
		return nil, nil, err
	}
	gate, err := services.NewPromotionGate(cfg.Training.PromotionGate)
	if err != nil {
		return nil, nil, err
	}
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	runs, err := RunStore(openCtx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open run store: %w", err)
	}
	closer := func() {
		if runs != nil {
			if err := runs.Close(); err != nil {
				log.WithError(err).Warn("Failed to close run store")
			}
		}
	}

	svc := services.NewTrainingService(trainer, selector, registry, gate, runs, ReloadNotifiers(cfg)...)
	return svc, closer, nil
}
