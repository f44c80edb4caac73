package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Registry   RegistryConfig
	Training   TrainingConfig
	Inference  InferenceConfig
	Admin      AdminConfig
	RunStore   RunStoreConfig
	Kubernetes KubernetesConfig
	Notify     NotifyConfig
	Logger     LoggerConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

type RegistryConfig struct {
	Root string
}

type TrainingConfig struct {
	DatasetPath   string
	LabelColumn   string
	DropColumns   []string
	DropConstant  bool
	TestSize      float64
	Seed          int64
	Threshold     float64
	Kinds         []string
	Priority      []string
	PromotionGate string

	LogisticC         float64
	LogisticMaxIter   int
	TreeMaxDepth      int
	ForestTrees       int
	ForestMaxDepth    int
	BoostRounds       int
	BoostLearningRate float64
	BoostMaxDepth     int
	BoostSubsample    float64
	ClassBalanced     bool
}

type InferenceConfig struct {
	ExamplesPath string
	CacheSize    int
	Threshold    float64
}

type AdminConfig struct {
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration
}

type RunStoreConfig struct {
	Driver      string // sqlite, postgres or none
	SQLitePath  string
	PostgresDSN string
}

type KubernetesConfig struct {
	Enabled        bool
	InCluster      bool
	KubeConfigPath string
	DefaultNS      string
	Deployment     string
}

type NotifyConfig struct {
	ReloadURLs []string
	Timeout    time.Duration
}

type LoggerConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and the environment, in increasing precedence. Keys are flat
// upper-case names such as REGISTRY_ROOT or TRAINING_SEED.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8000)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("REGISTRY_ROOT", "models/artifacts")

	v.SetDefault("TRAINING_DATASET_PATH", "data/processed/features.csv")
	v.SetDefault("TRAINING_LABEL_COLUMN", "churn")
	v.SetDefault("TRAINING_DROP_COLUMNS", "")
	v.SetDefault("TRAINING_DROP_CONSTANT", false)
	v.SetDefault("TRAINING_TEST_SIZE", 0.2)
	v.SetDefault("TRAINING_SEED", 42)
	v.SetDefault("TRAINING_THRESHOLD", 0.5)
	v.SetDefault("TRAINING_KINDS", "logistic_regression,random_forest,decision_tree,gradient_boosted_trees")
	v.SetDefault("TRAINING_PRIORITY", "gradient_boosted_trees,logistic_regression,random_forest,decision_tree")
	v.SetDefault("TRAINING_PROMOTION_GATE", "")
	v.SetDefault("TRAINING_LOGISTIC_C", 1.0)
	v.SetDefault("TRAINING_LOGISTIC_MAX_ITER", 500)
	v.SetDefault("TRAINING_TREE_MAX_DEPTH", 0)
	v.SetDefault("TRAINING_FOREST_TREES", 300)
	v.SetDefault("TRAINING_FOREST_MAX_DEPTH", 0)
	v.SetDefault("TRAINING_BOOST_ROUNDS", 400)
	v.SetDefault("TRAINING_BOOST_LEARNING_RATE", 0.1)
	v.SetDefault("TRAINING_BOOST_MAX_DEPTH", 6)
	v.SetDefault("TRAINING_BOOST_SUBSAMPLE", 0.9)
	v.SetDefault("TRAINING_CLASS_BALANCED", true)

	v.SetDefault("INFERENCE_EXAMPLES_PATH", "")
	v.SetDefault("INFERENCE_CACHE_SIZE", 1024)
	v.SetDefault("INFERENCE_THRESHOLD", 0.5)

	v.SetDefault("ADMIN_JWT_SECRET", "")
	v.SetDefault("ADMIN_JWT_ISSUER", "churn-trainer")
	v.SetDefault("ADMIN_TOKEN_TTL", "5m")

	v.SetDefault("RUNSTORE_DRIVER", "sqlite")
	v.SetDefault("RUNSTORE_SQLITE_PATH", "models/runs.db")
	v.SetDefault("RUNSTORE_POSTGRES_DSN", "")

	v.SetDefault("K8S_ENABLED", false)
	v.SetDefault("K8S_IN_CLUSTER", false)
	v.SetDefault("K8S_KUBECONFIG", "")
	v.SetDefault("K8S_NAMESPACE", "default")
	v.SetDefault("K8S_DEPLOYMENT", "churn-api")

	v.SetDefault("NOTIFY_RELOAD_URLS", "")
	v.SetDefault("NOTIFY_TIMEOUT", "10s")

	v.SetDefault("LOGGER_LEVEL", "info")
	v.SetDefault("LOGGER_FORMAT", "json")
	v.SetDefault("LOGGER_FILE", "")
	v.SetDefault("LOGGER_MAX_SIZE_MB", 100)
	v.SetDefault("LOGGER_MAX_BACKUPS", 3)
	v.SetDefault("LOGGER_MAX_AGE_DAYS", 28)

	// Optional file
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	// Env
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			ShutdownTimeout: duration(v, "SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Registry: RegistryConfig{
			Root: v.GetString("REGISTRY_ROOT"),
		},
		Training: TrainingConfig{
			DatasetPath:       v.GetString("TRAINING_DATASET_PATH"),
			LabelColumn:       v.GetString("TRAINING_LABEL_COLUMN"),
			DropColumns:       list(v, "TRAINING_DROP_COLUMNS"),
			DropConstant:      v.GetBool("TRAINING_DROP_CONSTANT"),
			TestSize:          v.GetFloat64("TRAINING_TEST_SIZE"),
			Seed:              v.GetInt64("TRAINING_SEED"),
			Threshold:         v.GetFloat64("TRAINING_THRESHOLD"),
			Kinds:             list(v, "TRAINING_KINDS"),
			Priority:          list(v, "TRAINING_PRIORITY"),
			PromotionGate:     v.GetString("TRAINING_PROMOTION_GATE"),
			LogisticC:         v.GetFloat64("TRAINING_LOGISTIC_C"),
			LogisticMaxIter:   v.GetInt("TRAINING_LOGISTIC_MAX_ITER"),
			TreeMaxDepth:      v.GetInt("TRAINING_TREE_MAX_DEPTH"),
			ForestTrees:       v.GetInt("TRAINING_FOREST_TREES"),
			ForestMaxDepth:    v.GetInt("TRAINING_FOREST_MAX_DEPTH"),
			BoostRounds:       v.GetInt("TRAINING_BOOST_ROUNDS"),
			BoostLearningRate: v.GetFloat64("TRAINING_BOOST_LEARNING_RATE"),
			BoostMaxDepth:     v.GetInt("TRAINING_BOOST_MAX_DEPTH"),
			BoostSubsample:    v.GetFloat64("TRAINING_BOOST_SUBSAMPLE"),
			ClassBalanced:     v.GetBool("TRAINING_CLASS_BALANCED"),
		},
		Inference: InferenceConfig{
			ExamplesPath: v.GetString("INFERENCE_EXAMPLES_PATH"),
			CacheSize:    v.GetInt("INFERENCE_CACHE_SIZE"),
			Threshold:    v.GetFloat64("INFERENCE_THRESHOLD"),
		},
		Admin: AdminConfig{
			JWTSecret: v.GetString("ADMIN_JWT_SECRET"),
			JWTIssuer: v.GetString("ADMIN_JWT_ISSUER"),
			TokenTTL:  duration(v, "ADMIN_TOKEN_TTL", 5*time.Minute),
		},
		RunStore: RunStoreConfig{
			Driver:      strings.ToLower(v.GetString("RUNSTORE_DRIVER")),
			SQLitePath:  v.GetString("RUNSTORE_SQLITE_PATH"),
			PostgresDSN: v.GetString("RUNSTORE_POSTGRES_DSN"),
		},
		Kubernetes: KubernetesConfig{
			Enabled:        v.GetBool("K8S_ENABLED"),
			InCluster:      v.GetBool("K8S_IN_CLUSTER"),
			KubeConfigPath: v.GetString("K8S_KUBECONFIG"),
			DefaultNS:      v.GetString("K8S_NAMESPACE"),
			Deployment:     v.GetString("K8S_DEPLOYMENT"),
		},
		Notify: NotifyConfig{
			ReloadURLs: list(v, "NOTIFY_RELOAD_URLS"),
			Timeout:    duration(v, "NOTIFY_TIMEOUT", 10*time.Second),
		},
		Logger: LoggerConfig{
			Level:      v.GetString("LOGGER_LEVEL"),
			Format:     v.GetString("LOGGER_FORMAT"),
			File:       v.GetString("LOGGER_FILE"),
			MaxSizeMB:  v.GetInt("LOGGER_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOGGER_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOGGER_MAX_AGE_DAYS"),
		},
	}

	return cfg, nil
}

func duration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return fallback
	}
	return d
}

// list accepts either a YAML sequence or a comma-separated string.
func list(v *viper.Viper, key string) []string {
	var raw []string
	switch val := v.Get(key).(type) {
	case []any:
		for _, item := range val {
			raw = append(raw, fmt.Sprint(item))
		}
	case []string:
		raw = val
	default:
		raw = strings.Split(v.GetString(key), ",")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
