package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/core/ports/output"
)

type InferenceConfig struct {
	Threshold float64
	CacheSize int // 0 disables the prediction cache
}

// InferenceService holds the process-wide current model. It is set by Load at
// startup and replaced only by an explicit Reload; requests read a snapshot.
type InferenceService struct {
	loader    ports.CurrentModelLoader
	threshold float64
	examples  *domain.Dataset

	mu       sync.RWMutex
	current  *domain.CurrentModel
	loadedAt time.Time

	cache *lru.Cache[string, float64]
}

func NewInferenceService(loader ports.CurrentModelLoader, cfg InferenceConfig, examples *domain.Dataset) (*InferenceService, error) {
	threshold := cfg.Threshold
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.5
	}
	s := &InferenceService{loader: loader, threshold: threshold, examples: examples}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, float64](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("prediction cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Load reads the current model once at process start. A missing model is not
// fatal for the process: the service stays up and reports model_loaded=false.
func (s *InferenceService) Load(ctx context.Context) error {
	_, err := s.Reload(ctx)
	if errors.Is(err, domain.ErrCurrentNotFound) {
		log.Warn("No current model promoted yet; serving without a model")
	}
	return err
}

// Reload replaces the served model with the registry's current one. On failure
// the previously loaded model keeps serving.
func (s *InferenceService) Reload(ctx context.Context) (*domain.CurrentModel, error) {
	cur, err := s.loader.LoadCurrent(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load current model")
		return nil, err
	}

	s.mu.Lock()
	s.current = cur
	s.loadedAt = time.Now().UTC()
	s.mu.Unlock()
	if s.cache != nil {
		s.cache.Purge()
	}

	log.WithFields(log.Fields{
		"entry":    cur.Manifest.Entry,
		"kind":     cur.Manifest.Kind,
		"run_id":   cur.Manifest.RunID,
		"features": cur.Schema.Len(),
	}).Info("Current model loaded")
	return cur, nil
}

// Current returns the loaded model, or nil when none is loaded.
func (s *InferenceService) Current() *domain.CurrentModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *InferenceService) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

func (s *InferenceService) Threshold() float64 { return s.threshold }

type Prediction struct {
	Probability float64
	Label       int
	Threshold   float64
	Kind        domain.ModelKind
	Cached      bool
}

// Predict validates payload against the loaded schema and scores it.
func (s *InferenceService) Predict(ctx context.Context, payload map[string]any) (*Prediction, error) {
	cur := s.Current()
	if cur == nil {
		return nil, domain.ErrModelNotLoaded
	}
	x, err := cur.Schema.Vectorize(payload)
	if err != nil {
		return nil, err
	}

	key := cacheKey(cur.Manifest.SHA256, x)
	p, cached := s.lookup(key)
	if !cached {
		p, err = cur.Predictor.PredictProba(x)
		if err != nil {
			return nil, fmt.Errorf("predict: %w", err)
		}
		if s.cache != nil {
			s.cache.Add(key, p)
		}
	}

	label := 0
	if p >= s.threshold {
		label = 1
	}
	return &Prediction{
		Probability: p,
		Label:       label,
		Threshold:   s.threshold,
		Kind:        cur.Manifest.Kind,
		Cached:      cached,
	}, nil
}

func (s *InferenceService) lookup(key string) (float64, bool) {
	if s.cache == nil {
		return 0, false
	}
	return s.cache.Get(key)
}

// cacheKey includes the model checksum so entries of a replaced model never match.
func cacheKey(model string, x []float64) string {
	var b strings.Builder
	b.WriteString(model)
	for _, v := range x {
		b.WriteByte('|')
		b.WriteString(strconv.FormatUint(math.Float64bits(v), 16))
	}
	return b.String()
}

// Example modes.
const (
	ExampleModeMinimal  = "minimal"
	ExampleModeRow      = "row"
	ExampleModeFallback = "fallback_minimal"
)

type Example struct {
	Note    string
	Mode    string
	Payload map[string]float64
}

// Example returns a payload that passes schema validation: zeros when minimal
// is set, otherwise row idx of the examples dataset, falling back to zeros when
// no examples are configured. Columns the examples lack are zero.
func (s *InferenceService) Example(minimal bool, idx int) (*Example, error) {
	cur := s.Current()
	if cur == nil {
		return nil, domain.ErrModelNotLoaded
	}
	schema := cur.Schema

	if minimal {
		return &Example{Note: "Minimal example with zeros for all features.", Mode: ExampleModeMinimal, Payload: schema.Zeros()}, nil
	}
	if s.examples == nil || s.examples.Len() == 0 {
		return &Example{Note: "No example rows configured; fell back to minimal example.", Mode: ExampleModeFallback, Payload: schema.Zeros()}, nil
	}
	if idx < 0 || idx >= s.examples.Len() {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", domain.ErrExampleIndex, idx, s.examples.Len())
	}

	row := s.examples.X[idx]
	payload := schema.Zeros()
	for _, col := range schema.Columns() {
		if j, ok := s.examples.Schema.Index(col); ok {
			payload[col] = row[j]
		}
	}
	return &Example{Note: fmt.Sprintf("Row %d of the example dataset.", idx), Mode: ExampleModeRow, Payload: payload}, nil
}
