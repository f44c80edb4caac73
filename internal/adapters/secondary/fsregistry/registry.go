// Package fsregistry stores training artifacts in a directory tree:
//
//	root/<kind>_<run_id>/{model.bin,metrics.json,schema.json}   append-only entries
//	root/.generations/<gen>/{model.bin,schema.json,metrics.json,manifest.json}
//	root/best -> .generations/<gen>                              current model
//	root/input_schema.json
//
// Promotion stages a complete generation directory, then swaps the best
// symlink with a single rename, so readers resolve either the old or the new
// generation and never a mix of both.
package fsregistry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/core/ports/output"
)

const (
	ModelFile       = "model.bin"
	MetricsFile     = "metrics.json"
	SchemaFile      = "schema.json"
	ManifestFile    = "manifest.json"
	InputSchemaFile = "input_schema.json"

	bestLink       = "best"
	generationsDir = ".generations"
	bestTmpPrefix  = ".best.tmp-"
	stagingPrefix  = ".staging-"

	loadAttempts = 3
)

var _ ports.ArtifactRegistry = (*Registry)(nil)

type Registry struct {
	root  string
	codec ports.PredictorCodec
	now   func() time.Time

	// beforeSwap runs after a generation is fully staged and before the
	// best link is replaced.
	beforeSwap func() error
	// syncRoot flushes the root directory after an entry or the best link
	// has been renamed into place.
	syncRoot func(dir string) error
}

// New opens (creating if needed) a registry rooted at root and clears
// leftovers of promotions or records that were interrupted.
func New(root string, codec ports.PredictorCodec) (*Registry, error) {
	if err := os.MkdirAll(filepath.Join(root, generationsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create registry root: %w", err)
	}
	r := &Registry{root: root, codec: codec, now: time.Now, syncRoot: syncDir}
	if err := r.cleanStale(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) cleanStale() error {
	items, err := os.ReadDir(r.root)
	if err != nil {
		return fmt.Errorf("read registry root: %w", err)
	}
	for _, it := range items {
		name := it.Name()
		if strings.HasPrefix(name, bestTmpPrefix) || strings.HasPrefix(name, stagingPrefix) {
			log.WithField("path", name).Warn("Removing stale registry staging file")
			if err := os.RemoveAll(filepath.Join(r.root, name)); err != nil {
				return fmt.Errorf("remove stale %s: %w", name, err)
			}
		}
	}
	return nil
}

// Record persists one trained model as a new entry. An existing entry of the
// same name is never overwritten.
func (r *Registry) Record(ctx context.Context, runID string, rec *domain.ModelRecord, schema domain.FeatureSchema) (*domain.RegistryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if schema.Len() == 0 {
		return nil, domain.ErrInvalidSchema
	}
	if rec.Predictor.NumFeatures() != schema.Len() {
		return nil, fmt.Errorf("%w: predictor has %d features, schema has %d", domain.ErrFeatureCount, rec.Predictor.NumFeatures(), schema.Len())
	}

	name := domain.EntryName(rec.Kind, runID)
	if _, _, err := domain.ParseEntryName(name); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	target := filepath.Join(r.root, name)
	if _, err := os.Lstat(target); err == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrEntryExists, name)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}

	model, err := r.codec.Encode(rec.Predictor)
	if err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp(r.root, stagingPrefix+name+"-")
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", name, err)
	}
	if err := r.writeEntryFiles(tmp, model, rec.Metrics, schema); err != nil {
		os.RemoveAll(tmp)
		return nil, fmt.Errorf("stage %s: %w", name, err)
	}
	if err := os.Chmod(tmp, 0o755); err != nil {
		os.RemoveAll(tmp)
		return nil, fmt.Errorf("stage %s: %w", name, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.RemoveAll(tmp)
		if errors.Is(err, fs.ErrExist) || isNotEmpty(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrEntryExists, name)
		}
		return nil, fmt.Errorf("commit %s: %w", name, err)
	}
	// Once renamed the entry exists; the caller needs it back to roll it back.
	if err := r.syncRoot(r.root); err != nil {
		log.WithError(err).WithField("entry", name).Warn("Failed to sync registry root after record")
	}

	log.WithFields(log.Fields{"entry": name, "path": target}).Info("Registry entry recorded")
	return &domain.RegistryEntry{
		Name:      name,
		Kind:      rec.Kind,
		RunID:     runID,
		Path:      target,
		Metrics:   rec.Metrics.Clone(),
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (r *Registry) writeEntryFiles(dir string, model []byte, metrics domain.Metrics, schema domain.FeatureSchema) error {
	if err := writeFileSync(filepath.Join(dir, ModelFile), model); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, MetricsFile), metrics); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, SchemaFile), schema); err != nil {
		return err
	}
	return syncDir(dir)
}

// Get reads an entry by directory name.
func (r *Registry) Get(ctx context.Context, name string) (*domain.RegistryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kind, runID, err := domain.ParseEntryName(name)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(r.root, name)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, fmt.Errorf("%w: %s", domain.ErrEntryNotFound, name)
	}
	if err != nil {
		return nil, err
	}

	var metrics domain.Metrics
	if err := readJSON(filepath.Join(path, MetricsFile), &metrics); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	created, _ := time.Parse(domain.RunIDLayout, runID)
	return &domain.RegistryEntry{
		Name:      name,
		Kind:      kind,
		RunID:     runID,
		Path:      path,
		Metrics:   metrics,
		CreatedAt: created,
	}, nil
}

// List returns every entry ordered by run, oldest first.
func (r *Registry) List(ctx context.Context) ([]*domain.RegistryEntry, error) {
	items, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("read registry root: %w", err)
	}
	var entries []*domain.RegistryEntry
	for _, it := range items {
		if !it.IsDir() {
			continue
		}
		if _, _, err := domain.ParseEntryName(it.Name()); err != nil {
			continue
		}
		e, err := r.Get(ctx, it.Name())
		if err != nil {
			log.WithError(err).WithField("entry", it.Name()).Warn("Skipping unreadable registry entry")
			continue
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].RunID != entries[j].RunID {
			return entries[i].RunID < entries[j].RunID
		}
		return entries[i].Kind < entries[j].Kind
	})
	return entries, nil
}

// Remove deletes an entry that belongs to a failed run. The entry currently
// promoted is refused.
func (r *Registry) Remove(ctx context.Context, entry *domain.RegistryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := domain.ParseEntryName(entry.Name); err != nil {
		return err
	}
	if m, err := r.currentManifest(); err == nil && m.Entry == entry.Name {
		return fmt.Errorf("refusing to remove promoted entry %s", entry.Name)
	}
	path := filepath.Join(r.root, entry.Name)
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", domain.ErrEntryNotFound, entry.Name)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", entry.Name, err)
	}
	log.WithField("entry", entry.Name).Info("Registry entry removed")
	return syncDir(r.root)
}

// Promote makes entry the current model. It assumes a single writer.
func (r *Registry) Promote(ctx context.Context, entry *domain.RegistryEntry) error {
	if err := ctx.Err(); err != nil {
		return &domain.PromotionError{Stage: "stage", Err: err}
	}
	src := filepath.Join(r.root, entry.Name)

	model, err := os.ReadFile(filepath.Join(src, ModelFile))
	if err != nil {
		return &domain.PromotionError{Stage: "stage", Err: notFoundAsEntry(err, entry.Name)}
	}
	var schema domain.FeatureSchema
	if err := readJSON(filepath.Join(src, SchemaFile), &schema); err != nil {
		return &domain.PromotionError{Stage: "stage", Err: notFoundAsEntry(err, entry.Name)}
	}
	var metrics domain.Metrics
	if err := readJSON(filepath.Join(src, MetricsFile), &metrics); err != nil {
		return &domain.PromotionError{Stage: "stage", Err: notFoundAsEntry(err, entry.Name)}
	}
	predictor, err := r.codec.Decode(model)
	if err != nil {
		return &domain.PromotionError{Stage: "stage", Err: err}
	}
	if predictor.NumFeatures() != schema.Len() {
		return &domain.PromotionError{Stage: "stage", Err: fmt.Errorf("%w: predictor has %d features, schema has %d", domain.ErrFeatureCount, predictor.NumFeatures(), schema.Len())}
	}

	kind, runID, err := domain.ParseEntryName(entry.Name)
	if err != nil {
		return &domain.PromotionError{Stage: "stage", Err: err}
	}
	sum := sha256.Sum256(model)
	manifest := domain.Manifest{
		Entry:      entry.Name,
		Kind:       kind,
		RunID:      runID,
		SHA256:     hex.EncodeToString(sum[:]),
		PromotedAt: r.now().UTC(),
	}

	genRoot := filepath.Join(r.root, generationsDir)
	gen, err := os.MkdirTemp(genRoot, manifest.PromotedAt.Format("20060102T150405.000000000Z")+"-")
	if err != nil {
		return &domain.PromotionError{Stage: "stage", Err: err}
	}
	if err := r.writeGeneration(gen, model, schema, metrics, manifest); err != nil {
		os.RemoveAll(gen)
		return &domain.PromotionError{Stage: "stage", Err: err}
	}

	if r.beforeSwap != nil {
		if err := r.beforeSwap(); err != nil {
			os.RemoveAll(gen)
			return &domain.PromotionError{Stage: "swap", Err: err}
		}
	}

	previous, _ := os.Readlink(filepath.Join(r.root, bestLink))
	if err := r.swapBest(filepath.Join(generationsDir, filepath.Base(gen))); err != nil {
		os.RemoveAll(gen)
		return &domain.PromotionError{Stage: "swap", Err: err}
	}

	// The swap is the commit point; what follows cannot undo it.
	logger := log.WithFields(log.Fields{"entry": entry.Name, "generation": filepath.Base(gen)})
	if err := r.syncRoot(r.root); err != nil {
		logger.WithError(err).Warn("Failed to sync registry root after swap")
	}
	logger.Info("Model promoted")

	if err := writeFileAtomic(r.root, InputSchemaFile, schemaJSON(schema)); err != nil {
		logger.WithError(err).Error("Failed to write input schema")
	}
	r.prune(filepath.Base(gen), filepath.Base(previous))
	return nil
}

func (r *Registry) writeGeneration(dir string, model []byte, schema domain.FeatureSchema, metrics domain.Metrics, manifest domain.Manifest) error {
	if err := writeFileSync(filepath.Join(dir, ModelFile), model); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, SchemaFile), schema); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, MetricsFile), metrics); err != nil {
		return err
	}
	// The manifest goes last: a generation with a manifest is complete.
	if err := writeJSON(filepath.Join(dir, ManifestFile), manifest); err != nil {
		return err
	}
	if err := os.Chmod(dir, 0o755); err != nil {
		return err
	}
	return syncDir(dir)
}

func (r *Registry) swapBest(target string) error {
	tmp, err := os.CreateTemp(r.root, bestTmpPrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	tmp.Close()
	// CreateTemp only reserved a unique name; the link replaces the file.
	if err := os.Remove(tmpName); err != nil {
		return err
	}
	if err := os.Symlink(target, tmpName); err != nil {
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(r.root, bestLink)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// prune removes generations other than the current and the previous one.
func (r *Registry) prune(current, previous string) {
	genRoot := filepath.Join(r.root, generationsDir)
	items, err := os.ReadDir(genRoot)
	if err != nil {
		log.WithError(err).Warn("Failed to list generations for pruning")
		return
	}
	for _, it := range items {
		if it.Name() == current || it.Name() == previous {
			continue
		}
		if err := os.RemoveAll(filepath.Join(genRoot, it.Name())); err != nil {
			log.WithError(err).WithField("generation", it.Name()).Warn("Failed to prune generation")
		}
	}
}

// LoadCurrent resolves best once and reads a consistent model, schema and
// metrics triple from that generation. A generation pruned while it was being
// read is retried against the new link target.
func (r *Registry) LoadCurrent(ctx context.Context) (*domain.CurrentModel, error) {
	var lastErr error
	for attempt := 0; attempt < loadAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir, err := r.resolveBest()
		if err != nil {
			return nil, err
		}
		cur, err := r.loadGeneration(dir)
		if err == nil {
			return cur, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("load current model: %w", lastErr)
}

func (r *Registry) resolveBest() (string, error) {
	target, err := os.Readlink(filepath.Join(r.root, bestLink))
	if errors.Is(err, fs.ErrNotExist) {
		return "", domain.ErrCurrentNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", bestLink, err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(r.root, target)
	}
	return target, nil
}

func (r *Registry) loadGeneration(dir string) (*domain.CurrentModel, error) {
	var manifest domain.Manifest
	if err := readJSON(filepath.Join(dir, ManifestFile), &manifest); err != nil {
		return nil, err
	}
	model, err := os.ReadFile(filepath.Join(dir, ModelFile))
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(model)
	if hex.EncodeToString(sum[:]) != manifest.SHA256 {
		return nil, fmt.Errorf("%w: %s", domain.ErrCorruptArtifact, manifest.Entry)
	}
	var schema domain.FeatureSchema
	if err := readJSON(filepath.Join(dir, SchemaFile), &schema); err != nil {
		return nil, err
	}
	var metrics domain.Metrics
	if err := readJSON(filepath.Join(dir, MetricsFile), &metrics); err != nil {
		return nil, err
	}
	predictor, err := r.codec.Decode(model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptArtifact, err)
	}
	if predictor.NumFeatures() != schema.Len() {
		return nil, fmt.Errorf("%w: predictor has %d features, schema has %d", domain.ErrCorruptArtifact, predictor.NumFeatures(), schema.Len())
	}
	return &domain.CurrentModel{
		Predictor: predictor,
		Schema:    schema,
		Metrics:   metrics,
		Manifest:  manifest,
		Path:      dir,
	}, nil
}

func (r *Registry) currentManifest() (*domain.Manifest, error) {
	dir, err := r.resolveBest()
	if err != nil {
		return nil, err
	}
	var m domain.Manifest
	if err := readJSON(filepath.Join(dir, ManifestFile), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func notFoundAsEntry(err error, name string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", domain.ErrEntryNotFound, name)
	}
	return err
}

func isNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY)
}

func schemaJSON(schema domain.FeatureSchema) []byte {
	data, _ := schema.MarshalJSON()
	return append(data, '\n')
}
