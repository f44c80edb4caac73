package domain

import (
	"fmt"
	"strings"
	"time"
)

// RunIDLayout gives run IDs microsecond resolution so two runs in one process
// never share an entry name.
const RunIDLayout = "20060102T150405.000000Z"

func NewRunID(t time.Time) string {
	return t.UTC().Format(RunIDLayout)
}

// EntryName is the registry directory name for a kind trained in a run.
func EntryName(kind ModelKind, runID string) string {
	return string(kind) + "_" + runID
}

func ParseEntryName(name string) (ModelKind, string, error) {
	i := strings.LastIndex(name, "_")
	if i <= 0 || i == len(name)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}
	kind := ModelKind(name[:i])
	if !kind.Valid() {
		return "", "", fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}
	runID := name[i+1:]
	if _, err := time.Parse(RunIDLayout, runID); err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}
	return kind, runID, nil
}

// RegistryEntry is one persisted artifact directory.
type RegistryEntry struct {
	Name      string    `json:"name"`
	Kind      ModelKind `json:"kind"`
	RunID     string    `json:"run_id"`
	Path      string    `json:"path"`
	Metrics   Metrics   `json:"metrics"`
	CreatedAt time.Time `json:"created_at"`
}

// Manifest describes the contents of the current-model slot.
type Manifest struct {
	Entry      string    `json:"entry"`
	Kind       ModelKind `json:"kind"`
	RunID      string    `json:"run_id"`
	SHA256     string    `json:"model_sha256"`
	PromotedAt time.Time `json:"promoted_at"`
}

// CurrentModel is the promoted artifact as read back by the inference service.
type CurrentModel struct {
	Predictor Predictor
	Schema    FeatureSchema
	Metrics   Metrics
	Manifest  Manifest
	Path      string
}
