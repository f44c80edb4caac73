package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// Training Data Errors
// ============================================================================

// ErrData is the root of every dataset problem detected before fitting.
var ErrData = errors.New("invalid training data")

var (
	ErrEmptyDataset     = fmt.Errorf("%w: dataset has no rows", ErrData)
	ErrMalformedDataset = fmt.Errorf("%w: malformed dataset", ErrData)
	ErrSingleClass      = fmt.Errorf("%w: fewer than two label classes in split", ErrData)
	ErrInvalidLabel     = fmt.Errorf("%w: label must be 0 or 1", ErrData)
	ErrInvalidSchema    = errors.New("feature schema must contain unique, non-empty column names")
)

// ============================================================================
// Model Errors
// ============================================================================

var (
	ErrUnknownModelKind = errors.New("unknown model kind")
	ErrNotFitted        = errors.New("predictor is not fitted")
	ErrFeatureCount     = errors.New("feature vector length does not match predictor")
	ErrNoRecords        = errors.New("no model records to select from")
)

// FitError reports that a single model kind failed to fit. The run is aborted.
type FitError struct {
	Kind ModelKind
	Err  error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("fit %s: %v", e.Kind, e.Err)
}

func (e *FitError) Unwrap() error { return e.Err }

// ============================================================================
// Registry Errors
// ============================================================================

var (
	ErrEntryExists       = errors.New("registry entry already exists")
	ErrEntryNotFound     = errors.New("registry entry not found")
	ErrCurrentNotFound   = errors.New("no current model has been promoted")
	ErrCorruptArtifact   = errors.New("artifact checksum mismatch")
	ErrPromotionRejected = errors.New("promotion gate rejected the selected model")
)

// PromotionError is returned when staging or swapping the current model fails.
// The previously promoted model stays in place.
type PromotionError struct {
	Stage string
	Err   error
}

func (e *PromotionError) Error() string {
	return fmt.Sprintf("promote (%s): %v", e.Stage, e.Err)
}

func (e *PromotionError) Unwrap() error { return e.Err }

// ============================================================================
// Inference Errors
// ============================================================================

var (
	ErrModelNotLoaded = errors.New("model not loaded")
	ErrExampleIndex   = errors.New("example row index out of range")
)

// SchemaMismatchError lists every field that keeps a payload from matching the schema.
type SchemaMismatchError struct {
	Missing    []string
	Unexpected []string
	Invalid    []string
	// Expected is the schema's column order at the time of the check.
	Expected []string
}

func (e *SchemaMismatchError) Error() string {
	parts := make([]string, 0, 3)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected: "+strings.Join(e.Unexpected, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "non-numeric: "+strings.Join(e.Invalid, ", "))
	}
	return "input columns mismatch (" + strings.Join(parts, "; ") + ")"
}
