package domain

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusRejected  RunStatus = "REJECTED"
	RunStatusFailed    RunStatus = "FAILED"
)

// TrainingRun is the history row kept for every pipeline execution.
type TrainingRun struct {
	ID         uuid.UUID             `json:"id"`
	RunID      string                `json:"run_id"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Status     RunStatus             `json:"status"`
	BestKind   ModelKind             `json:"best_kind,omitempty"`
	BestEntry  string                `json:"best_entry,omitempty"`
	Error      string                `json:"error,omitempty"`
	Results    map[ModelKind]Metrics `json:"results"`
}

// Kinds returns the kinds with results, sorted by name.
func (r *TrainingRun) Kinds() []ModelKind {
	kinds := make([]ModelKind, 0, len(r.Results))
	for k := range r.Results {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Dataset is a labeled feature table. X rows follow Schema order.
type Dataset struct {
	Schema FeatureSchema
	X      [][]float64
	Y      []int
}

func (d *Dataset) Len() int { return len(d.Y) }

// Subset copies the rows at idx into a new dataset sharing the schema.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{
		Schema: d.Schema,
		X:      make([][]float64, len(idx)),
		Y:      make([]int, len(idx)),
	}
	for i, j := range idx {
		out.X[i] = d.X[j]
		out.Y[i] = d.Y[j]
	}
	return out
}

// ClassCounts returns the number of negative and positive labels.
func (d *Dataset) ClassCounts() (neg, pos int) {
	for _, y := range d.Y {
		if y == 1 {
			pos++
		} else {
			neg++
		}
	}
	return neg, pos
}

// Validate checks shape, labels and finiteness before any split or fit.
func (d *Dataset) Validate() error {
	if len(d.Y) == 0 || len(d.X) == 0 {
		return ErrEmptyDataset
	}
	if len(d.X) != len(d.Y) {
		return fmt.Errorf("%w: %d feature rows but %d labels", ErrMalformedDataset, len(d.X), len(d.Y))
	}
	width := d.Schema.Len()
	if width == 0 {
		return ErrInvalidSchema
	}
	for i, row := range d.X {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d values, schema has %d", ErrMalformedDataset, i, len(row), width)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: row %d column %q is not finite", ErrMalformedDataset, i, d.Schema.columns[j])
			}
		}
		if d.Y[i] != 0 && d.Y[i] != 1 {
			return fmt.Errorf("%w: row %d has label %d", ErrInvalidLabel, i, d.Y[i])
		}
	}
	return nil
}
