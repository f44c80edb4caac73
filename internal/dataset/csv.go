// Package dataset reads the feature table produced by the feature pipeline.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"churn-model-service/internal/core/domain"
)

// LeakageColumns are identifiers and raw timestamps that must never be features.
var LeakageColumns = []string{"userId", "sessionId", "registration", "first_ts", "last_ts", "ts"}

type Options struct {
	Label        string
	Drop         []string
	DropConstant bool
	RequireLabel bool
}

func DefaultOptions() Options {
	return Options{Label: "churn", RequireLabel: true}
}

// CellError locates a value that could not be parsed.
type CellError struct {
	Row    int // 1-based data row, header excluded
	Column string
	Value  string
}

func (e *CellError) Error() string {
	return fmt.Sprintf("row %d column %q: cannot parse %q as a number", e.Row, e.Column, e.Value)
}

func (e *CellError) Unwrap() error { return domain.ErrMalformedDataset }

// LoadFile reads a CSV feature table from path.
func LoadFile(path string, opts Options) (*domain.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	ds, err := Load(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Load parses a CSV with a header row. The label column is removed from the
// features, as are leakage columns and opts.Drop; every remaining cell must be
// numeric. Feature order follows the header.
func Load(r io.Reader, opts Options) (*domain.Dataset, error) {
	if opts.Label == "" {
		opts.Label = "churn"
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", domain.ErrMalformedDataset, err)
	}

	drop := map[string]bool{}
	for _, c := range LeakageColumns {
		drop[c] = true
	}
	for _, c := range opts.Drop {
		drop[c] = true
	}

	labelIdx := -1
	var featureIdx []int
	var columns []string
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch {
		case name == opts.Label:
			labelIdx = i
		case drop[name]:
		default:
			featureIdx = append(featureIdx, i)
			columns = append(columns, name)
		}
	}
	if labelIdx < 0 && opts.RequireLabel {
		return nil, fmt.Errorf("%w: label column %q not found", domain.ErrMalformedDataset, opts.Label)
	}

	var X [][]float64
	var y []int
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", domain.ErrMalformedDataset, row, err)
		}

		x := make([]float64, len(featureIdx))
		for j, i := range featureIdx {
			v, err := parseCell(rec[i])
			if err != nil {
				return nil, &CellError{Row: row, Column: columns[j], Value: rec[i]}
			}
			x[j] = v
		}
		X = append(X, x)

		if labelIdx >= 0 {
			label, err := parseLabel(rec[labelIdx])
			if err != nil {
				return nil, fmt.Errorf("%w: row %d: %q", domain.ErrInvalidLabel, row, rec[labelIdx])
			}
			y = append(y, label)
		}
	}
	if len(X) == 0 {
		return nil, domain.ErrEmptyDataset
	}

	if opts.DropConstant {
		X, columns = dropConstant(X, columns)
	}
	schema, err := domain.NewFeatureSchema(columns)
	if err != nil {
		return nil, err
	}
	if y == nil {
		y = make([]int, len(X))
	}

	ds := &domain.Dataset{Schema: schema, X: X, Y: y}
	neg, pos := ds.ClassCounts()
	log.WithFields(log.Fields{
		"rows":     ds.Len(),
		"features": schema.Len(),
		"positive": pos,
		"negative": neg,
	}).Info("Dataset loaded")
	return ds, nil
}

func parseCell(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite")
	}
	return v, nil
}

func parseLabel(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "0.0", "false":
		return 0, nil
	case "1", "1.0", "true":
		return 1, nil
	}
	return 0, fmt.Errorf("invalid label")
}

func dropConstant(X [][]float64, columns []string) ([][]float64, []string) {
	keep := make([]int, 0, len(columns))
	for j := range columns {
		for i := 1; i < len(X); i++ {
			if X[i][j] != X[0][j] {
				keep = append(keep, j)
				break
			}
		}
	}
	if len(keep) == len(columns) {
		return X, columns
	}

	kept := make([]string, len(keep))
	for k, j := range keep {
		kept[k] = columns[j]
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(keep))
		for k, j := range keep {
			r[k] = row[j]
		}
		out[i] = r
	}
	log.WithField("dropped", len(columns)-len(keep)).Info("Dropped constant columns")
	return out, kept
}
