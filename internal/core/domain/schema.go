package domain

import (
	"encoding/json"
	"math"
	"sort"
)

// FeatureSchema is the ordered list of input columns a predictor was trained on.
// The zero value is an empty schema. Values are immutable once built.
type FeatureSchema struct {
	columns []string
	index   map[string]int
}

func NewFeatureSchema(columns []string) (FeatureSchema, error) {
	if len(columns) == 0 {
		return FeatureSchema{}, ErrInvalidSchema
	}
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c == "" {
			return FeatureSchema{}, ErrInvalidSchema
		}
		if _, dup := index[c]; dup {
			return FeatureSchema{}, ErrInvalidSchema
		}
		index[c] = i
	}
	return FeatureSchema{columns: append([]string(nil), columns...), index: index}, nil
}

// Columns returns a copy of the column names in training order.
func (s FeatureSchema) Columns() []string {
	return append([]string(nil), s.columns...)
}

func (s FeatureSchema) Len() int { return len(s.columns) }

// Index returns the position of a column.
func (s FeatureSchema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

func (s FeatureSchema) Equal(other FeatureSchema) bool {
	if len(s.columns) != len(other.columns) {
		return false
	}
	for i := range s.columns {
		if s.columns[i] != other.columns[i] {
			return false
		}
	}
	return true
}

func (s FeatureSchema) MarshalJSON() ([]byte, error) {
	if s.columns == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.columns)
}

func (s *FeatureSchema) UnmarshalJSON(data []byte) error {
	var cols []string
	if err := json.Unmarshal(data, &cols); err != nil {
		return err
	}
	parsed, err := NewFeatureSchema(cols)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Vectorize checks a decoded JSON object against the schema and returns the
// feature values in column order. Keys must match exactly and every value
// must be a finite JSON number; nothing is filled in or coerced.
func (s FeatureSchema) Vectorize(payload map[string]any) ([]float64, error) {
	mismatch := &SchemaMismatchError{}
	vec := make([]float64, len(s.columns))

	for key := range payload {
		if _, ok := s.index[key]; !ok {
			mismatch.Unexpected = append(mismatch.Unexpected, key)
		}
	}
	for i, col := range s.columns {
		raw, ok := payload[col]
		if !ok {
			mismatch.Missing = append(mismatch.Missing, col)
			continue
		}
		v, ok := numericValue(raw)
		if !ok {
			mismatch.Invalid = append(mismatch.Invalid, col)
			continue
		}
		vec[i] = v
	}

	if len(mismatch.Missing)+len(mismatch.Unexpected)+len(mismatch.Invalid) > 0 {
		sort.Strings(mismatch.Unexpected)
		mismatch.Expected = s.Columns()
		return nil, mismatch
	}
	return vec, nil
}

// Zeros returns a payload with every column set to zero.
func (s FeatureSchema) Zeros() map[string]float64 {
	out := make(map[string]float64, len(s.columns))
	for _, c := range s.columns {
		out[c] = 0
	}
	return out
}

func numericValue(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
