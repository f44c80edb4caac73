package services

import (
	"fmt"
	"math"
	"sort"

	"churn-model-service/internal/core/domain"
)

// Selector picks the best record of a run: highest ROC-AUC, with exact ties
// resolved by a fixed kind priority.
type Selector struct {
	rank map[domain.ModelKind]int
}

// NewSelector builds a selector over the given priority list. An empty list
// falls back to domain.DefaultPriority.
func NewSelector(priority []domain.ModelKind) (*Selector, error) {
	if len(priority) == 0 {
		priority = domain.DefaultPriority
	}
	rank := make(map[domain.ModelKind]int, len(priority))
	for i, k := range priority {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: %q in priority", domain.ErrUnknownModelKind, k)
		}
		if _, dup := rank[k]; dup {
			return nil, fmt.Errorf("model kind %q listed twice in priority", k)
		}
		rank[k] = i
	}
	return &Selector{rank: rank}, nil
}

// Select returns the best record. Kinds absent from the priority list rank
// after listed kinds in their input order; a NaN score ranks below any number.
func (s *Selector) Select(records []*domain.ModelRecord) (*domain.ModelRecord, error) {
	ranked, err := s.Rank(records)
	if err != nil {
		return nil, err
	}
	return ranked[0], nil
}

// Rank orders all records best first.
func (s *Selector) Rank(records []*domain.ModelRecord) ([]*domain.ModelRecord, error) {
	if len(records) == 0 {
		return nil, domain.ErrNoRecords
	}
	ranked := append([]*domain.ModelRecord(nil), records...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return s.less(ranked[i], ranked[j])
	})
	return ranked, nil
}

func (s *Selector) less(a, b *domain.ModelRecord) bool {
	aa, ba := a.ROCAUC(), b.ROCAUC()
	aNaN, bNaN := math.IsNaN(aa), math.IsNaN(ba)
	switch {
	case aNaN && !bNaN:
		return false
	case !aNaN && bNaN:
		return true
	case !aNaN && aa != ba:
		return aa > ba
	}
	return s.kindRank(a.Kind) < s.kindRank(b.Kind)
}

func (s *Selector) kindRank(k domain.ModelKind) int {
	if r, ok := s.rank[k]; ok {
		return r
	}
	return len(s.rank)
}
