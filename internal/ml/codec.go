package ml

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"churn-model-service/internal/core/domain"
)

const codecVersion = 1

// envelope is the gob payload of model.bin. Exactly one model field is set.
// It carries no maps, so encoding the same predictor twice yields the same bytes.
type envelope struct {
	Version  int
	Kind     domain.ModelKind
	Logistic *LogisticRegression
	Tree     *DecisionTree
	Forest   *RandomForest
	Boosting *GradientBoosting
}

// GobCodec serialises the predictors of this package.
type GobCodec struct{}

func (GobCodec) Encode(p domain.Predictor) ([]byte, error) {
	env := envelope{Version: codecVersion, Kind: p.Kind()}
	switch m := p.(type) {
	case *LogisticRegression:
		env.Logistic = m
	case *DecisionTree:
		env.Tree = m
	case *RandomForest:
		env.Forest = m
	case *GradientBoosting:
		env.Boosting = m
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", domain.ErrUnknownModelKind, p)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&env); err != nil {
		return nil, fmt.Errorf("encode %s: %w", p.Kind(), err)
	}
	return buf.Bytes(), nil
}

func (GobCodec) Decode(data []byte) (domain.Predictor, error) {
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if env.Version != codecVersion {
		return nil, fmt.Errorf("decode model: unsupported version %d", env.Version)
	}

	var p domain.Predictor
	switch env.Kind {
	case domain.ModelKindLogisticRegression:
		if env.Logistic != nil {
			p = env.Logistic
		}
	case domain.ModelKindDecisionTree:
		if env.Tree != nil {
			p = env.Tree
		}
	case domain.ModelKindRandomForest:
		if env.Forest != nil {
			p = env.Forest
		}
	case domain.ModelKindGradientBoostedTrees:
		if env.Boosting != nil {
			p = env.Boosting
		}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownModelKind, env.Kind)
	}
	if p == nil {
		return nil, fmt.Errorf("decode model: %s payload missing", env.Kind)
	}
	return p, nil
}
