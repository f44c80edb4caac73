package services

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"churn-model-service/internal/core/domain"
)

// PromotionGate is an optional boolean CEL expression evaluated against the
// selected record, e.g. `metrics.roc_auc >= 0.7 && kind != "decision_tree"`.
type PromotionGate struct {
	expr string
	prg  cel.Program
}

// NewPromotionGate compiles expr once. An empty expression yields a nil gate,
// which admits every record.
func NewPromotionGate(expr string) (*PromotionGate, error) {
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("metrics", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("kind", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("promotion gate env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("promotion gate compile: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("promotion gate must return bool, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("promotion gate program: %w", err)
	}
	return &PromotionGate{expr: expr, prg: prg}, nil
}

func (g *PromotionGate) String() string {
	if g == nil {
		return ""
	}
	return g.expr
}

// Allow reports whether rec may be promoted. Referencing a metric the record
// lacks is an evaluation error, not a rejection.
func (g *PromotionGate) Allow(rec *domain.ModelRecord) (bool, error) {
	if g == nil {
		return true, nil
	}
	out, _, err := g.prg.Eval(map[string]any{
		"metrics": map[string]float64(rec.Metrics),
		"kind":    string(rec.Kind),
	})
	if err != nil {
		return false, fmt.Errorf("promotion gate eval: %w", err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("promotion gate must return bool, got %T", out.Value())
	}
	return ok, nil
}
