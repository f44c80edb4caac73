package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churn-model-service/internal/core/domain"
)

func TestPromotionGate_Empty(t *testing.T) {
	g, err := NewPromotionGate("")
	require.NoError(t, err)
	assert.Nil(t, g)

	ok, err := g.Allow(rec(domain.ModelKindDecisionTree, 0.1))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPromotionGate_Evaluates(t *testing.T) {
	g, err := NewPromotionGate(`metrics.roc_auc >= 0.7 && kind != "decision_tree"`)
	require.NoError(t, err)

	ok, err := g.Allow(rec(domain.ModelKindLogisticRegression, 0.8))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Allow(rec(domain.ModelKindLogisticRegression, 0.6))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = g.Allow(rec(domain.ModelKindDecisionTree, 0.9))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPromotionGate_MissingMetric(t *testing.T) {
	g, err := NewPromotionGate(`metrics.recall > 0.5`)
	require.NoError(t, err)

	_, err = g.Allow(rec(domain.ModelKindLogisticRegression, 0.8))
	assert.Error(t, err)
}

func TestPromotionGate_CompileErrors(t *testing.T) {
	_, err := NewPromotionGate(`metrics.roc_auc >=`)
	assert.Error(t, err)

	_, err = NewPromotionGate(`metrics.roc_auc`)
	assert.Error(t, err)

	_, err = NewPromotionGate(`unknown_var > 1.0`)
	assert.Error(t, err)
}
