package domain

import (
	"fmt"
	"strings"
)

type ModelKind string

const (
	ModelKindLogisticRegression   ModelKind = "logistic_regression"
	ModelKindDecisionTree         ModelKind = "decision_tree"
	ModelKindRandomForest         ModelKind = "random_forest"
	ModelKindGradientBoostedTrees ModelKind = "gradient_boosted_trees"
)

// AllModelKinds is the training order used when none is configured.
var AllModelKinds = []ModelKind{
	ModelKindLogisticRegression,
	ModelKindRandomForest,
	ModelKindDecisionTree,
	ModelKindGradientBoostedTrees,
}

// DefaultPriority breaks exact ROC-AUC ties: earlier wins.
var DefaultPriority = []ModelKind{
	ModelKindGradientBoostedTrees,
	ModelKindLogisticRegression,
	ModelKindRandomForest,
	ModelKindDecisionTree,
}

var modelClassNames = map[ModelKind]string{
	ModelKindLogisticRegression:   "LogisticRegression",
	ModelKindDecisionTree:         "DecisionTreeClassifier",
	ModelKindRandomForest:         "RandomForestClassifier",
	ModelKindGradientBoostedTrees: "GradientBoostingClassifier",
}

func (k ModelKind) Valid() bool {
	_, ok := modelClassNames[k]
	return ok
}

// ClassName is the human-facing estimator name reported by the inference API.
func (k ModelKind) ClassName() string {
	if name, ok := modelClassNames[k]; ok {
		return name
	}
	return "unknown"
}

func ParseModelKind(s string) (ModelKind, error) {
	k := ModelKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case "logreg":
		return ModelKindLogisticRegression, nil
	case "xgboost", "gbt":
		return ModelKindGradientBoostedTrees, nil
	}
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownModelKind, s)
	}
	return k, nil
}

// ParseModelKinds parses a list and rejects duplicates.
func ParseModelKinds(values []string) ([]ModelKind, error) {
	kinds := make([]ModelKind, 0, len(values))
	seen := make(map[ModelKind]bool, len(values))
	for _, v := range values {
		k, err := ParseModelKind(v)
		if err != nil {
			return nil, err
		}
		if seen[k] {
			return nil, fmt.Errorf("duplicate model kind %q", k)
		}
		seen[k] = true
		kinds = append(kinds, k)
	}
	return kinds, nil
}
