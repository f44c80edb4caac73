package dto

import (
	"time"

	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/core/services"
)

// ============================================================================
// Service DTOs
// ============================================================================

type RootResponse struct {
	Status string `json:"status"`
	Health string `json:"health"`
}

type HealthResponse struct {
	Status      string   `json:"status"`
	ModelLoaded bool     `json:"model_loaded"`
	Expects     []string `json:"expects"`
}

// ============================================================================
// Model DTOs
// ============================================================================

type ModelInfoResponse struct {
	Loaded       bool           `json:"loaded"`
	Detail       string         `json:"detail,omitempty"`
	ModelClass   string         `json:"model_class,omitempty"`
	Metrics      domain.Metrics `json:"metrics,omitempty"`
	ArtifactPath string         `json:"artifact_path,omitempty"`
	Timestamp    *time.Time     `json:"timestamp,omitempty"`
	Entry        string         `json:"entry,omitempty"`
	RunID        string         `json:"run_id,omitempty"`
	SHA256       string         `json:"model_sha256,omitempty"`
	LoadedAt     *time.Time     `json:"loaded_at,omitempty"`
}

type SchemaResponse struct {
	ExpectedColumns []string `json:"expected_columns"`
	Count           int      `json:"count"`
	Note            string   `json:"note"`
}

type ExampleResponse struct {
	Note    string             `json:"note"`
	Mode    string             `json:"mode"`
	Example map[string]float64 `json:"example"`
}

type ReloadResponse struct {
	Status   string           `json:"status"`
	Entry    string           `json:"entry"`
	Kind     domain.ModelKind `json:"model_kind"`
	RunID    string           `json:"run_id"`
	LoadedAt time.Time        `json:"loaded_at"`
}

const NoModelDetail = "No model loaded. Train first, then reload or restart the service."

func ToModelInfoResponse(cur *domain.CurrentModel, loadedAt time.Time) ModelInfoResponse {
	if cur == nil {
		return ModelInfoResponse{Loaded: false, Detail: NoModelDetail}
	}
	promotedAt := cur.Manifest.PromotedAt
	return ModelInfoResponse{
		Loaded:       true,
		ModelClass:   cur.Manifest.Kind.ClassName(),
		Metrics:      cur.Metrics,
		ArtifactPath: cur.Path,
		Timestamp:    &promotedAt,
		Entry:        cur.Manifest.Entry,
		RunID:        cur.Manifest.RunID,
		SHA256:       cur.Manifest.SHA256,
		LoadedAt:     &loadedAt,
	}
}

func ToSchemaResponse(schema domain.FeatureSchema) SchemaResponse {
	return SchemaResponse{
		ExpectedColumns: orEmpty(schema.Columns()),
		Count:           schema.Len(),
		Note:            "POST /predict expects exactly these keys with numeric values.",
	}
}

func ToExampleResponse(ex *services.Example) ExampleResponse {
	return ExampleResponse{Note: ex.Note, Mode: ex.Mode, Example: ex.Payload}
}

func ToReloadResponse(cur *domain.CurrentModel, loadedAt time.Time) ReloadResponse {
	return ReloadResponse{
		Status:   "reloaded",
		Entry:    cur.Manifest.Entry,
		Kind:     cur.Manifest.Kind,
		RunID:    cur.Manifest.RunID,
		LoadedAt: loadedAt,
	}
}

// ============================================================================
// Prediction DTOs
// ============================================================================

type PredictResponse struct {
	ChurnProbability float64          `json:"churn_probability"`
	Label            int              `json:"label"`
	Threshold        float64          `json:"threshold"`
	ModelKind        domain.ModelKind `json:"model_kind"`
}

type SchemaMismatchResponse struct {
	Error         string   `json:"error"`
	Missing       []string `json:"missing"`
	Unexpected    []string `json:"unexpected"`
	Invalid       []string `json:"invalid"`
	ExpectedOrder []string `json:"expected_order"`
}

func ToPredictResponse(p *services.Prediction) PredictResponse {
	return PredictResponse{
		ChurnProbability: p.Probability,
		Label:            p.Label,
		Threshold:        p.Threshold,
		ModelKind:        p.Kind,
	}
}

// ToSchemaMismatchResponse reports every offending field alongside the
// expected column order. Nil lists become empty so clients can index them.
func ToSchemaMismatchResponse(err *domain.SchemaMismatchError) SchemaMismatchResponse {
	return SchemaMismatchResponse{
		Error:         "Input columns mismatch",
		Missing:       orEmpty(err.Missing),
		Unexpected:    orEmpty(err.Unexpected),
		Invalid:       orEmpty(err.Invalid),
		ExpectedOrder: orEmpty(err.Expected),
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
