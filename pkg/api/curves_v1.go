// pkg/api/curves_v1.go
package api

// CurveV1 is the stable JSON/JSONL schema for aggregate hazard curves.
// Keep fields, names, and types stable. Add new fields only with ",omitempty".
type CurveV1 struct {
	HazardModelID string    `json:"hazard_model_id"`
	Location      string    `json:"nloc_001"`
	VS30          int       `json:"vs30"`
	IMT           string    `json:"imt"`
	AggType       string    `json:"agg"`
	Values        []float64 `json:"values"` // exceedance probabilities per level
}
