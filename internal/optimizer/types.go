package optimizer

// Confidence grades a recommendation. The assignment rules are fixed so a
// test can assert exact labels from synthetic data: High needs at least 30
// samples with a coefficient of variation under 0.15, Medium at least 10
// under 0.25, everything else is Low.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Status reports whether an analysis ran or was gated.
type Status string

const (
	// StatusOK means the analysis ran over a sufficient sample.
	StatusOK Status = "ok"
	// StatusInsufficientSample means the history was below the minimum
	// sample size; no recommendations are produced rather than guessing.
	StatusInsufficientSample Status = "insufficient_sample"
)

// Recommendation is one advisory threshold change. It is never
// auto-applied; applying one is a separate, explicitly approved action
// outside this package's authority.
type Recommendation struct {
	ParameterName string     `json:"parameter_name"`
	OldValue      float64    `json:"old_value"`
	NewValue      float64    `json:"new_value"`
	Confidence    Confidence `json:"confidence"`
	SampleSize    int        `json:"sample_size"`
	Reasoning     string     `json:"reasoning"`
}

// Analysis is the optimizer's full output: the structured recommendations
// plus the status and sample accounting the report renders.
type Analysis struct {
	Status          Status           `json:"status"`
	SampleSize      int              `json:"sample_size"`
	MinSampleSize   int              `json:"min_sample_size"`
	Recommendations []Recommendation `json:"recommendations"`
}
