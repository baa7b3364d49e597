package types

// Flight status values returned by the recommendation provider.
const (
	FlightFitToFly = "FIT_TO_FLY"
	FlightMonitor  = "MONITOR"
	FlightRestrict = "RESTRICT"
)

// MetricComparison is one current-vs-baseline line of a fatigue analysis.
type MetricComparison struct {
	Label    string  `json:"label"`
	Value    float64 `json:"value"`
	Baseline float64 `json:"baseline"`
	Delta    float64 `json:"delta"`
	Status   string  `json:"status"` // above | below | normal
}

// FatigueAnalysis is the provider's structured fatigue assessment.
type FatigueAnalysis struct {
	CurrentMetrics []MetricComparison `json:"current_metrics"`
	KeyFindings    []string           `json:"key_findings"`
}

// RiskFactor is one risk highlighted by the provider.
type RiskFactor struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"` // low | medium | high
	Icon        string `json:"icon"`     // brain | heart | activity
}

// Recommendation is the provider response for one pilot, consumed verbatim.
type Recommendation struct {
	FatigueAnalysis FatigueAnalysis `json:"fatigue_analysis"`
	RiskFactors     []RiskFactor    `json:"risk_factors"`
	Recommendations []string        `json:"recommendations"`
	FlightStatus    string          `json:"flight_status"`
	ConfidenceScore float64         `json:"confidence_score"`
}
