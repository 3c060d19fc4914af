package models

// AlertLevel grades the urgency of a prediction.
type AlertLevel string

const (
	AlertNominal  AlertLevel = "nominal"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// AlertLevels lists every accepted alert level in ascending severity.
var AlertLevels = []AlertLevel{AlertNominal, AlertWarning, AlertCritical}

// Valid reports whether l is one of the closed set of alert levels.
func (l AlertLevel) Valid() bool {
	for _, known := range AlertLevels {
		if l == known {
			return true
		}
	}
	return false
}

// Elevated reports whether l warrants an out-of-band alert.
func (l AlertLevel) Elevated() bool {
	return l == AlertWarning || l == AlertCritical
}

// PredictionResult is the validated health prediction returned to callers.
type PredictionResult struct {
	RUL              int        `json:"rul"`
	SOHScore         int        `json:"soh_score"`
	AlertLevel       AlertLevel `json:"alert_level"`
	DegradationCause string     `json:"degradation_cause"`
	Recommendation   string     `json:"recommendation"`
	NextSteps        string     `json:"next_steps"`
	Confidence       float64    `json:"confidence"`
}
