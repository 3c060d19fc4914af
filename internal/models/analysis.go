package models

import "time"

// Identity is the verified caller behind a bearer token.
type Identity struct {
	UID   string
	Email string
}

// AnalysisRecord is a persisted prediction for one caller.
type AnalysisRecord struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Input     GuidedInput      `json:"input"`
	Result    PredictionResult `json:"result"`
	CreatedAt time.Time        `json:"createdAt"`
}

// ListAnalysesRequest filters a caller's analysis history.
type ListAnalysesRequest struct {
	UserID string
	Since  time.Time
	Limit  int
}

// BatteryPreset is a catalogued battery the UI offers as a starting point.
type BatteryPreset struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Model          string         `json:"model" yaml:"model"`
	InitialMetrics BatteryMetrics `json:"initialMetrics" yaml:"initialMetrics"`
}

// BatteryMetrics is a live sensor snapshot.
type BatteryMetrics struct {
	Voltage     float64 `json:"voltage" yaml:"voltage"`
	Current     float64 `json:"current" yaml:"current"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
}
