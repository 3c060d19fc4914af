package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/voltsight/twin-gateway/internal/models"
	"github.com/voltsight/twin-gateway/internal/utils"
)

const codeFence = "```"

// StripCodeFence removes a surrounding markdown code fence (with optional language tag)
// and outer whitespace. Applying it twice yields the same result as applying it once.
func StripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, codeFence) {
		return s
	}
	s = strings.TrimPrefix(s, codeFence)
	s = strings.TrimLeftFunc(s, isLanguageTagRune)
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, codeFence)
	return strings.TrimSpace(s)
}

func isLanguageTagRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_'
}

// rawPrediction mirrors PredictionResult with pointers so absent fields are detectable.
type rawPrediction struct {
	RUL              *float64 `json:"rul"`
	SOHScore         *float64 `json:"soh_score"`
	AlertLevel       *string  `json:"alert_level"`
	DegradationCause *string  `json:"degradation_cause"`
	Recommendation   *string  `json:"recommendation"`
	NextSteps        *string  `json:"next_steps"`
	Confidence       *float64 `json:"confidence"`
}

// ParsePrediction strips any code fence from the model's reply, decodes it, and enforces
// the prediction schema. Every failure is reported as a prediction failure.
func ParsePrediction(text string) (models.PredictionResult, error) {
	const op = "engine.ParsePrediction"

	body := StripCodeFence(text)
	if body == "" {
		return models.PredictionResult{}, utils.NewKindError(utils.KindPredictionFailure, op, "empty model response", nil)
	}

	var raw rawPrediction
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return models.PredictionResult{}, utils.NewKindError(utils.KindPredictionFailure, op, "decode model response", err)
	}

	result, err := raw.validate()
	if err != nil {
		return models.PredictionResult{}, utils.NewKindError(utils.KindPredictionFailure, op, "schema violation", err)
	}
	return result, nil
}

func (r rawPrediction) validate() (models.PredictionResult, error) {
	var missing []string
	if r.RUL == nil {
		missing = append(missing, FieldRUL)
	}
	if r.SOHScore == nil {
		missing = append(missing, FieldSOHScore)
	}
	if r.AlertLevel == nil {
		missing = append(missing, FieldAlertLevel)
	}
	if r.DegradationCause == nil {
		missing = append(missing, FieldDegradationCause)
	}
	if r.Recommendation == nil {
		missing = append(missing, FieldRecommendation)
	}
	if r.NextSteps == nil {
		missing = append(missing, FieldNextSteps)
	}
	if r.Confidence == nil {
		missing = append(missing, FieldConfidence)
	}
	if len(missing) > 0 {
		return models.PredictionResult{}, fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}

	if !isWhole(*r.RUL) || *r.RUL < 0 {
		return models.PredictionResult{}, fmt.Errorf("rul must be a non-negative integer, got %v", *r.RUL)
	}
	if !isWhole(*r.SOHScore) || *r.SOHScore < 0 || *r.SOHScore > 100 {
		return models.PredictionResult{}, fmt.Errorf("soh_score must be an integer in [0,100], got %v", *r.SOHScore)
	}
	level := models.AlertLevel(*r.AlertLevel)
	if !level.Valid() {
		return models.PredictionResult{}, fmt.Errorf("alert_level %q is not one of nominal, warning, critical", *r.AlertLevel)
	}
	if math.IsNaN(*r.Confidence) || *r.Confidence < 0 || *r.Confidence > 1 {
		return models.PredictionResult{}, fmt.Errorf("confidence must be in [0,1], got %v", *r.Confidence)
	}

	return models.PredictionResult{
		RUL:              int(*r.RUL),
		SOHScore:         int(*r.SOHScore),
		AlertLevel:       level,
		DegradationCause: *r.DegradationCause,
		Recommendation:   *r.Recommendation,
		NextSteps:        *r.NextSteps,
		Confidence:       *r.Confidence,
	}, nil
}

func isWhole(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v) && v == math.Trunc(v) && v <= math.MaxInt32
}
