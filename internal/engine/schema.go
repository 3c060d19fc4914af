package engine

// SchemaType names a primitive in the structured-output schema.
type SchemaType string

const (
	TypeObject  SchemaType = "OBJECT"
	TypeString  SchemaType = "STRING"
	TypeInteger SchemaType = "INTEGER"
	TypeNumber  SchemaType = "NUMBER"
)

// Schema is a provider-neutral description of the JSON the model must return.
type Schema struct {
	Type        SchemaType
	Description string
	Enum        []string
	Properties  map[string]*Schema
	Required    []string
	// PropertyOrdering preserves declaration order for providers that honour it.
	PropertyOrdering []string
}

// Prediction field names, in the order the schema declares them.
const (
	FieldRUL              = "rul"
	FieldSOHScore         = "soh_score"
	FieldAlertLevel       = "alert_level"
	FieldDegradationCause = "degradation_cause"
	FieldRecommendation   = "recommendation"
	FieldNextSteps        = "next_steps"
	FieldConfidence       = "confidence"
)

var predictionFields = []string{
	FieldRUL,
	FieldSOHScore,
	FieldAlertLevel,
	FieldDegradationCause,
	FieldRecommendation,
	FieldNextSteps,
	FieldConfidence,
}

// PredictionSchema returns a fresh copy of the output schema for a battery prediction.
func PredictionSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			FieldRUL:              {Type: TypeInteger, Description: "Predicted Remaining Useful Life in charge cycles."},
			FieldSOHScore:         {Type: TypeInteger, Description: "Overall battery State of Health (SoH) as a percentage, 0-100."},
			FieldAlertLevel:       {Type: TypeString, Enum: []string{"nominal", "warning", "critical"}},
			FieldDegradationCause: {Type: TypeString, Description: "Human-readable analysis of the primary cause for battery degradation."},
			FieldRecommendation:   {Type: TypeString, Description: "A single, actionable pro-tip for the user to extend battery life."},
			FieldNextSteps:        {Type: TypeString, Description: "Crucial, detailed next steps for 'warning' or 'critical' alerts."},
			FieldConfidence:       {Type: TypeNumber, Description: "Confidence score for the prediction, 0.0 to 1.0."},
		},
		Required:         append([]string(nil), predictionFields...),
		PropertyOrdering: append([]string(nil), predictionFields...),
	}
}
