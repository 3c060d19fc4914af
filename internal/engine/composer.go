package engine

import (
	"strconv"
	"strings"

	"github.com/voltsight/twin-gateway/internal/models"
)

// Composition is the prompt and output schema for one analysis request.
type Composition struct {
	Prompt  string
	Schema  *Schema
	Metrics models.SimulatedMetrics
}

// Compose builds the prompt and schema for a validated guided input. It performs no I/O.
func Compose(in models.GuidedInput) Composition {
	metrics := SimulateMetrics(in.OdometerKm, in.OriginalCapacityKwh)

	var b strings.Builder
	b.WriteString("You are an AI model simulating an EV battery's Predictive Digital Twin. ")
	b.WriteString("Perform a comprehensive health and safety analysis from the user-provided vehicle history and simulated real-time data.\n\n")

	b.WriteString("**Vehicle Profile:**\n")
	b.WriteString("- Model: " + in.VehicleModel + "\n")
	b.WriteString("- Original Capacity: " + formatNumber(in.OriginalCapacityKwh) + " kWh\n")
	b.WriteString("- Odometer: " + formatNumber(in.OdometerKm) + " km. This suggests the vehicle has undergone a moderate number of charge-discharge cycles.\n")
	b.WriteString("- User Charging Habit Analysis: " + ChargingHabitContext(in.ChargingHabit) + "\n\n")

	b.WriteString("**Simulated Real-Time Sensor Data (for context):**\n")
	b.WriteString("- Voltage: " + strconv.FormatFloat(metrics.Voltage, 'f', 2, 64) + " V\n")
	b.WriteString("- Temperature: " + strconv.FormatFloat(metrics.Temperature, 'f', 1, 64) + " °C\n\n")

	b.WriteString("Analyze this complete profile and provide a structured JSON response.\n\n")
	b.WriteString(analysisGuidelines)

	return Composition{
		Prompt:  b.String(),
		Schema:  PredictionSchema(),
		Metrics: metrics,
	}
}

const analysisGuidelines = `**Analysis Guidelines:**
1. **SOH & RUL:** A high odometer reading and stressful charging habits (like charging to 100%) should lead to a lower SOH and RUL. A low odometer and good habits (charging to 80%) should result in high SOH.
2. **Alert Level:**
   - 'critical': If odometer is very high (>120,000 km) AND charging habit is poor.
   - 'warning': If odometer is moderate-to-high (60,000-120,000 km) OR charging habit is poor.
   - 'nominal': For newer vehicles with good habits.
3. **Degradation Cause:** Explain the 'why'. Link the odometer and charging habits directly to the predicted SOH.
4. **Next Steps:** Must match the alert level. A 'critical' alert for an old battery needs to recommend a professional inspection.
`

// formatNumber prints integral values without a fractional part.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SamplingConfig carries generation parameters passed to the model provider.
type SamplingConfig struct {
	Temperature float32
}

// DefaultTemperature keeps replies consistent without making them fully deterministic.
const DefaultTemperature float32 = 0.5
