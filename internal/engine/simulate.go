package engine

import (
	"math"

	"github.com/voltsight/twin-gateway/internal/models"
)

const (
	// fullDegradationKm is the distance at which the simulation reaches its cap.
	fullDegradationKm = 150000.0
	maxDegradation    = 0.5

	baseVoltage     = 380.0
	voltageDropSpan = 40.0
	baseTemperature = 28.0
	temperatureSpan = 10.0
)

// DegradationFactor is min(odometerKm/150000, 0.5).
func DegradationFactor(odometerKm float64) float64 {
	return math.Min(odometerKm/fullDegradationKm, maxDegradation)
}

// SimulateMetrics derives the synthetic voltage and temperature reported alongside the
// vehicle profile. capacityKwh is accepted for parity with the guided form but does not
// influence the result.
func SimulateMetrics(odometerKm, capacityKwh float64) models.SimulatedMetrics {
	_ = capacityKwh
	factor := DegradationFactor(odometerKm)
	return models.SimulatedMetrics{
		Voltage:     baseVoltage - voltageDropSpan*factor,
		Temperature: baseTemperature + temperatureSpan*factor,
	}
}
