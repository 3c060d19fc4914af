package models

import (
	"math"

	"github.com/voltsight/twin-gateway/internal/utils"
)

// ChargingHabit is the caller's self-reported charging routine.
type ChargingHabit string

const (
	HabitChargeTo100 ChargingHabit = "Charge to 100%"
	HabitChargeTo80  ChargingHabit = "Charge to 80%"
	HabitIrregular   ChargingHabit = "Irregular"
)

// MissingParametersMessage is returned to callers whose guided input fails validation.
const MissingParametersMessage = "Missing required analysis parameters."

// GuidedInput is the guided-form description of a battery submitted for analysis.
type GuidedInput struct {
	VehicleModel        string        `json:"vehicleModel"`
	OriginalCapacityKwh float64       `json:"originalCapacityKwh"`
	OdometerKm          float64       `json:"odometerKm"`
	ChargingHabit       ChargingHabit `json:"chargingHabit"`
}

// Validate checks that every field is present and non-zero, and that numbers are finite
// and non-negative. Unrecognised charging habits are accepted.
func (in GuidedInput) Validate() error {
	const op = "models.GuidedInput.Validate"
	switch {
	case in.VehicleModel == "":
		return utils.NewKindError(utils.KindBadRequest, op, "vehicleModel is required", nil)
	case !positive(in.OriginalCapacityKwh):
		return utils.NewKindError(utils.KindBadRequest, op, "originalCapacityKwh must be a positive number", nil)
	case !positive(in.OdometerKm):
		return utils.NewKindError(utils.KindBadRequest, op, "odometerKm must be a positive number", nil)
	case in.ChargingHabit == "":
		return utils.NewKindError(utils.KindBadRequest, op, "chargingHabit is required", nil)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// SimulatedMetrics is the synthetic sensor context derived from odometer distance.
type SimulatedMetrics struct {
	Voltage     float64 `json:"voltage"`
	Temperature float64 `json:"temperature"`
}
