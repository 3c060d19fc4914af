package engine

import "github.com/voltsight/twin-gateway/internal/models"

const unspecifiedHabitContext = "User charging habit not specified."

// ChargingHabitContext interprets a charging habit as a sentence for the prompt. Any value
// outside the three known habits yields the unspecified sentence.
func ChargingHabitContext(habit models.ChargingHabit) string {
	switch habit {
	case models.HabitChargeTo100:
		return "The user reports a typical charging habit of 'Charge to 100%'. Holding lithium-ion cells at a high state of charge adds stress and can accelerate capacity fade over time."
	case models.HabitChargeTo80:
		return "The user follows the best practice of charging to 80% for daily use. This keeps cell stress low and is optimal for long-term health."
	case models.HabitIrregular:
		return "The user reports irregular charging habits. This may involve frequent deep discharges or long periods parked at very high or very low states of charge, which can be detrimental."
	default:
		return unspecifiedHabitContext
	}
}
