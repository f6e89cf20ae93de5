// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ventproto

import "math"

// Fixed-point conversions between ECU wire units and physical units.
// Each pair is an exact inverse within the integer rounding of the wire field.

// ECUToSLM converts a raw flow value to standard litres per minute
func ECUToSLM(raw int32) float64 {
	return float64(raw) * 0.01
}

// SLMToECU converts litres per minute to the raw flow unit
func SLMToECU(slm float64) int32 {
	return int32(math.Round(slm * 100))
}

// ECUToML converts a raw volume to millilitres (the ECU already reports mL)
func ECUToML(raw int32) float64 {
	return float64(raw)
}

// MLToECU converts millilitres to the raw volume unit, truncating
func MLToECU(ml float64) int32 {
	return int32(ml)
}

// ECUToCmH2O converts a raw pressure to cmH2O
func ECUToCmH2O(raw int32) float64 {
	return float64(raw) * 0.01
}

// CmH2OToECU converts cmH2O to the raw pressure unit
func CmH2OToECU(cmh2o float64) int32 {
	return int32(math.Round(cmh2o * 100))
}
