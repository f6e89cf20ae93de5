// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ventproto

import "fmt"

// AnomalyType represents different types of telemetry anomalies
type AnomalyType int

const (
	AnomalyInvalidMode AnomalyType = iota
	AnomalyInvalidControlState
	AnomalyInvalidBattery
	AnomalyNegativeValue
	AnomalyPressureOrder
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyInvalidMode:
		return "INVALID_MODE"
	case AnomalyInvalidControlState:
		return "INVALID_CONTROL_STATE"
	case AnomalyInvalidBattery:
		return "INVALID_BATTERY"
	case AnomalyNegativeValue:
		return "NEGATIVE_VALUE"
	case AnomalyPressureOrder:
		return "PRESSURE_ORDER"
	default:
		return "UNKNOWN"
	}
}

// ValidationError represents a telemetry value that decoded cleanly but is
// implausible. Anomalies are reported, they never gate delivery.
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateParams detects anomalous values in a decoded snapshot
// Returns a slice of validation errors (empty if the snapshot is plausible)
func ValidateParams(p Params) []ValidationError {
	errors := []ValidationError{}

	if !p.Mode.Valid() {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidMode,
			Message: fmt.Sprintf("Unknown ventilation mode=%d", p.Mode),
			Details: map[string]interface{}{"mode": uint8(p.Mode)},
		})
	}

	if !p.ControlState.Valid() {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidControlState,
			Message: fmt.Sprintf("Unknown control state=%d", p.ControlState),
			Details: map[string]interface{}{"control_state": uint8(p.ControlState)},
		})
	}

	if p.BatteryLevel > 100 {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidBattery,
			Message: fmt.Sprintf("Battery level=%d%% (max 100)", p.BatteryLevel),
			Details: map[string]interface{}{"battery": p.BatteryLevel, "max": 100},
		})
	}

	nonNegative := []struct {
		name  string
		value float64
	}{
		{"tidal_volume_meas", p.TidalVolumeMeas},
		{"tidal_volume_set", p.TidalVolumeSet},
		{"volume_in", p.VolumeIn},
		{"volume_ex", p.VolumeEx},
		{"peak_pressure", p.PeakPressure},
	}
	for _, f := range nonNegative {
		if f.value < 0 {
			errors = append(errors, ValidationError{
				Type:    AnomalyNegativeValue,
				Message: fmt.Sprintf("Negative %s=%.2f", f.name, f.value),
				Details: map[string]interface{}{"field": f.name, "value": f.value},
			})
		}
	}

	// Plateau is measured during the inspiratory hold and cannot exceed peak
	if p.RunState == RunRunning && p.PlateauPressure > p.PeakPressure {
		errors = append(errors, ValidationError{
			Type:    AnomalyPressureOrder,
			Message: fmt.Sprintf("Plateau %.2f exceeds peak %.2f cmH2O", p.PlateauPressure, p.PeakPressure),
			Details: map[string]interface{}{"plateau": p.PlateauPressure, "peak": p.PeakPressure},
		})
	}

	return errors
}
