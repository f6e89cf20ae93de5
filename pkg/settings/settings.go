// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package settings holds the operator's ventilation configuration.
package settings

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/ventilink/pkg/ventproto"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid settings")

// IERatio is an I/E fraction from IERatioTable
type IERatio struct {
	Label    string
	Fraction float64
}

// IERatioTable lists the selectable I:E ratios. Settings.IERatio indexes it.
var IERatioTable = []IERatio{
	{"1:4", 1.0 / 4.0},
	{"1:3", 1.0 / 3.0},
	{"1:2", 1.0 / 2.0},
	{"1:1.5", 1.0 / 1.5},
	{"1:1", 1.0},
	{"1.5:1", 1.5},
	{"2:1", 2.0},
}

// DefaultIERatio is the 1:2 entry
const DefaultIERatio = 2

// Limits
const (
	MinRespRate    = 4
	MaxRespRate    = 60
	MinTidalVolume = 50
	MaxTidalVolume = 2000
	MaxPressure    = 80.0 // cmH2O
)

// Settings is the desired ventilation configuration.
// It has no reference fields, so plain assignment copies it.
type Settings struct {
	Mode         ventproto.VentMode
	RunState     ventproto.RunState
	RespRate     int     // breaths/min
	TidalVolume  int     // mL
	IERatio      int     // index into IERatioTable
	Pressure     float64 // cmH2O
	HighPressure float64 // cmH2O
	LowPressure  float64 // cmH2O
	HighVolume   int     // mL
	HighRespRate int     // breaths/min
}

// Default returns a conservative volume-control configuration, stopped
func Default() Settings {
	return Settings{
		Mode:         ventproto.ModeVolumeControl,
		RunState:     ventproto.RunStopped,
		RespRate:     15,
		TidalVolume:  500,
		IERatio:      DefaultIERatio,
		Pressure:     20,
		HighPressure: 40,
		LowPressure:  5,
		HighVolume:   800,
		HighRespRate: 30,
	}
}

// IEFraction returns the selected I/E fraction
func (s Settings) IEFraction() float64 {
	if s.IERatio < 0 || s.IERatio >= len(IERatioTable) {
		return 0
	}
	return IERatioTable[s.IERatio].Fraction
}

// IELabel returns the selected ratio as "I:E"
func (s Settings) IELabel() string {
	if s.IERatio < 0 || s.IERatio >= len(IERatioTable) {
		return "--"
	}
	return IERatioTable[s.IERatio].Label
}

// IERatioIndex looks up a ratio by its label, e.g. "1:2"
func IERatioIndex(label string) (int, bool) {
	for i, r := range IERatioTable {
		if r.Label == label {
			return i, true
		}
	}
	return 0, false
}

// Validate checks ranges and enum values
func (s Settings) Validate() error {
	switch {
	case !s.Mode.Valid():
		return fmt.Errorf("%w: unknown mode %d", ErrInvalid, s.Mode)
	case s.RunState != ventproto.RunStopped && s.RunState != ventproto.RunRunning:
		return fmt.Errorf("%w: unknown run state %d", ErrInvalid, s.RunState)
	case s.RespRate < MinRespRate || s.RespRate > MaxRespRate:
		return fmt.Errorf("%w: resp rate %d outside %d-%d", ErrInvalid, s.RespRate, MinRespRate, MaxRespRate)
	case s.TidalVolume < MinTidalVolume || s.TidalVolume > MaxTidalVolume:
		return fmt.Errorf("%w: tidal volume %d outside %d-%d mL", ErrInvalid, s.TidalVolume, MinTidalVolume, MaxTidalVolume)
	case s.IERatio < 0 || s.IERatio >= len(IERatioTable):
		return fmt.Errorf("%w: I:E index %d", ErrInvalid, s.IERatio)
	case s.Pressure < 0 || s.Pressure > MaxPressure:
		return fmt.Errorf("%w: pressure %.2f outside 0-%.0f cmH2O", ErrInvalid, s.Pressure, MaxPressure)
	case s.LowPressure < 0 || s.HighPressure > MaxPressure || s.LowPressure >= s.HighPressure:
		return fmt.Errorf("%w: pressure limits %.2f-%.2f", ErrInvalid, s.LowPressure, s.HighPressure)
	case s.HighVolume < s.TidalVolume || s.HighVolume > 0xFFFF:
		return fmt.Errorf("%w: high volume limit %d below tidal volume %d", ErrInvalid, s.HighVolume, s.TidalVolume)
	case s.HighRespRate < s.RespRate || s.HighRespRate > 0xFFFF:
		return fmt.Errorf("%w: high resp rate limit %d below resp rate %d", ErrInvalid, s.HighRespRate, s.RespRate)
	}
	return nil
}
