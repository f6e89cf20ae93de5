// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ventproto

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func plausibleParams() Params {
	return Params{
		Mode:            ModeVolumeControl,
		RunState:        RunRunning,
		RespRateMeas:    15,
		RespRateSet:     15,
		TidalVolumeMeas: 480,
		TidalVolumeSet:  500,
		PEEP:            5,
		PeakPressure:    25,
		PlateauPressure: 20,
		ControlState:    ControlInhale,
		BatteryLevel:    100,
		ReceivedAt:      time.Now(),
	}
}

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Params)
		want   []AnomalyType
	}{
		{"plausible", func(p *Params) {}, nil},
		{"invalid mode", func(p *Params) { p.Mode = 9 }, []AnomalyType{AnomalyInvalidMode}},
		{"invalid control state", func(p *Params) { p.ControlState = 42 }, []AnomalyType{AnomalyInvalidControlState}},
		{"battery over 100", func(p *Params) { p.BatteryLevel = 101 }, []AnomalyType{AnomalyInvalidBattery}},
		{"negative volumes", func(p *Params) {
			p.VolumeIn = -1
			p.TidalVolumeMeas = -5
		}, []AnomalyType{AnomalyNegativeValue, AnomalyNegativeValue}},
		{"plateau above peak running", func(p *Params) { p.PlateauPressure = 30 }, []AnomalyType{AnomalyPressureOrder}},
		{"plateau above peak stopped", func(p *Params) {
			p.PlateauPressure = 30
			p.RunState = RunStopped
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := plausibleParams()
			tt.mutate(&p)
			var got []AnomalyType
			for _, v := range ValidateParams(p) {
				got = append(got, v.Type)
				assert.NotEmpty(t, v.Error())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateParams_NegativeOrder(t *testing.T) {
	p := plausibleParams()
	p.VolumeEx = -1
	p.TidalVolumeMeas = -1

	errs := ValidateParams(p)
	if assert.Len(t, errs, 2) {
		assert.True(t, strings.Contains(errs[0].Message, "tidal_volume_meas"))
		assert.True(t, strings.Contains(errs[1].Message, "volume_ex"))
	}
}

func TestAnomalyTypeString(t *testing.T) {
	assert.Equal(t, "PRESSURE_ORDER", AnomalyPressureOrder.String())
	assert.Equal(t, "UNKNOWN", AnomalyType(99).String())
}
