// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package alarm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypes_Table(t *testing.T) {
	types := Types()
	assert.Len(t, types, 16)

	// Priorities form a total order 0..15
	seen := make(map[int]Type)
	for _, typ := range types {
		p := typ.Priority()
		if other, dup := seen[p]; dup {
			t.Errorf("%s and %s share priority %d", typ, other, p)
		}
		seen[p] = typ
		assert.NotEmpty(t, typ.Message())
	}
	for p := 0; p < 16; p++ {
		assert.Contains(t, seen, p)
	}

	assert.Equal(t, 0, ACPowerLoss.Priority())
	assert.Equal(t, 15, SetpointMismatch.Priority())
}

func TestTypeForBit(t *testing.T) {
	tests := []struct {
		bit   int
		want  Type
		known bool
	}{
		{0, ACPowerLoss, true},
		{3, HighPressure, true},
		{12, ECUCommsCRCError, true},
		{13, 0, false},
		{15, 0, false},
		{16, ActuatorFault, true},
		{17, CircuitDisconnect, true},
		{18, 0, false},
		{19, SetpointMismatch, true},
		{20, 0, false},
		{31, 0, false},
		{32, 0, false},
		{-1, 0, false},
	}
	for _, tt := range tests {
		got, ok := TypeForBit(tt.bit)
		assert.Equal(t, tt.known, ok, "bit %d", tt.bit)
		if tt.known {
			assert.Equal(t, tt.want, got, "bit %d", tt.bit)
			assert.Equal(t, tt.bit, got.Bit())
		}
	}
}

func TestKnownMask(t *testing.T) {
	assert.Equal(t, uint32(0x000B1FFF), KnownMask)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "AC_POWER_LOSS", ACPowerLoss.String())
	assert.Equal(t, "UNKNOWN_14", Type(14).String())
	assert.False(t, Type(14).Valid())
	assert.Equal(t, uint32(0), Type(40).Mask())
}
