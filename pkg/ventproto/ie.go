// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ventproto

import (
	"fmt"
	"math"
)

// I:E fixed-point encoding.
//
// A byte n encodes the inspiratory:expiratory ratio on a piecewise scale
// defined by the ECU firmware:
//
//	n == 0        unset, ratio 0
//	0 < n <= 128  I = 1, E = 256/n - 1
//	n > 128       I = (n/256) / (1 - n/256), E = 1
//
// IEFractionToFixed is not an exact inverse of the decoder; see ie_test.go
// for the lossy region.

// IEFixedMax is the largest encodable fixed-point value
const IEFixedMax = 255

// IEFixedToParts decodes n into its inspiratory and expiratory parts
func IEFixedToParts(n int) (inspiratory, expiratory float64, err error) {
	if n < 0 || n > IEFixedMax {
		return 0, 0, fmt.Errorf("%w: %d", ErrIEOutOfRange, n)
	}
	if n == 0 {
		return 0, 0, nil
	}
	if n <= 128 {
		return 1.0, 256.0/float64(n) - 1.0, nil
	}
	frac := float64(n) / 256.0
	return frac / (1.0 - frac), 1.0, nil
}

// IEFixedToFraction decodes n into the ratio I/E.
// A zero expiratory part yields 0 rather than dividing by zero.
func IEFixedToFraction(n int) (float64, error) {
	i, e, err := IEFixedToParts(n)
	if err != nil {
		return 0, err
	}
	if e == 0 {
		return 0, nil
	}
	return i / e, nil
}

// ClampIEFixed clamps an arbitrary integer into the encodable byte range
func ClampIEFixed(n int) uint8 {
	if n < 0 {
		return 0
	}
	if n > IEFixedMax {
		return IEFixedMax
	}
	return uint8(n)
}

// IEFractionToFixed encodes an I/E ratio as round(256 / (1 + 1/ratio)).
// Non-positive ratios encode as 0 (unset).
func IEFractionToFixed(ratio float64) uint8 {
	if ratio <= 0 || math.IsNaN(ratio) {
		return 0
	}
	return ClampIEFixed(int(math.Round(256.0 / (1.0 + 1.0/ratio))))
}
