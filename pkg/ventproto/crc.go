// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ventproto

import (
	"encoding/binary"
	"fmt"
)

// CalculateCRC computes the frame CRC-16 (poly 0x1021, init 0xFFFF)
func CalculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// FormatCRC renders a CRC as four uppercase hex digits
func FormatCRC(crc uint16) string {
	return fmt.Sprintf("%04X", crc)
}

// AppendCRC appends the little-endian CRC of buf to buf
func AppendCRC(buf []byte) []byte {
	return binary.LittleEndian.AppendUint16(buf, CalculateCRC(buf))
}

// FrameCRC returns the trailing little-endian CRC field of a frame
func FrameCRC(frame []byte) (uint16, bool) {
	if len(frame) < CRCSize {
		return 0, false
	}
	return binary.LittleEndian.Uint16(frame[len(frame)-CRCSize:]), true
}

// CheckCRC reports whether the trailing CRC matches the preceding bytes.
// Frames with no body in front of the CRC never validate.
func CheckCRC(frame []byte) bool {
	if len(frame) <= CRCSize {
		return false
	}
	received, _ := FrameCRC(frame)
	return received == CalculateCRC(frame[:len(frame)-CRCSize])
}
