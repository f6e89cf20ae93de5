// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Ventilink - ventilator UI/ECU link tool
//
// Monitors and drives the fixed-length binary link between the ventilator
// UI and its ECU: telemetry decoding, alarm tracking, settings commands and
// clinical event logging.

package main

import (
	"os"

	"github.com/Thermoquad/ventilink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
