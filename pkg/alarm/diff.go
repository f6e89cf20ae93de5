// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package alarm

// EventKind is the direction of an alarm bit transition
type EventKind int

const (
	Activated EventKind = iota
	Cleared
)

func (k EventKind) String() string {
	if k == Activated {
		return "ACTIVATED"
	}
	return "CLEARED"
}

// Event is one bit transition between two alarm fields
type Event struct {
	Kind  EventKind
	Bit   int
	Type  Type
	Known bool
}

// Diff lists the bit transitions from prev to next in ascending bit order.
// Reserved bits are reported with Known false.
func Diff(prev, next uint32) []Event {
	changed := prev ^ next
	if changed == 0 {
		return nil
	}

	var events []Event
	for bit := 0; bit < 32; bit++ {
		mask := uint32(1) << uint(bit)
		if changed&mask == 0 {
			continue
		}
		t, known := TypeForBit(bit)
		kind := Cleared
		if next&mask != 0 {
			kind = Activated
		}
		events = append(events, Event{Kind: kind, Bit: bit, Type: t, Known: known})
	}
	return events
}
