// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package alarm

import (
	"container/heap"
	"sort"
	"time"
)

// Alarm is one detected fault instance awaiting acknowledgment
type Alarm struct {
	ID        string
	Type      Type
	CreatedAt time.Time
}

// Message returns the operator-facing description of the alarm
func (a Alarm) Message() string {
	return a.Type.Message()
}

// Priority returns the static priority of the alarm type
func (a Alarm) Priority() int {
	return a.Type.Priority()
}

type queueItem struct {
	alarm Alarm
	seq   uint64
}

// alarmHeap orders by (priority, insertion sequence)
type alarmHeap []queueItem

func (h alarmHeap) Len() int { return len(h) }

func (h alarmHeap) Less(i, j int) bool {
	pi, pj := h[i].alarm.Priority(), h[j].alarm.Priority()
	if pi != pj {
		return pi < pj
	}
	return h[i].seq < h[j].seq
}

func (h alarmHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *alarmHeap) Push(x any) { *h = append(*h, x.(queueItem)) }

func (h *alarmHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue holds pending alarms with at most one entry per type.
// It is not safe for concurrent use; Manager serializes access.
type Queue struct {
	items   alarmHeap
	pending map[Type]bool
	nextSeq uint64
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{pending: make(map[Type]bool)}
}

// Push enqueues a. It returns false, leaving the queue unchanged, if an
// alarm of the same type is already pending.
func (q *Queue) Push(a Alarm) bool {
	if q.pending[a.Type] {
		return false
	}
	q.pending[a.Type] = true
	heap.Push(&q.items, queueItem{alarm: a, seq: q.nextSeq})
	q.nextSeq++
	return true
}

// Peek returns the most urgent alarm without removing it
func (q *Queue) Peek() (Alarm, bool) {
	if len(q.items) == 0 {
		return Alarm{}, false
	}
	return q.items[0].alarm, true
}

// Pop removes and returns the most urgent alarm
func (q *Queue) Pop() (Alarm, bool) {
	if len(q.items) == 0 {
		return Alarm{}, false
	}
	item := heap.Pop(&q.items).(queueItem)
	delete(q.pending, item.alarm.Type)
	return item.alarm, true
}

// Contains reports whether an alarm of type t is pending
func (q *Queue) Contains(t Type) bool {
	return q.pending[t]
}

// Len returns the number of pending alarms
func (q *Queue) Len() int {
	return len(q.items)
}

// Items returns the pending alarms in service order
func (q *Queue) Items() []Alarm {
	sorted := make(alarmHeap, len(q.items))
	copy(sorted, q.items)
	sort.Sort(sorted)

	alarms := make([]Alarm, len(sorted))
	for i, item := range sorted {
		alarms[i] = item.alarm
	}
	return alarms
}
