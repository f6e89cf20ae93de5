// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"io"
	"sync"
	"time"
)

// ReadStep is one scripted result for ScriptedConnection.Read
type ReadStep struct {
	Data []byte
	Err  error
}

// Chunk returns a step delivering data, split across reads if p is smaller
func Chunk(data []byte) ReadStep {
	return ReadStep{Data: append([]byte{}, data...)}
}

// Timeout returns a step where the read times out with no data
func Timeout() ReadStep {
	return ReadStep{}
}

// Fail returns a step where the read fails with err
func Fail(err error) ReadStep {
	return ReadStep{Err: err}
}

// ScriptedConnection replays a fixed sequence of read results and records
// writes, for running links without hardware. When the script is exhausted
// Read returns io.EOF. ResetInputBuffer is counted but discards nothing.
type ScriptedConnection struct {
	mu          sync.Mutex
	steps       []ReadStep
	writes      [][]byte
	writeErrs   []error
	flushes     int
	readCalls   int
	readTimeout time.Duration
	closed      bool
}

// NewScriptedConnection creates a connection that replays steps in order
func NewScriptedConnection(steps ...ReadStep) *ScriptedConnection {
	return &ScriptedConnection{steps: steps}
}

// Append adds steps to the end of the script
func (c *ScriptedConnection) Append(steps ...ReadStep) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, steps...)
}

// FailWrites queues per-write results; nil entries succeed
func (c *ScriptedConnection) FailWrites(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErrs = append(c.writeErrs, errs...)
}

func (c *ScriptedConnection) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readCalls++

	if c.closed {
		return 0, ErrConnectionClosed
	}
	if len(c.steps) == 0 {
		return 0, io.EOF
	}

	step := c.steps[0]
	if step.Err != nil || len(step.Data) == 0 {
		c.steps = c.steps[1:]
		return 0, step.Err
	}

	n := copy(p, step.Data)
	if n < len(step.Data) {
		c.steps[0].Data = step.Data[n:]
	} else {
		c.steps = c.steps[1:]
	}
	return n, nil
}

func (c *ScriptedConnection) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrConnectionClosed
	}
	c.writes = append(c.writes, append([]byte{}, p...))

	if len(c.writeErrs) > 0 {
		err := c.writeErrs[0]
		c.writeErrs = c.writeErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (c *ScriptedConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// ResetInputBuffer implements Flusher
func (c *ScriptedConnection) ResetInputBuffer() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushes++
	return nil
}

// SetReadTimeout records the timeout; scripted reads never block
func (c *ScriptedConnection) SetReadTimeout(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readTimeout = d
	return nil
}

// Writes returns copies of every attempted write, failed ones included
func (c *ScriptedConnection) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// Flushes returns the number of ResetInputBuffer calls
func (c *ScriptedConnection) Flushes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes
}

// ReadCalls returns the number of Read calls
func (c *ScriptedConnection) ReadCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readCalls
}

// Closed reports whether Close was called
func (c *ScriptedConnection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
