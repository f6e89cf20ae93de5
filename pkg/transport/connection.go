// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides the byte streams a link runs over: a local
// serial port or a WebSocket bridge to a remote port.
package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Connection provides a common interface for reading/writing bytes from serial or WebSocket
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// Flusher is implemented by connections that can discard unread input
type Flusher interface {
	ResetInputBuffer() error
}

// ErrConnectionClosed is returned when reading from a closed connection
var ErrConnectionClosed = errors.New("connection closed")

// SerialConnection wraps a serial port. Reads return (0, nil) when the read
// timeout expires with no data.
type SerialConnection struct {
	port serial.Port
	name string
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// ResetInputBuffer discards bytes received but not yet read
func (s *SerialConnection) ResetInputBuffer() error {
	return s.port.ResetInputBuffer()
}

// String describes the connection for status lines
func (s *SerialConnection) String() string {
	return "Serial: " + s.name
}

// OpenSerial opens a serial port at 8N1 with the given read timeout.
// A zero timeout leaves reads blocking.
func OpenSerial(portName string, baudRate int, readTimeout time.Duration) (*SerialConnection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
		}
	}

	return &SerialConnection{port: port, name: fmt.Sprintf("%s @ %d baud", portName, baudRate)}, nil
}

// ListSerialPorts returns the serial devices present on the host
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
