// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/ventilink/pkg/transport"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal, read a plain line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// connectionOpener opens the configured connection. The password is
// resolved once so reconnects never prompt again.
type connectionOpener struct {
	password string
}

func newConnectionOpener() (*connectionOpener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &connectionOpener{}
	if cfg.WebSocket.URL != "" && cfg.WebSocket.Username != "" {
		pw, err := GetPassword()
		if err != nil {
			return nil, err
		}
		o.password = pw
	}
	return o, nil
}

// Open opens either a serial or WebSocket connection based on flags
func (o *connectionOpener) Open(ctx context.Context) (transport.Connection, string, error) {
	if cfg.WebSocket.URL != "" {
		conn, err := transport.OpenWebSocket(ctx, cfg.WebSocket.URL, cfg.WebSocket.Username, o.password, cfg.WebSocket.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, conn.String(), nil
	}

	conn, err := transport.OpenSerial(cfg.Serial.Port, cfg.Serial.Baud, cfg.Serial.ReadTimeout)
	if err != nil {
		return nil, "", err
	}
	return conn, conn.String(), nil
}

// OpenConnection validates the connection flags and opens the link transport
func OpenConnection(ctx context.Context) (transport.Connection, string, *connectionOpener, error) {
	opener, err := newConnectionOpener()
	if err != nil {
		return nil, "", nil, err
	}
	conn, info, err := opener.Open(ctx)
	if err != nil {
		return nil, "", nil, err
	}
	return conn, info, opener, nil
}
