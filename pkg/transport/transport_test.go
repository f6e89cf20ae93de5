// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// ScriptedConnection Tests
// ============================================================

func TestScriptedConnection_Reads(t *testing.T) {
	c := NewScriptedConnection(
		Chunk([]byte{1, 2, 3, 4, 5}),
		Timeout(),
		Fail(errors.New("boom")),
	)

	buf := make([]byte, 3)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf[:n])

	n, err = c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, buf[:n])

	n, err = c.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = c.Read(buf)
	assert.EqualError(t, err, "boom")

	_, err = c.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 5, c.ReadCalls())
}

func TestScriptedConnection_Writes(t *testing.T) {
	c := NewScriptedConnection()
	c.FailWrites(nil, errors.New("write failed"))

	n, err := c.Write([]byte{0xAA})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = c.Write([]byte{0xBB})
	assert.Error(t, err)

	_, err = c.Write([]byte{0xCC})
	assert.NoError(t, err)

	assert.Equal(t, [][]byte{{0xAA}, {0xBB}, {0xCC}}, c.Writes())
}

func TestScriptedConnection_Close(t *testing.T) {
	c := NewScriptedConnection(Chunk([]byte{1}))
	var _ Flusher = c
	require.NoError(t, c.ResetInputBuffer())
	assert.Equal(t, 1, c.Flushes())

	require.NoError(t, c.Close())
	assert.True(t, c.Closed())
	_, err := c.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrConnectionClosed)
	_, err = c.Write([]byte{1})
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

// ============================================================
// WebSocket Tests
// ============================================================

func newBridge(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocket_StreamAcrossMessages(t *testing.T) {
	url := newBridge(t, func(conn *websocket.Conn, r *http.Request) {
		conn.WriteMessage(websocket.TextMessage, []byte("bridge ready"))
		conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
		conn.WriteMessage(websocket.BinaryMessage, []byte{4, 5})

		// Echo one frame back
		_, data, err := conn.ReadMessage()
		if err == nil {
			conn.WriteMessage(websocket.BinaryMessage, data)
		}
		conn.ReadMessage()
	})

	ws, err := OpenWebSocket(context.Background(), url, "", "", false)
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, "WebSocket: "+url, ws.String())

	got := make([]byte, 5)
	_, err = io.ReadFull(ws, got)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, got)

	n, err := ws.Write([]byte{9, 8})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	echo := make([]byte, 2)
	_, err = io.ReadFull(ws, echo)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8}, echo)
}

func TestWebSocket_ResetInputBuffer(t *testing.T) {
	url := newBridge(t, func(conn *websocket.Conn, r *http.Request) {
		conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4})
		conn.WriteMessage(websocket.BinaryMessage, []byte{7})
		conn.ReadMessage()
	})

	ws, err := OpenWebSocket(context.Background(), url, "", "", false)
	require.NoError(t, err)
	defer ws.Close()

	buf := make([]byte, 2)
	_, err = io.ReadFull(ws, buf)
	require.NoError(t, err)
	require.NoError(t, ws.ResetInputBuffer())

	n, err := ws.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, buf[:n])
}

func TestWebSocket_BasicAuth(t *testing.T) {
	authHeader := make(chan string, 1)
	url := newBridge(t, func(conn *websocket.Conn, r *http.Request) {
		authHeader <- r.Header.Get("Authorization")
	})

	ws, err := OpenWebSocket(context.Background(), url, "operator", "secret", false)
	require.NoError(t, err)
	defer ws.Close()

	// base64("operator:secret")
	assert.Equal(t, "Basic b3BlcmF0b3I6c2VjcmV0", <-authHeader)
}

func TestWebSocket_ClosedByPeer(t *testing.T) {
	url := newBridge(t, func(conn *websocket.Conn, r *http.Request) {})

	ws, err := OpenWebSocket(context.Background(), url, "", "", false)
	require.NoError(t, err)

	_, err = ws.Read(make([]byte, 4))
	assert.ErrorIs(t, err, ErrConnectionClosed)

	// Subsequent reads fail fast
	_, err = ws.Read(make([]byte, 4))
	assert.ErrorIs(t, err, ErrConnectionClosed)
	ws.Close()
}

func TestOpenWebSocket_BadURL(t *testing.T) {
	tests := []string{"http://example.com", "serial:///dev/ttyUSB0", "://nope"}
	for _, u := range tests {
		_, err := OpenWebSocket(context.Background(), u, "", "", false)
		assert.Error(t, err, u)
	}
}

func TestOpenSerial_MissingPort(t *testing.T) {
	_, err := OpenSerial("/dev/ventilink-does-not-exist", 115200, 0)
	assert.Error(t, err)
}
