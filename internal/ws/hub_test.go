package ws

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDrop_ClosesSendWhileRunning(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	client := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.register <- client

	hub.drop(client)

	// The run loop closes a dropped client's send channel.
	select {
	case _, ok := <-client.send:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed after drop")
	}
}

func TestDrop_ReturnsAfterStop(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	client := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.register <- client

	hub.Stop()

	// With the run loop gone, nothing receives on unregister; drop must not
	// block a disconnecting client's read pump.
	done := make(chan struct{})
	go func() {
		hub.drop(client)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drop blocked after hub stop")
	}
}
