package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wecare/internal/http/ws"
	"wecare/internal/types"
)

func TestNotifierCallsOnChange(t *testing.T) {
	hub := ws.NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = hub.Serve(w, r, "d1")
	}))
	defer srv.Close()

	got := make(chan types.ID, 1)
	n := NewNotifier("ws"+strings.TrimPrefix(srv.URL, "http"), "tok", func(_ context.Context, rideID types.ID) {
		got <- rideID
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.Run(ctx)
	}()

	require.Eventually(t, func() bool { return hub.Connected("d1") == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.NotifyDriver("d2", "R9")
	hub.NotifyDriver("d1", "R1")

	select {
	case id := <-got:
		assert.Equal(t, types.ID("R1"), id)
	case <-time.After(2 * time.Second):
		t.Fatal("no rides_changed frame received")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier did not stop")
	}
	require.Eventually(t, func() bool { return hub.Connected("d1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
