// README: Listens on the driver websocket and reloads the job list on each nudge.
package client

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"wecare/internal/http/ws"
	"wecare/internal/types"
)

const DefaultReconnectDelay = 5 * time.Second

// Notifier keeps one socket open to the API and calls onChange for every
// rides_changed frame. It reconnects after a fixed delay until ctx ends.
type Notifier struct {
	url      string
	header   http.Header
	onChange func(ctx context.Context, rideID types.ID)
	log      *slog.Logger
	delay    time.Duration
	dialer   *websocket.Dialer
}

func NewNotifier(wsURL, token string, onChange func(ctx context.Context, rideID types.ID), log *slog.Logger) *Notifier {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		url:      wsURL,
		header:   h,
		onChange: onChange,
		log:      log,
		delay:    DefaultReconnectDelay,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (n *Notifier) Run(ctx context.Context) {
	for {
		if err := n.listen(ctx); err != nil && ctx.Err() == nil {
			n.log.DebugContext(ctx, "driver socket dropped", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(n.delay):
		}
	}
}

func (n *Notifier) listen(ctx context.Context) error {
	conn, _, err := n.dialer.DialContext(ctx, n.url, n.header)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg ws.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			n.log.WarnContext(ctx, "bad frame on driver socket", "error", err)
			continue
		}
		if msg.Type == ws.TypeRidesChanged {
			n.onChange(ctx, msg.RideID)
		}
	}
}
