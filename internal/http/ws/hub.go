// README: Websocket hub that nudges connected drivers to reload their jobs.
package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"wecare/internal/types"
)

const (
	TypeRidesChanged = "rides_changed"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 8
)

// Message is the only frame the hub sends. Drivers reload on any of them.
type Message struct {
	Type   string   `json:"type"`
	RideID types.ID `json:"ride_id,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type client struct {
	driverID types.ID
	send     chan []byte
}

type Hub struct {
	mu      sync.RWMutex
	clients map[types.ID]map[*client]struct{}
	log     *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{clients: map[types.ID]map[*client]struct{}{}, log: log}
}

// NotifyDriver never blocks: a client whose buffer is full misses the frame
// and catches up on its next poll.
func (h *Hub) NotifyDriver(driverID, rideID types.ID) {
	frame, err := json.Marshal(Message{Type: TypeRidesChanged, RideID: rideID})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[driverID] {
		select {
		case c.send <- frame:
		default:
			h.log.Warn("driver socket buffer full, frame dropped", "driver_id", driverID)
		}
	}
}

// Connected returns how many sockets driverID has open.
func (h *Hub) Connected(driverID types.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[driverID])
}

// Serve upgrades the request and blocks until the socket closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, driverID types.ID) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{driverID: driverID, send: make(chan []byte, sendBuffer)}
	h.add(c)
	defer h.remove(c)
	h.log.Info("driver socket connected", "driver_id", driverID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		readPump(conn)
	}()
	writePump(conn, c.send, done)
	_ = conn.Close()
	<-done
	h.log.Info("driver socket closed", "driver_id", driverID)
	return nil
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.driverID]
	if set == nil {
		set = map[*client]struct{}{}
		h.clients[c.driverID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[c.driverID], c)
	if len(h.clients[c.driverID]) == 0 {
		delete(h.clients, c.driverID)
	}
}

// readPump only handles control frames; drivers never send data.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case frame := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
