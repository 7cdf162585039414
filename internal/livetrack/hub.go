package livetrack

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sentinel/internal/location"
	"sentinel/pkg/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// LocationSink mirrors pings to the shared store so guardians can read the
// last known position. Satisfied by store.Client.
type LocationSink interface {
	SaveLastKnownLocation(ctx context.Context, userID string, loc models.Location) error
}

type ControlMessage struct {
	Type      string  `json:"type"`
	UserID    string  `json:"user_id,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Address   string  `json:"address,omitempty"`
	Success   bool    `json:"success,omitempty"`
	Message   string  `json:"message,omitempty"`
}

type locationUpdate struct {
	Type     string          `json:"type"`
	UserID   string          `json:"user_id"`
	Location models.Location `json:"location"`
	At       time.Time       `json:"at"`
}

type watcher struct {
	id       string
	conn     *websocket.Conn
	mu       sync.Mutex
	lastSeen time.Time
}

func (w *watcher) send(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

// Hub carries live location sharing: devices publish pings while an alert
// is active, guardian watchers subscribe per protected user. The last
// position is cached and replayed to newly connected watchers.
type Hub struct {
	chain   *location.Chain
	reports *location.DeviceReports
	sink    LocationSink

	mu       sync.RWMutex
	watchers map[string]map[string]*watcher
	last     map[string]locationUpdate
	stop     chan struct{}
}

func NewHub(chain *location.Chain, reports *location.DeviceReports, sink LocationSink) *Hub {
	h := &Hub{
		chain:    chain,
		reports:  reports,
		sink:     sink,
		watchers: make(map[string]map[string]*watcher),
		last:     make(map[string]locationUpdate),
		stop:     make(chan struct{}),
	}
	go h.cleanupDeadSessions()
	return h
}

// HandleWebSocket serves both roles: ?role=publisher streams pings in,
// ?role=watcher&user=<id> streams updates out.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	role := r.URL.Query().Get("role")
	userID := r.URL.Query().Get("user")
	if userID == "" {
		userID = models.OfflineUserID
	}

	if role == "watcher" {
		h.serveWatcher(conn, userID)
		return
	}
	h.servePublisher(conn, userID)
}

func (h *Hub) servePublisher(conn *websocket.Conn, userID string) {
	log.Printf("📡 Publisher connected: %s", userID)

	for {
		var msg ControlMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		switch msg.Type {
		case "location":
			loc := models.Location{
				Latitude:  msg.Latitude,
				Longitude: msg.Longitude,
				Accuracy:  msg.Accuracy,
				Address:   msg.Address,
			}
			if msg.UserID != "" {
				userID = msg.UserID
			}
			h.Publish(userID, loc)

		case "ping":
			conn.WriteJSON(ControlMessage{Type: "pong"})
		}
	}

	log.Printf("🔌 Publisher disconnected: %s", userID)
}

func (h *Hub) serveWatcher(conn *websocket.Conn, userID string) {
	w := &watcher{
		id:       uuid.NewString(),
		conn:     conn,
		lastSeen: time.Now(),
	}

	h.mu.Lock()
	if h.watchers[userID] == nil {
		h.watchers[userID] = make(map[string]*watcher)
	}
	h.watchers[userID][w.id] = w
	replay, hasLast := h.last[userID]
	h.mu.Unlock()

	log.Printf("👁️  Watcher %s subscribed to %s", w.id, userID)

	if hasLast {
		w.send(replay)
	}

	for {
		var msg ControlMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		h.mu.Lock()
		w.lastSeen = time.Now()
		h.mu.Unlock()

		if msg.Type == "ping" {
			w.send(ControlMessage{Type: "pong"})
		}
	}

	h.mu.Lock()
	delete(h.watchers[userID], w.id)
	h.mu.Unlock()
	log.Printf("🔌 Watcher %s disconnected", w.id)
}

// Publish records a device ping, feeds the location fallback chain, mirrors
// it best-effort to the store and broadcasts it to the user's watchers.
func (h *Hub) Publish(userID string, loc models.Location) {
	if loc.IsZero() {
		return
	}

	h.reports.Record(userID, loc)
	h.chain.Remember(loc)

	update := locationUpdate{
		Type:     "location_update",
		UserID:   userID,
		Location: loc,
		At:       time.Now(),
	}

	h.mu.Lock()
	h.last[userID] = update
	targets := make([]*watcher, 0, len(h.watchers[userID]))
	for _, w := range h.watchers[userID] {
		targets = append(targets, w)
	}
	h.mu.Unlock()

	for _, w := range targets {
		if err := w.send(update); err != nil {
			log.Printf("⚠️  Failed to push update to watcher %s: %v", w.id, err)
		}
	}

	if h.sink != nil && userID != models.OfflineUserID {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.sink.SaveLastKnownLocation(ctx, userID, loc); err != nil {
			log.Printf("⚠️  Failed to mirror location for %s: %v", userID, err)
		}
	}
}

// WatcherCount reports active watcher sessions, for the stats endpoint.
func (h *Hub) WatcherCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, set := range h.watchers {
		count += len(set)
	}
	return count
}

func (h *Hub) cleanupDeadSessions() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.mu.Lock()
			for userID, set := range h.watchers {
				for id, w := range set {
					if time.Since(w.lastSeen) > 2*time.Minute {
						w.conn.Close()
						delete(set, id)
						log.Printf("🧹 Dropped stale watcher %s of %s", id, userID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Close() {
	close(h.stop)
}
