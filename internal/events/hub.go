// Package events fans committed game events out to live subscribers and
// other sinks.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"hodlhunt/internal/game"

	"github.com/gorilla/websocket"
)

const (
	subscriberBuffer = 64
	writeWait        = 5 * time.Second
	pongWait         = 60 * time.Second
	pingEvery        = pongWait * 9 / 10
)

// Hub broadcasts events to websocket subscribers. A subscriber whose buffer
// is full is dropped rather than allowed to stall publishers.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	send  chan []byte
	kinds map[string]bool
}

func (s *subscriber) wants(kind string) bool {
	return len(s.kinds) == 0 || s.kinds[kind]
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: map[*subscriber]struct{}{},
	}
}

func (h *Hub) Publish(_ context.Context, events []game.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			h.log.Error("encode event", "kind", ev.Kind, "err", err)
			continue
		}
		for sub := range h.subs {
			if !sub.wants(ev.Kind) {
				continue
			}
			select {
			case sub.send <- raw:
			default:
				h.log.Warn("dropping slow event subscriber")
				h.removeLocked(sub)
			}
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) add(kinds []string) *subscriber {
	sub := &subscriber{send: make(chan []byte, subscriberBuffer), kinds: map[string]bool{}}
	for _, k := range kinds {
		if k = strings.TrimSpace(k); k != "" {
			sub.kinds[k] = true
		}
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *subscriber) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.send)
}

// ServeHTTP upgrades the request and streams events as JSON text frames.
// The optional kinds query parameter filters by comma-separated event kind.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	var kinds []string
	if q := r.URL.Query().Get("kinds"); q != "" {
		kinds = strings.Split(q, ",")
	}
	sub := h.add(kinds)
	defer h.remove(sub)
	h.log.Debug("event subscriber joined", "remote", r.RemoteAddr, "kinds", kinds)

	// The reader only services control frames and notices disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(1024)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case msg, ok := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
