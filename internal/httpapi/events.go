package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
)

const (
	eventsBuffer     = 16
	eventsPing       = 30 * time.Second
	eventsWriteLimit = 10 * time.Second
)

type targetEvent struct {
	Type   string        `json:"type"`
	Target domain.Target `json:"target"`
}

// Hub fans target updates out to the websocket connections of their owner.
// Slow connections lose events rather than stall the publisher.
type Hub struct {
	log  *zap.Logger
	mu   sync.Mutex
	subs map[domain.AccountID]map[chan domain.Target]struct{}
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{log: log, subs: make(map[domain.AccountID]map[chan domain.Target]struct{})}
}

func (h *Hub) Publish(t domain.Target) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[t.OwnerID] {
		select {
		case ch <- t:
		default:
			h.log.Debug("event_dropped", zap.String("target_id", string(t.ID)))
		}
	}
}

func (h *Hub) subscribe(id domain.AccountID) (<-chan domain.Target, func()) {
	ch := make(chan domain.Target, eventsBuffer)
	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan domain.Target]struct{})
	}
	h.subs[id][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs[id], ch)
		if len(h.subs[id]) == 0 {
			delete(h.subs, id)
		}
		h.mu.Unlock()
	}
}

// Subscribers counts open streams of an account.
func (h *Hub) Subscribers(id domain.AccountID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}

func (s *Server) upgrader() websocket.Upgrader {
	allowed := s.Options.AllowedOrigins
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowed {
				if o == "*" || strings.EqualFold(o, origin) {
					return true
				}
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return strings.EqualFold(u.Host, r.Host)
		},
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.serveEvents(conn, caller(r))
}

func (s *Server) serveEvents(conn *websocket.Conn, id domain.AccountID) {
	defer conn.Close()
	events, cancel := s.Events.subscribe(id)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventsPing)
	defer ping.Stop()
	for {
		select {
		case t := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteLimit))
			if err := conn.WriteJSON(targetEvent{Type: "target_updated", Target: t}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteLimit)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
