package broadcast

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tuannvm/jira-dashboard/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	defaultBuffer = 16
)

// Hub fans messages out to every subscriber of a named channel. Subscribers
// that fall behind are dropped so a publisher never blocks.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*subscriber]struct{}
	closed   bool
	buffer   int
	upgrader websocket.Upgrader
}

type subscriber struct {
	ch   chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Option configures a Hub
type Option func(*Hub)

// WithBuffer sets the per-subscriber queue length
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithCheckOrigin overrides the websocket origin check
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHub creates an empty hub
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		channels: make(map[string]map[*subscriber]struct{}),
		buffer:   defaultBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish encodes v as JSON and delivers it to all current subscribers of channel
func (h *Hub) Publish(channel string, v interface{}) error {
	var msg []byte
	switch val := v.(type) {
	case []byte:
		msg = val
	case json.RawMessage:
		msg = val
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode broadcast message: %w", err)
		}
		msg = b
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	for sub := range h.channels[channel] {
		select {
		case sub.ch <- msg:
		default:
			logging.Warnf("Dropping slow subscriber on channel %s", channel)
			delete(h.channels[channel], sub)
			sub.close()
		}
	}
	return nil
}

// Subscribe registers an in-process consumer. The returned channel is closed
// when cancel is called, when the subscriber is dropped, or when the hub closes.
func (h *Hub) Subscribe(channel string) (<-chan []byte, func()) {
	sub := &subscriber{ch: make(chan []byte, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*subscriber]struct{})
	}
	h.channels[channel][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.channels[channel]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.channels, channel)
			}
		}
		h.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// Subscribers returns the number of live subscribers on channel
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Close disconnects every subscriber. Later publishes are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for name, subs := range h.channels {
		for sub := range subs {
			sub.close()
		}
		delete(h.channels, name)
	}
}

// ServeWS upgrades the request and streams channel messages to the client
// until either side goes away
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, channel string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnf("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	msgs, cancel := h.Subscribe(channel)
	defer cancel()
	logging.Debugf("Websocket client %s subscribed to %s", r.RemoteAddr, channel)

	done := make(chan struct{})
	go readPump(conn, done)
	writePump(conn, msgs, done)
}

// readPump discards client messages and keeps the read deadline fresh
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
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

func writePump(conn *websocket.Conn, msgs <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgs:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
