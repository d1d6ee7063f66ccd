package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"yield-vault/internal/config"
	"yield-vault/internal/vault"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Hub broadcasts committed vault events to websocket subscribers as JSON
// records. A subscriber whose buffer fills is disconnected.
type Hub struct {
	log          *zap.Logger
	buffer       int
	writeTimeout time.Duration

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	closed  bool
	evicted atomic.Uint64
}

type subscriber struct {
	ch       chan []byte
	shutdown bool
}

var _ vault.EventSink = (*Hub)(nil)

func NewHub(cfg config.FeedConfig, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Hub{
		log:          log,
		buffer:       buffer,
		writeTimeout: writeTimeout,
		clients:      make(map[*subscriber]struct{}),
	}
}

func (h *Hub) Publish(ctx context.Context, event vault.Event) {
	_ = ctx
	data, err := json.Marshal(event.Record())
	if err != nil {
		h.log.Warn("feed encode failed", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.clients {
		select {
		case sub.ch <- data:
		default:
			delete(h.clients, sub)
			close(sub.ch)
			h.evicted.Add(1)
			h.log.Warn("feed subscriber evicted", zap.Int("buffer", h.buffer))
		}
	}
}

// Clients is the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Evicted() uint64 { return h.evicted.Load() }

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("feed accept failed", zap.Error(err))
		return
	}
	sub := h.register()
	defer h.unregister(sub)

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case data, ok := <-sub.ch:
			if !ok {
				h.closeConn(conn, sub)
				return
			}
			if err := h.write(ctx, conn, data); err != nil {
				h.log.Info("feed subscriber gone", zap.Error(err))
				return
			}
		}
	}
}

func (h *Hub) closeConn(conn *websocket.Conn, sub *subscriber) {
	h.mu.Lock()
	shutdown := sub.shutdown
	h.mu.Unlock()
	if shutdown {
		_ = conn.Close(websocket.StatusGoingAway, "feed shutting down")
		return
	}
	_ = conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.clients {
		sub.shutdown = true
		delete(h.clients, sub)
		close(sub.ch)
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (h *Hub) register() *subscriber {
	sub := &subscriber{ch: make(chan []byte, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.shutdown = true
		close(sub.ch)
		return sub
	}
	h.clients[sub] = struct{}{}
	return sub
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[sub]; ok {
		delete(h.clients, sub)
		close(sub.ch)
	}
}
