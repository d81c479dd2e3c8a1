package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vincentbai/behaviortrace/internal/metrics"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans envelopes out to real-time listeners. Listeners that connect
// late get nothing from before they joined.
type Hub struct {
	mu        sync.Mutex
	listeners map[*listener]struct{}
	buffer    int
	closed    bool
}

type listener struct {
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		listeners: map[*listener]struct{}{},
		buffer:    buffer,
	}
}

// ServeHTTP upgrades the request and keeps the listener registered until
// its connection closes. Inbound messages are read and discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	l := &listener{
		conn: conn,
		send: make(chan []byte, h.buffer),
		done: make(chan struct{}),
	}
	if !h.add(l) {
		return
	}
	slog.Info("listener connected", "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		l.writeLoop()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(l)
	<-writerDone
	slog.Info("listener disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) add(l *listener) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.listeners[l] = struct{}{}
	metrics.RelayListenersActive.Inc()
	return true
}

func (h *Hub) remove(l *listener) {
	h.mu.Lock()
	if _, ok := h.listeners[l]; ok {
		delete(h.listeners, l)
		metrics.RelayListenersActive.Dec()
	}
	h.mu.Unlock()
	l.stop()
}

// Broadcast queues msg to every listener with room in its send buffer.
// A listener whose buffer is full misses this message; nobody waits.
func (h *Hub) Broadcast(msg []byte) (pushed, skipped int) {
	h.mu.Lock()
	for l := range h.listeners {
		select {
		case l.send <- msg:
			pushed++
		default:
			skipped++
		}
	}
	h.mu.Unlock()

	metrics.RelayPushed.Add(float64(pushed))
	metrics.RelaySkipped.Add(float64(skipped))
	return pushed, skipped
}

// Len reports the number of registered listeners.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Close disconnects every listener and refuses new ones. Hijacked
// connections are not closed by http.Server.Shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	listeners := make([]*listener, 0, len(h.listeners))
	for l := range h.listeners {
		listeners = append(listeners, l)
	}
	h.mu.Unlock()

	for _, l := range listeners {
		l.stop()
		l.conn.Close()
	}
}

func (l *listener) stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

func (l *listener) writeLoop() {
	for {
		select {
		case msg := <-l.send:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("listener write failed", "error", err)
				l.conn.Close()
				return
			}
		case <-l.done:
			_ = l.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
