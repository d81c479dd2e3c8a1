package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/vincentbai/behaviortrace/internal/metrics"
	"github.com/vincentbai/behaviortrace/internal/models"
)

// Sink builds envelopes, logs each one, and delivers it best-effort.
// Regular events go through a bounded queue drained by one worker; a full
// queue drops the event. Beacon events bypass the queue.
// A nil transport means console-only delivery.
type Sink struct {
	sessionID string
	url       func() string
	clock     Clock
	transport Transport
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan []byte
	done   chan struct{}
}

func NewSink(sessionID string, url func() string, clock Clock, transport Transport, queueSize int, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	s := &Sink{
		sessionID: sessionID,
		url:       url,
		clock:     clock,
		transport: transport,
		logger:    logger,
		queue:     make(chan []byte, queueSize),
		done:      make(chan struct{}),
	}
	go s.deliver()
	return s
}

// Emit sends an event through the regular best-effort path.
func (s *Sink) Emit(eventType models.EventType, payload any) {
	body, ok := s.build(eventType, payload)
	if !ok || s.transport == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- body:
	default:
		metrics.DeliveriesDropped.Inc()
		s.logger.Warn("delivery queue full, event dropped", "event_type", eventType)
	}
}

// EmitBeacon sends an event with no acknowledgment. It never blocks on the
// network, so it is safe inside a teardown handler.
func (s *Sink) EmitBeacon(eventType models.EventType, payload any) {
	body, ok := s.build(eventType, payload)
	if !ok || s.transport == nil {
		return
	}
	s.transport.Beacon(body)
}

func (s *Sink) build(eventType models.EventType, payload any) ([]byte, bool) {
	env, err := models.NewEnvelope(s.sessionID, eventType, s.url(), s.clock.Now().UnixMilli(), payload)
	if err != nil {
		s.logger.Error("build envelope", "event_type", eventType, "error", err)
		return nil, false
	}
	metrics.EventsEmitted.WithLabelValues(string(eventType)).Inc()
	s.logger.Info("analytics event", "envelope", env)

	body, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("marshal envelope", "event_type", eventType, "error", err)
		return nil, false
	}
	return body, true
}

func (s *Sink) deliver() {
	defer close(s.done)
	for body := range s.queue {
		if err := s.transport.Send(context.Background(), body); err != nil {
			metrics.DeliveryFailures.Inc()
			s.logger.Debug("event delivery failed", "error", err)
		}
	}
}

// Close stops accepting events and waits for queued deliveries to finish.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
}
