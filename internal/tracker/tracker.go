// Package tracker captures user behaviour on a page: pointer movement,
// clicks, hover dwell, scroll depth, and product visibility. Signals arrive
// from a page.Document; envelopes leave through a Transport.
//
// A Tracker serializes all of its handlers and deferred callbacks behind a
// single mutex, so capture state is only ever touched by one of them at a
// time, like a page's event loop.
package tracker

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/vincentbai/behaviortrace/internal/models"
	"github.com/vincentbai/behaviortrace/internal/page"
)

var (
	ErrNoDocument     = errors.New("tracker: document with a root element is required")
	ErrAlreadyStarted = errors.New("tracker: already started")
	ErrStopped        = errors.New("tracker: stopped")
)

type Tracker struct {
	mu sync.Mutex

	doc       *page.Document
	opts      Options
	clock     Clock
	transport Transport
	matcher   ProductMatcher
	logger    *slog.Logger
	newID     func() string

	session  *Session
	sink     *Sink
	products []Product

	// measured once at start
	viewportHeight float64
	pageHeight     float64

	capture  *interactionCapture
	viewport *viewportMonitor
	activity *activityTracker

	subs    []*page.Subscription
	started bool
	stopped bool
}

// New constructs a tracker for doc. Nothing is observed until Start.
func New(doc *page.Document, opts ...Option) (*Tracker, error) {
	if doc == nil || doc.Root() == nil {
		return nil, ErrNoDocument
	}
	t := &Tracker{
		doc:     doc,
		opts:    DefaultOptions(),
		clock:   SystemClock{},
		matcher: HeuristicMatcher{},
		logger:  slog.Default(),
		newID:   NewSessionID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	if t.transport == nil && IsHTTPEndpoint(t.opts.Endpoint) {
		t.transport = NewHTTPTransport(t.opts.Endpoint, t.opts.SendTimeout, t.logger)
	}
	t.session = NewSession(t.newID(), t.clock.Now())
	return t, nil
}

// Start measures the page, detects products, subscribes to signals and
// intersection changes, reports the page view and starts the heartbeat.
// Initial intersection entries are delivered before Start returns.
func (t *Tracker) Start() error {
	if err := t.start(); err != nil {
		return err
	}
	t.doc.UpdateIntersections()
	return nil
}

func (t *Tracker) start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return ErrStopped
	}
	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true

	_, t.viewportHeight = t.doc.Viewport()
	t.pageHeight = t.doc.Height()

	if t.transport == nil {
		t.logger.Info("no collection endpoint, logging events only", "endpoint", t.opts.Endpoint)
	}
	t.sink = NewSink(t.session.ID(), t.doc.URL, t.clock, t.transport, t.opts.QueueSize, t.logger)
	t.products = Detect(t.doc.Root(), t.matcher)
	t.logger.Info("tracker started", "session_id", t.session.ID(), "products", len(t.products))

	t.capture = newInteractionCapture(t)
	t.viewport = newViewportMonitor(t)
	t.activity = newActivityTracker(t)

	t.listen(page.SignalPointerMove, t.capture.onPointerMove)
	t.listen(page.SignalClick, t.capture.onClick)
	t.listen(page.SignalMouseOver, t.capture.onMouseOver)
	t.listen(page.SignalMouseOut, t.capture.onMouseOut)
	t.listen(page.SignalScroll, t.capture.onScroll)
	t.listen(page.SignalVisibilityChange, func(page.Signal) { t.activity.onVisibilityChange() })
	t.listen(page.SignalBeforeUnload, func(page.Signal) { t.flush() })
	t.viewport.observe()

	t.sink.Emit(models.EventPageView, models.PageViewPayload{
		Title:    t.doc.Title(),
		Referrer: t.doc.Referrer(),
	})
	t.activity.start()
	return nil
}

func (t *Tracker) listen(kind page.SignalKind, fn func(page.Signal)) {
	t.subs = append(t.subs, t.doc.AddListener(kind, func(s page.Signal) {
		t.exec(func() { fn(s) })
	}))
}

// exec runs fn under the tracker lock unless the tracker has stopped.
func (t *Tracker) exec(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	fn()
}

// flush sends the accumulated buffers as session_end. It runs inside the
// teardown handler, so it only hands the envelope to a beacon. Samples
// waiting on an open rate-limit window are not included.
func (t *Tracker) flush() {
	t.sink.EmitBeacon(models.EventSessionEnd, t.session.Snapshot())
}

// Stop releases every subscription and timer and waits for queued
// deliveries. The tracker cannot be restarted.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if !t.started {
		return
	}

	for _, s := range t.subs {
		s.Unsubscribe()
	}
	t.subs = nil
	t.viewport.stop()
	t.capture.stop()
	t.activity.stop()
	t.sink.Close()
	t.logger.Info("tracker stopped",
		"session_id", t.session.ID(),
		"duration", t.clock.Now().Sub(t.session.StartedAt()))
}

func (t *Tracker) SessionID() string {
	return t.session.ID()
}

// Products returns a copy of the detected registry.
func (t *Tracker) Products() []Product {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Product(nil), t.products...)
}

// Snapshot returns the session buffers as they would be flushed now.
func (t *Tracker) Snapshot() models.SessionEndPayload {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.Snapshot()
}

func (t *Tracker) nowMillis() int64 {
	return t.clock.Now().UnixMilli()
}
