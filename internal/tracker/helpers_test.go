package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vincentbai/behaviortrace/internal/models"
	"github.com/vincentbai/behaviortrace/internal/page"
)

var testStart = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// recordingTransport keeps every delivered envelope. Send may be told to
// fail; beacons are recorded synchronously.
type recordingTransport struct {
	mu      sync.Mutex
	sent    []models.Envelope
	beacons []models.Envelope
	fail    error
}

func (r *recordingTransport) Send(_ context.Context, body []byte) error {
	var env models.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, env)
	return r.fail
}

func (r *recordingTransport) Beacon(body []byte) {
	var env models.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beacons = append(r.beacons, env)
}

func (r *recordingTransport) Sent(eventType models.EventType) []models.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Envelope
	for _, env := range r.sent {
		if env.EventType == eventType {
			out = append(out, env)
		}
	}
	return out
}

func (r *recordingTransport) All() []models.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(append([]models.Envelope(nil), r.sent...), r.beacons...)
}

// syncBuffer is a log sink safe for concurrent writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Lines() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	dec := json.NewDecoder(bytes.NewReader(b.buf.Bytes()))
	for {
		var line map[string]any
		if err := dec.Decode(&line); err != nil {
			return out
		}
		out = append(out, line)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// catalogPage: a breadcrumb, one confirmed product below the fold, one
// incidental "product" class with no price or title, and a plain link.
func catalogPage() *page.Document {
	root := page.NewElement("body", nil,
		page.NewElement("nav", page.Attrs{"class": "breadcrumb"},
			page.NewElement("a", page.Attrs{"href": "/"}, "Home"),
			page.NewElement("a", page.Attrs{"href": "/shoes"}, "Shoes"),
		),
		page.NewElement("a", page.Attrs{"id": "help", "href": "/help"}, "Help"),
		page.NewElement("div", page.Attrs{"class": "product-filters"}, "Filter by size"),
		page.NewElement("div", page.Attrs{"id": "product-7", "class": "product"},
			page.NewElement("h2", nil, "Trail Runner"),
			page.NewElement("span", page.Attrs{"class": "price"}, "$120"),
			page.NewElement("button", page.Attrs{"id": "buy", "type": "button"}, "Add to cart"),
		),
	)
	doc := page.NewDocument(root, "https://shop.example/shoes")
	doc.SetTitle("Shoes")
	doc.SetReferrer("https://search.example/?q=shoes")
	doc.SetViewport(1000, 800)
	doc.SetHeight(3000)
	doc.SetBox(doc.Query("#product-7"), page.Rect{X: 100, Y: 1200, Width: 300, Height: 400})
	doc.SetBox(doc.Query("#help"), page.Rect{X: 10, Y: 10, Width: 50, Height: 20})
	return doc
}

type harness struct {
	doc       *page.Document
	clock     *ManualClock
	transport *recordingTransport
	tracker   *Tracker
}

func newHarness(t *testing.T, doc *page.Document, mutate func(*Options)) *harness {
	t.Helper()
	opts := DefaultOptions()
	opts.HeartbeatInterval = -1
	if mutate != nil {
		mutate(&opts)
	}

	h := &harness{
		doc:       doc,
		clock:     NewManualClock(testStart),
		transport: &recordingTransport{},
	}
	tr, err := New(doc,
		WithOptions(opts),
		WithClock(h.clock),
		WithTransport(h.transport),
		WithLogger(discardLogger()),
	)
	if err != nil {
		t.Fatalf("Failed to create tracker: %v", err)
	}
	if err := tr.Start(); err != nil {
		t.Fatalf("Failed to start tracker: %v", err)
	}
	h.tracker = tr
	t.Cleanup(tr.Stop)
	return h
}

// drain stops the tracker so every queued delivery has reached the
// transport.
func (h *harness) drain() {
	h.tracker.Stop()
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func newJSONLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, nil))
}
