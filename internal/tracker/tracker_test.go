package tracker

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/vincentbai/behaviortrace/internal/models"
	"github.com/vincentbai/behaviortrace/internal/page"
)

var uuidV4 = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestNewRequiresDocument(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNoDocument) {
		t.Errorf("Expected ErrNoDocument for nil document, got %v", err)
	}
	if _, err := New(page.NewDocument(nil, "https://example.com")); !errors.Is(err, ErrNoDocument) {
		t.Errorf("Expected ErrNoDocument for missing root, got %v", err)
	}
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t, catalogPage(), nil)
	if err := h.tracker.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}
	h.drain()
	if err := h.tracker.Start(); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", err)
	}
}

func TestStartDetectsProductsAndReportsPageView(t *testing.T) {
	h := newHarness(t, catalogPage(), nil)

	products := h.tracker.Products()
	if len(products) != 1 || products[0].Element.ID() != "product-7" {
		t.Fatalf("Expected only #product-7 to be detected, got %+v", products)
	}
	if *products[0].Title != "Trail Runner" || *products[0].Price != "$120" {
		t.Errorf("Unexpected product details: title=%q price=%q", *products[0].Title, *products[0].Price)
	}

	h.drain()
	views := h.transport.Sent(models.EventPageView)
	if len(views) != 1 {
		t.Fatalf("Expected one page_view, got %d", len(views))
	}
	var payload models.PageViewPayload
	if err := json.Unmarshal(views[0].Data, &payload); err != nil {
		t.Fatalf("Failed to decode page_view: %v", err)
	}
	if payload.Title != "Shoes" || payload.Referrer != "https://search.example/?q=shoes" {
		t.Errorf("Unexpected page_view payload: %+v", payload)
	}
}

func TestPointerMovementRecordsLastPositionPerWindow(t *testing.T) {
	h := newHarness(t, catalogPage(), nil)

	h.doc.Dispatch(page.Signal{Kind: page.SignalPointerMove, X: 1, Y: 1})
	h.clock.Advance(ms(30))
	h.doc.Dispatch(page.Signal{Kind: page.SignalPointerMove, X: 2, Y: 2})
	h.clock.Advance(ms(30))
	h.doc.Dispatch(page.Signal{Kind: page.SignalPointerMove, X: 3, Y: 4})
	h.clock.Advance(ms(40))

	snap := h.tracker.Snapshot()
	if len(snap.Movements) != 1 {
		t.Fatalf("Expected exactly one movement sample, got %d", len(snap.Movements))
	}
	got := snap.Movements[0]
	if got.X != 3 || got.Y != 4 {
		t.Errorf("Expected last position (3,4), got (%v,%v)", got.X, got.Y)
	}
	if got.Timestamp != testStart.Add(ms(100)).UnixMilli() {
		t.Errorf("Expected sample at window close, got %d", got.Timestamp)
	}

	h.doc.Dispatch(page.Signal{Kind: page.SignalPointerMove, X: 9, Y: 9})
	h.clock.Advance(ms(100))
	if n := len(h.tracker.Snapshot().Movements); n != 2 {
		t.Errorf("Expected a second sample in the next window, got %d", n)
	}

	h.drain()
	for _, env := range h.transport.All() {
		if env.EventType != models.EventPageView {
			t.Errorf("Expected movement to emit no events, got %s", env.EventType)
		}
	}
}

func TestClickIsBufferedAndStreamed(t *testing.T) {
	h := newHarness(t, catalogPage(), nil)
	buy := h.doc.Query("#buy")

	h.doc.Dispatch(page.Signal{Kind: page.SignalClick, X: 150, Y: 40, Target: buy})
	h.doc.Dispatch(page.Signal{Kind: page.SignalClick, X: 151, Y: 41, Target: buy})

	snap := h.tracker.Snapshot()
	if len(snap.Clicks) != 2 {
		t.Fatalf("Expected 2 buffered clicks (no rate limit), got %d", len(snap.Clicks))
	}
	if snap.Clicks[0].Element.ID != "buy" || snap.Clicks[0].Element.Tag != "button" {
		t.Errorf("Unexpected element descriptor: %+v", snap.Clicks[0].Element)
	}

	h.drain()
	clicks := h.transport.Sent(models.EventClick)
	if len(clicks) != 2 {
		t.Fatalf("Expected 2 click events, got %d", len(clicks))
	}
	var payload models.ClickPayload
	if err := json.Unmarshal(clicks[0].Data, &payload); err != nil {
		t.Fatalf("Failed to decode click: %v", err)
	}
	if payload.Position.X != 150 || payload.Position.Y != 40 {
		t.Errorf("Unexpected position %+v", payload.Position)
	}
	if payload.Element.Type == nil || *payload.Element.Type != "button" {
		t.Errorf("Expected type attribute in descriptor, got %+v", payload.Element)
	}
}

func TestHoverThreshold(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		hold       int
		wantSample bool
		wantEvent  bool
	}{
		{name: "exactly 500ms is ignored", target: "#buy", hold: 500},
		{name: "501ms on product", target: "#buy", hold: 501, wantSample: true, wantEvent: true},
		{name: "long hover off product", target: "#help", hold: 900, wantSample: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, catalogPage(), nil)
			el := h.doc.Query(tt.target)

			h.doc.Dispatch(page.Signal{Kind: page.SignalMouseOver, Target: el})
			h.clock.Advance(ms(tt.hold))
			h.doc.Dispatch(page.Signal{Kind: page.SignalMouseOut, Target: el})

			hovers := h.tracker.Snapshot().Hovers
			if got := len(hovers) == 1; got != tt.wantSample {
				t.Fatalf("Expected sample=%v, got %d hovers", tt.wantSample, len(hovers))
			}
			if tt.wantSample {
				if hovers[0].Duration != int64(tt.hold) {
					t.Errorf("Expected duration %d, got %d", tt.hold, hovers[0].Duration)
				}
				if hovers[0].Timestamp != testStart.UnixMilli() {
					t.Errorf("Expected hover start timestamp, got %d", hovers[0].Timestamp)
				}
			}

			h.drain()
			events := h.transport.Sent(models.EventProductHover)
			if got := len(events) == 1; got != tt.wantEvent {
				t.Fatalf("Expected product_hover=%v, got %d events", tt.wantEvent, len(events))
			}
			if tt.wantEvent {
				var payload models.ProductHoverPayload
				if err := json.Unmarshal(events[0].Data, &payload); err != nil {
					t.Fatalf("Failed to decode product_hover: %v", err)
				}
				if payload.Product.ID != "product-7" || payload.Duration != int64(tt.hold) {
					t.Errorf("Unexpected payload: %+v", payload)
				}
				if payload.Product.Category == nil || *payload.Product.Category != "Shoes" {
					t.Errorf("Expected category Shoes, got %v", payload.Product.Category)
				}
			}
		})
	}
}

func TestHoverAbandonedWithoutExitIsNeverRecorded(t *testing.T) {
	h := newHarness(t, catalogPage(), nil)
	a := h.doc.Query("#help")
	b := h.doc.Query("#buy")

	h.doc.Dispatch(page.Signal{Kind: page.SignalMouseOver, Target: a})
	h.clock.Advance(ms(300))
	h.doc.Dispatch(page.Signal{Kind: page.SignalMouseOver, Target: b})
	h.clock.Advance(ms(600))
	h.doc.Dispatch(page.Signal{Kind: page.SignalMouseOut, Target: b})

	hovers := h.tracker.Snapshot().Hovers
	if len(hovers) != 1 {
		t.Fatalf("Expected one hover, got %d", len(hovers))
	}
	if hovers[0].Element.ID != "buy" || hovers[0].Duration != 600 {
		t.Errorf("Expected only the hover on #buy, got %+v", hovers[0])
	}

	// A second exit without a new enter is ignored.
	h.clock.Advance(ms(600))
	h.doc.Dispatch(page.Signal{Kind: page.SignalMouseOut, Target: b})
	if n := len(h.tracker.Snapshot().Hovers); n != 1 {
		t.Errorf("Expected hover state to reset after exit, got %d hovers", n)
	}
}

func TestScrollDepthUsesLoadTimeGeometry(t *testing.T) {
	h := newHarness(t, catalogPage(), nil)

	h.doc.SetHeight(6000) // grows after load; not re-measured
	h.doc.ScrollTo(0, 400)
	h.clock.Advance(ms(100))

	depths := h.tracker.Snapshot().ScrollDepths
	if len(depths) != 1 {
		t.Fatalf("Expected one scroll sample, got %d", len(depths))
	}
	if want := (400.0 + 800.0) / 3000.0; depths[0].Depth != want {
		t.Errorf("Expected depth %f, got %f", want, depths[0].Depth)
	}
}

func TestProductViewIsEmittedForEveryQualifyingScrollSample(t *testing.T) {
	h := newHarness(t, catalogPage(), nil)

	h.doc.ScrollTo(0, 900)
	h.clock.Advance(ms(100))
	h.doc.ScrollTo(0, 950)
	h.clock.Advance(ms(20))
	h.doc.ScrollTo(0, 1000)
	h.clock.Advance(ms(100))

	if n := len(h.tracker.Snapshot().ScrollDepths); n != 2 {
		t.Fatalf("Expected 2 scroll samples, got %d", n)
	}

	h.drain()
	views := h.transport.Sent(models.EventProductView)
	if len(views) != 2 {
		t.Fatalf("Expected 2 product_view events, got %d", len(views))
	}
	var payload models.ProductViewPayload
	if err := json.Unmarshal(views[0].Data, &payload); err != nil {
		t.Fatalf("Failed to decode product_view: %v", err)
	}
	if payload.Product == nil || payload.Product.ID != "product-7" || *payload.Product.Price != "$120" {
		t.Errorf("Unexpected product_view payload: %+v", payload.Product)
	}
}

func TestProductViewRequiresFullVisibility(t *testing.T) {
	h := newHarness(t, catalogPage(), nil)

	h.doc.ScrollTo(0, 700) // top edge visible, bottom below the fold
	h.clock.Advance(ms(100))

	h.drain()
	if views := h.transport.Sent(models.EventProductView); len(views) != 0 {
		t.Errorf("Expected no product_view for partial visibility, got %d", len(views))
	}
}

func TestProductViewDuration(t *testing.T) {
	h := newHarness(t, catalogPage(), nil)

	h.clock.Advance(ms(1000))
	h.doc.ScrollTo(0, 1000) // fully visible
	h.clock.Advance(ms(2500))
	h.doc.ScrollTo(0, 0) // out of view

	h.drain()
	durations := h.transport.Sent(models.EventProductViewDuration)
	if len(durations) != 1 {
		t.Fatalf("Expected one product_view_duration, got %d", len(durations))
	}
	var payload models.ProductViewDurationPayload
	if err := json.Unmarshal(durations[0].Data, &payload); err != nil {
		t.Fatalf("Failed to decode product_view_duration: %v", err)
	}
	if payload.Duration != 2500 {
		t.Errorf("Expected duration 2500ms, got %d", payload.Duration)
	}
	if payload.Product == nil || payload.Product.ID != "product-7" {
		t.Errorf("Unexpected product: %+v", payload.Product)
	}
}

func TestProductVisibleUntilExitEmitsNoDuration(t *testing.T) {
	doc := catalogPage()
	doc.SetBox(doc.Query("#product-7"), page.Rect{X: 100, Y: 100, Width: 300, Height: 400})
	h := newHarness(t, doc, nil)

	h.clock.Advance(ms(5000))
	h.doc.Unload()

	h.drain()
	if n := len(h.transport.Sent(models.EventProductViewDuration)); n != 0 {
		t.Errorf("Expected no product_view_duration, got %d", n)
	}
}

func TestUnloadFlushesSessionBuffersAsBeacon(t *testing.T) {
	h := newHarness(t, catalogPage(), nil)
	buy := h.doc.Query("#buy")

	h.doc.Dispatch(page.Signal{Kind: page.SignalPointerMove, X: 5, Y: 5})
	h.clock.Advance(ms(100))
	h.doc.Dispatch(page.Signal{Kind: page.SignalClick, X: 5, Y: 5, Target: buy})
	h.doc.Dispatch(page.Signal{Kind: page.SignalMouseOver, Target: buy})
	h.clock.Advance(ms(700))
	h.doc.Dispatch(page.Signal{Kind: page.SignalMouseOut, Target: buy})
	h.doc.ScrollTo(0, 200)
	h.clock.Advance(ms(100))
	h.doc.Dispatch(page.Signal{Kind: page.SignalPointerMove, X: 7, Y: 7})
	h.clock.Advance(ms(50)) // window still open at teardown

	h.doc.Unload()

	h.transport.mu.Lock()
	beacons := append([]models.Envelope(nil), h.transport.beacons...)
	h.transport.mu.Unlock()
	if len(beacons) != 1 || beacons[0].EventType != models.EventSessionEnd {
		t.Fatalf("Expected one session_end beacon, got %+v", beacons)
	}

	var payload models.SessionEndPayload
	if err := json.Unmarshal(beacons[0].Data, &payload); err != nil {
		t.Fatalf("Failed to decode session_end: %v", err)
	}
	if len(payload.Movements) != 1 || payload.Movements[0].X != 5 {
		t.Errorf("Expected only the closed-window movement, got %+v", payload.Movements)
	}
	if len(payload.Clicks) != 1 || len(payload.Hovers) != 1 || len(payload.ScrollDepths) != 1 {
		t.Errorf("Unexpected buffer sizes: clicks=%d hovers=%d scrolls=%d",
			len(payload.Clicks), len(payload.Hovers), len(payload.ScrollDepths))
	}

	// Flushing does not clear the buffers.
	if n := len(h.tracker.Snapshot().Clicks); n != 1 {
		t.Errorf("Expected buffers to survive the flush, got %d clicks", n)
	}
}

func TestEnvelopesShareOneSessionID(t *testing.T) {
	h := newHarness(t, catalogPage(), nil)
	buy := h.doc.Query("#buy")

	h.doc.Dispatch(page.Signal{Kind: page.SignalClick, Target: buy})
	h.doc.Dispatch(page.Signal{Kind: page.SignalMouseOver, Target: buy})
	h.clock.Advance(ms(600))
	h.doc.Dispatch(page.Signal{Kind: page.SignalMouseOut, Target: buy})
	h.doc.Unload()
	h.drain()

	all := h.transport.All()
	if len(all) < 4 {
		t.Fatalf("Expected at least 4 envelopes, got %d", len(all))
	}
	id := h.tracker.SessionID()
	if !uuidV4.MatchString(id) {
		t.Errorf("Expected a version-4 UUID session id, got %q", id)
	}
	for _, env := range all {
		if env.SessionID != id {
			t.Errorf("Expected session id %s, got %s on %s", id, env.SessionID, env.EventType)
		}
		if env.URL != "https://shop.example/shoes" {
			t.Errorf("Unexpected url %s", env.URL)
		}
	}
}

func TestHeartbeatAndVisibility(t *testing.T) {
	h := newHarness(t, catalogPage(), func(o *Options) {
		o.HeartbeatInterval = ms(10_000)
	})

	h.clock.Advance(ms(10_000)) // beat 1: 10s visible
	h.clock.Advance(ms(5_000))
	h.doc.SetHidden(true)      // hidden at 15s
	h.clock.Advance(ms(5_000)) // beat 2 at 20s: hidden, nothing added
	h.clock.Advance(ms(2_000))
	h.doc.SetHidden(false)      // visible at 22s
	h.clock.Advance(ms(8_000)) // beat 3 at 30s: +8s
	h.drain()

	beats := h.transport.Sent(models.EventHeartbeat)
	want := []int64{10_000, 15_000, 23_000}
	if len(beats) != len(want) {
		t.Fatalf("Expected %d heartbeats, got %d", len(want), len(beats))
	}
	for i, env := range beats {
		var payload models.HeartbeatPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			t.Fatalf("Failed to decode heartbeat: %v", err)
		}
		if payload.TimeSpent != want[i] {
			t.Errorf("Heartbeat %d: expected timeSpent %d, got %d", i, want[i], payload.TimeSpent)
		}
	}

	changes := h.transport.Sent(models.EventVisibilityChange)
	if len(changes) != 2 {
		t.Fatalf("Expected 2 visibility changes, got %d", len(changes))
	}
	var hidden models.VisibilityPayload
	if err := json.Unmarshal(changes[0].Data, &hidden); err != nil {
		t.Fatalf("Failed to decode visibility_change: %v", err)
	}
	if hidden.Status != "hidden" || hidden.TimeSpent == nil || *hidden.TimeSpent != 15_000 {
		t.Errorf("Unexpected hidden payload: %+v", hidden)
	}
}

func TestHeartbeatReportsStaleSession(t *testing.T) {
	h := newHarness(t, catalogPage(), func(o *Options) {
		o.HeartbeatInterval = ms(10_000)
		o.SessionTimeout = ms(15_000)
	})

	h.clock.Advance(ms(20_000))
	h.drain()

	beats := h.transport.Sent(models.EventHeartbeat)
	if len(beats) != 2 {
		t.Fatalf("Expected 2 heartbeats, got %d", len(beats))
	}
	var first, second models.HeartbeatPayload
	_ = json.Unmarshal(beats[0].Data, &first)
	_ = json.Unmarshal(beats[1].Data, &second)
	if first.Stale || !second.Stale {
		t.Errorf("Expected stale=false then true, got %v then %v", first.Stale, second.Stale)
	}
}

func TestStopReleasesSubscriptionsAndTimers(t *testing.T) {
	h := newHarness(t, catalogPage(), func(o *Options) {
		o.HeartbeatInterval = ms(10_000)
	})
	h.doc.Dispatch(page.Signal{Kind: page.SignalPointerMove, X: 1, Y: 1})
	h.doc.ScrollTo(0, 100)

	h.tracker.Stop()

	if n := h.clock.Pending(); n != 0 {
		t.Errorf("Expected no pending timers after stop, got %d", n)
	}
	h.doc.Dispatch(page.Signal{Kind: page.SignalClick, Target: h.doc.Query("#buy")})
	h.doc.ScrollTo(0, 1000)
	h.doc.Unload()
	h.clock.Advance(ms(60_000))

	if snap := h.tracker.Snapshot(); len(snap.Clicks) != 0 || len(snap.Movements) != 0 {
		t.Errorf("Expected no capture after stop, got %+v", snap)
	}
	for _, env := range h.transport.All() {
		if env.EventType != models.EventPageView {
			t.Errorf("Expected no events after stop, got %s", env.EventType)
		}
	}
}

func TestCustomMatcher(t *testing.T) {
	doc := catalogPage()
	clock := NewManualClock(testStart)
	tr, err := New(doc,
		WithClock(clock),
		WithTransport(&recordingTransport{}),
		WithLogger(discardLogger()),
		WithMatcher(linkMatcher{}),
	)
	if err != nil {
		t.Fatalf("Failed to create tracker: %v", err)
	}
	if err := tr.Start(); err != nil {
		t.Fatalf("Failed to start tracker: %v", err)
	}
	defer tr.Stop()

	products := tr.Products()
	if len(products) != 3 {
		t.Fatalf("Expected the 3 links to be products, got %d", len(products))
	}
}

type linkMatcher struct{}

func (linkMatcher) Candidate(el *page.Element) bool { return el.Tag == "a" }
func (linkMatcher) Confirm(el *page.Element) (Product, bool) {
	return Product{Element: el}, true
}

func TestUnreachableEndpointFailsSilently(t *testing.T) {
	server := httptest.NewServer(nil)
	endpoint := server.URL + "/collect"
	server.Close()

	logs := &syncBuffer{}
	logger := newJSONLogger(logs)
	doc := catalogPage()
	clock := NewManualClock(testStart)

	opts := DefaultOptions()
	opts.Endpoint = endpoint
	opts.HeartbeatInterval = -1
	tr, err := New(doc, WithOptions(opts), WithClock(clock), WithLogger(logger))
	if err != nil {
		t.Fatalf("Failed to create tracker: %v", err)
	}
	if err := tr.Start(); err != nil {
		t.Fatalf("Failed to start tracker: %v", err)
	}

	buy := doc.Query("#buy")
	doc.Dispatch(page.Signal{Kind: page.SignalClick, Target: buy})
	doc.Dispatch(page.Signal{Kind: page.SignalClick, Target: buy})
	doc.Unload()
	tr.Stop()

	var logged []string
	for _, line := range logs.Lines() {
		if line["msg"] != "analytics event" {
			continue
		}
		env := line["envelope"].(map[string]any)
		logged = append(logged, env["eventType"].(string))
	}
	want := []string{"page_view", "click", "click", "session_end"}
	if len(logged) != len(want) {
		t.Fatalf("Expected %v in the diagnostic log, got %v", want, logged)
	}
	for i := range want {
		if logged[i] != want[i] {
			t.Errorf("Log entry %d: expected %s, got %s", i, want[i], logged[i])
		}
	}
}

func TestConsoleFallbackWithoutHTTPEndpoint(t *testing.T) {
	logs := &syncBuffer{}
	doc := catalogPage()
	opts := DefaultOptions()
	opts.Endpoint = "/analytics"
	opts.HeartbeatInterval = -1

	tr, err := New(doc, WithOptions(opts), WithClock(NewManualClock(testStart)), WithLogger(newJSONLogger(logs)))
	if err != nil {
		t.Fatalf("Failed to create tracker: %v", err)
	}
	if tr.transport != nil {
		t.Fatalf("Expected no transport for a relative endpoint, got %T", tr.transport)
	}
	if err := tr.Start(); err != nil {
		t.Fatalf("Failed to start tracker: %v", err)
	}
	doc.Dispatch(page.Signal{Kind: page.SignalClick, Target: doc.Query("#buy")})
	tr.Stop()

	count := 0
	for _, line := range logs.Lines() {
		if line["msg"] == "analytics event" {
			count++
		}
	}
	if count != 2 {
		t.Errorf("Expected page_view and click in the log, got %d entries", count)
	}
}

func TestIDGenerator(t *testing.T) {
	root := page.NewElement("body", nil,
		page.NewElement("div", page.Attrs{"class": "product"},
			page.NewElement("h2", nil, "Mug"),
			page.NewElement("span", page.Attrs{"class": "price"}, "$8"),
		),
	)
	doc := page.NewDocument(root, "https://shop.example/mugs")
	doc.SetViewport(1000, 800)
	mug := doc.Query("div.product")
	doc.SetBox(mug, page.Rect{X: 0, Y: 0, Width: 200, Height: 200})

	ids := 0
	transport := &recordingTransport{}
	tr, err := New(doc,
		WithClock(NewManualClock(testStart)),
		WithTransport(transport),
		WithLogger(discardLogger()),
		WithIDGenerator(func() string {
			ids++
			return "id-" + string(rune('0'+ids))
		}),
	)
	if err != nil {
		t.Fatalf("Failed to create tracker: %v", err)
	}
	if err := tr.Start(); err != nil {
		t.Fatalf("Failed to start tracker: %v", err)
	}
	if tr.SessionID() != "id-1" {
		t.Errorf("Expected generated session id, got %s", tr.SessionID())
	}

	doc.ScrollTo(0, 0)
	tr.clock.(*ManualClock).Advance(ms(100))
	tr.Stop()

	views := transport.Sent(models.EventProductView)
	if len(views) != 1 {
		t.Fatalf("Expected one product_view, got %d", len(views))
	}
	var payload models.ProductViewPayload
	if err := json.Unmarshal(views[0].Data, &payload); err != nil {
		t.Fatalf("Failed to decode product_view: %v", err)
	}
	if payload.Product.ID != "id-2" {
		t.Errorf("Expected a generated product id, got %s", payload.Product.ID)
	}
}
