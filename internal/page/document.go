package page

import (
	"sync"
)

// Rect is a layout box in document coordinates.
type Rect struct {
	X      float64 `yaml:"x" json:"x"`
	Y      float64 `yaml:"y" json:"y"`
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

// ClientRect is a box relative to the viewport's top-left corner.
type ClientRect struct {
	Top, Left, Bottom, Right float64
}

func (r ClientRect) Width() float64  { return r.Right - r.Left }
func (r ClientRect) Height() float64 { return r.Bottom - r.Top }

type SignalKind string

const (
	SignalPointerMove      SignalKind = "pointermove"
	SignalClick            SignalKind = "click"
	SignalMouseOver        SignalKind = "mouseover"
	SignalMouseOut         SignalKind = "mouseout"
	SignalScroll           SignalKind = "scroll"
	SignalVisibilityChange SignalKind = "visibilitychange"
	SignalBeforeUnload     SignalKind = "beforeunload"
)

// Signal is one raw interaction delivered to listeners.
type Signal struct {
	Kind   SignalKind
	X, Y   float64
	Target *Element
}

type Listener func(Signal)

// Document is the host page: element tree, geometry and signal dispatch.
// Geometry may be read from any goroutine; listeners run on the goroutine
// that dispatched the signal.
type Document struct {
	root *Element

	mu        sync.RWMutex
	url       string
	title     string
	referrer  string
	viewportW float64
	viewportH float64
	scrollX   float64
	scrollY   float64
	height    float64
	hidden    bool
	boxes     map[*Element]Rect

	lmu          sync.Mutex
	nextID       uint64
	listeners    map[SignalKind][]registeredListener
	observations []*observation
}

type registeredListener struct {
	id uint64
	fn Listener
}

func NewDocument(root *Element, url string) *Document {
	return &Document{
		root:      root,
		url:       url,
		boxes:     make(map[*Element]Rect),
		listeners: make(map[SignalKind][]registeredListener),
	}
}

func (d *Document) Root() *Element { return d.root }

func (d *Document) URL() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.url
}

func (d *Document) Title() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.title
}

func (d *Document) SetTitle(title string) {
	d.mu.Lock()
	d.title = title
	d.mu.Unlock()
}

func (d *Document) Referrer() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.referrer
}

func (d *Document) SetReferrer(referrer string) {
	d.mu.Lock()
	d.referrer = referrer
	d.mu.Unlock()
}

// Viewport returns the current viewport width and height.
func (d *Document) Viewport() (float64, float64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.viewportW, d.viewportH
}

// SetViewport resizes the viewport and re-evaluates intersections.
func (d *Document) SetViewport(width, height float64) {
	d.mu.Lock()
	d.viewportW, d.viewportH = width, height
	d.mu.Unlock()
	d.UpdateIntersections()
}

func (d *Document) Scroll() (float64, float64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.scrollX, d.scrollY
}

// ScrollTo moves the scroll offset, dispatches a scroll signal and then
// re-evaluates intersections.
func (d *Document) ScrollTo(x, y float64) {
	d.mu.Lock()
	d.scrollX, d.scrollY = max(x, 0), max(y, 0)
	d.mu.Unlock()
	d.Dispatch(Signal{Kind: SignalScroll, X: x, Y: y})
	d.UpdateIntersections()
}

// Height is the scrollable document height: the explicit height when set,
// otherwise the larger of the viewport and the lowest layout box.
func (d *Document) Height() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.height > 0 {
		return d.height
	}
	h := d.viewportH
	for _, r := range d.boxes {
		h = max(h, r.Y+r.Height)
	}
	return h
}

func (d *Document) SetHeight(height float64) {
	d.mu.Lock()
	d.height = height
	d.mu.Unlock()
}

func (d *Document) SetBox(el *Element, r Rect) {
	d.mu.Lock()
	d.boxes[el] = r
	d.mu.Unlock()
}

// Box reports the element's layout box and whether it has one.
func (d *Document) Box(el *Element) (Rect, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.boxes[el]
	return r, ok
}

// BoundingClientRect mirrors the browser call: an element without layout
// reports an all-zero rectangle.
func (d *Document) BoundingClientRect(el *Element) ClientRect {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.boxes[el]
	if !ok {
		return ClientRect{}
	}
	top := r.Y - d.scrollY
	left := r.X - d.scrollX
	return ClientRect{Top: top, Left: left, Bottom: top + r.Height, Right: left + r.Width}
}

func (d *Document) Hidden() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.hidden
}

// SetHidden flips page visibility and dispatches visibilitychange when the
// state actually changes.
func (d *Document) SetHidden(hidden bool) {
	d.mu.Lock()
	changed := d.hidden != hidden
	d.hidden = hidden
	d.mu.Unlock()
	if changed {
		d.Dispatch(Signal{Kind: SignalVisibilityChange})
	}
}

// Unload dispatches the teardown signal.
func (d *Document) Unload() {
	d.Dispatch(Signal{Kind: SignalBeforeUnload})
}

// AddListener subscribes fn to signals of the given kind.
func (d *Document) AddListener(kind SignalKind, fn Listener) *Subscription {
	d.lmu.Lock()
	d.nextID++
	id := d.nextID
	d.listeners[kind] = append(d.listeners[kind], registeredListener{id: id, fn: fn})
	d.lmu.Unlock()

	return newSubscription(func() {
		d.lmu.Lock()
		defer d.lmu.Unlock()
		ls := d.listeners[kind]
		for i, l := range ls {
			if l.id == id {
				d.listeners[kind] = append(ls[:i:i], ls[i+1:]...)
				return
			}
		}
	})
}

// Dispatch delivers sig to every listener of its kind, in subscription order.
func (d *Document) Dispatch(sig Signal) {
	d.lmu.Lock()
	ls := make([]registeredListener, len(d.listeners[sig.Kind]))
	copy(ls, d.listeners[sig.Kind])
	d.lmu.Unlock()

	for _, l := range ls {
		l.fn(sig)
	}
}

// Query returns the first element matching a simple selector, or nil.
func (d *Document) Query(selector string) *Element {
	all := d.QueryAll(selector)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// QueryAll returns every element (root included) matching selector in
// document order.
func (d *Document) QueryAll(selector string) []*Element {
	sel, err := ParseSelector(selector)
	if err != nil || d.root == nil {
		return nil
	}
	var out []*Element
	d.root.Walk(func(el *Element) {
		if sel.Match(el) {
			out = append(out, el)
		}
	})
	return out
}

// Subscription is an explicit handle on a listener or observation.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Unsubscribe releases the subscription; repeated calls are no-ops.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}
