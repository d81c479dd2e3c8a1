package tracker

import (
	"time"

	"github.com/vincentbai/behaviortrace/internal/models"
	"github.com/vincentbai/behaviortrace/internal/page"
)

// viewportMonitor runs two independent visibility signals over the product
// registry: a fully-visible poll on every scroll sample, and dwell timing
// from intersection observation.
type viewportMonitor struct {
	t     *Tracker
	dwell []*dwellState
}

type dwellState struct {
	product Product
	viewing bool
	since   time.Time
	sub     *page.Subscription
}

func newViewportMonitor(t *Tracker) *viewportMonitor {
	return &viewportMonitor{t: t}
}

func (m *viewportMonitor) observe() {
	for _, p := range m.t.products {
		st := &dwellState{product: p}
		st.sub = m.t.doc.ObserveIntersection(p.Element, m.t.opts.ViewThreshold, func(e page.IntersectionEntry) {
			m.t.exec(func() { m.onIntersection(st, e) })
		})
		m.dwell = append(m.dwell, st)
	}
}

func (m *viewportMonitor) onIntersection(st *dwellState, e page.IntersectionEntry) {
	now := m.t.clock.Now()
	if e.IsIntersecting {
		st.viewing = true
		st.since = now
		return
	}
	if !st.viewing {
		return
	}
	st.viewing = false
	m.t.sink.Emit(models.EventProductViewDuration, models.ProductViewDurationPayload{
		Product:  ResolveProductData(m.t.doc.Root(), st.product.Element, m.t.newID),
		Duration: now.Sub(st.since).Milliseconds(),
	})
}

// checkVisible emits product_view for every product whose box is entirely
// inside the viewport. Repeated polls re-emit for the same product.
func (m *viewportMonitor) checkVisible() {
	vw, vh := m.t.doc.Viewport()
	for _, p := range m.t.products {
		r := m.t.doc.BoundingClientRect(p.Element)
		if r.Top >= 0 && r.Left >= 0 && r.Bottom <= vh && r.Right <= vw {
			m.t.sink.Emit(models.EventProductView, models.ProductViewPayload{
				Product: ResolveProductData(m.t.doc.Root(), p.Element, m.t.newID),
			})
		}
	}
}

func (m *viewportMonitor) stop() {
	for _, st := range m.dwell {
		st.sub.Unsubscribe()
	}
}
