package tracker

import (
	"time"

	"github.com/vincentbai/behaviortrace/internal/models"
	"github.com/vincentbai/behaviortrace/internal/page"
)

// interactionCapture turns raw signals into session samples and immediate
// events. All methods run under the tracker's lock.
type interactionCapture struct {
	t *Tracker

	pointerX, pointerY float64
	moves              *RateLimiter
	scrolls            *RateLimiter

	hovered    *page.Element
	hoverStart time.Time
}

func newInteractionCapture(t *Tracker) *interactionCapture {
	c := &interactionCapture{t: t}
	c.moves = NewRateLimiter(t.clock, t.opts.ThrottleWindow, t.exec, c.captureMovement)
	c.scrolls = NewRateLimiter(t.clock, t.opts.ThrottleWindow, t.exec, c.captureScroll)
	return c
}

func (c *interactionCapture) onPointerMove(s page.Signal) {
	c.pointerX, c.pointerY = s.X, s.Y
	c.moves.Signal()
}

func (c *interactionCapture) captureMovement() {
	c.t.session.RecordMovement(models.Point{
		X:         c.pointerX,
		Y:         c.pointerY,
		Timestamp: c.t.nowMillis(),
	})
}

func (c *interactionCapture) onClick(s page.Signal) {
	target := s.Target
	if target == nil {
		target = c.t.doc.Root()
	}
	element := Describe(target)

	c.t.session.RecordClick(models.ClickSample{
		X:         s.X,
		Y:         s.Y,
		Element:   element,
		Timestamp: c.t.nowMillis(),
	})
	c.t.sink.Emit(models.EventClick, models.ClickPayload{
		Position: models.Position{X: s.X, Y: s.Y},
		Element:  element,
	})
}

// onMouseOver starts a hover. An unfinished hover on another element is
// abandoned without being recorded.
func (c *interactionCapture) onMouseOver(s page.Signal) {
	if s.Target == nil {
		return
	}
	c.hovered = s.Target
	c.hoverStart = c.t.clock.Now()
}

func (c *interactionCapture) onMouseOut(page.Signal) {
	if c.hovered == nil {
		return
	}
	el, start := c.hovered, c.hoverStart
	c.hovered = nil

	elapsed := c.t.clock.Now().Sub(start)
	if elapsed <= c.t.opts.HoverThreshold {
		return
	}

	duration := elapsed.Milliseconds()
	c.t.session.RecordHover(models.HoverSample{
		Element:   Describe(el),
		Duration:  duration,
		Timestamp: start.UnixMilli(),
	})
	if product := ResolveProductData(c.t.doc.Root(), el, c.t.newID); product != nil {
		c.t.sink.Emit(models.EventProductHover, models.ProductHoverPayload{
			Product:  product,
			Duration: duration,
		})
	}
}

func (c *interactionCapture) onScroll(page.Signal) {
	c.scrolls.Signal()
}

// captureScroll uses the heights measured at start; a document that grows
// later is not re-measured.
func (c *interactionCapture) captureScroll() {
	_, scrollY := c.t.doc.Scroll()
	depth := 0.0
	if c.t.pageHeight > 0 {
		depth = (scrollY + c.t.viewportHeight) / c.t.pageHeight
	}
	c.t.session.RecordScroll(models.ScrollSample{
		Depth:     depth,
		Timestamp: c.t.nowMillis(),
	})
	c.t.viewport.checkVisible()
}

func (c *interactionCapture) stop() {
	c.moves.Stop()
	c.scrolls.Stop()
}
