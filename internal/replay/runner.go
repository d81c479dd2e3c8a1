package replay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/vincentbai/behaviortrace/internal/models"
	"github.com/vincentbai/behaviortrace/internal/page"
	"github.com/vincentbai/behaviortrace/internal/tracker"
)

// Result summarizes one replayed page load.
type Result struct {
	SessionID string
	Products  int
	Steps     int
	Elapsed   time.Duration
	Snapshot  models.SessionEndPayload
}

// Run parses the page, applies the script's layout and plays its steps
// against a tracker on a simulated clock. The page is always unloaded at the
// end, so the session buffers are flushed exactly once.
func Run(ctx context.Context, html io.Reader, script *Script, opts ...tracker.Option) (*Result, error) {
	doc, err := page.ParseHTML(html, script.URL)
	if err != nil {
		return nil, err
	}
	if err := prepare(doc, script); err != nil {
		return nil, err
	}

	start := script.Start
	if start.IsZero() {
		start = time.Now()
	}
	clock := tracker.NewManualClock(start)
	tr, err := tracker.New(doc, append(append([]tracker.Option(nil), opts...), tracker.WithClock(clock))...)
	if err != nil {
		return nil, err
	}
	if err := tr.Start(); err != nil {
		return nil, err
	}
	defer tr.Stop()

	result := &Result{SessionID: tr.SessionID(), Products: len(tr.Products())}
	unloaded := false
	for i, step := range script.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clock.Advance(step.After)
		if err := apply(doc, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Steps++
		if step.Type == StepUnload {
			unloaded = true
			break
		}
	}
	if !unloaded {
		doc.Unload()
	}

	result.Elapsed = clock.Now().Sub(start)
	result.Snapshot = tr.Snapshot()
	slog.Info("replay finished",
		"session_id", result.SessionID,
		"steps", result.Steps,
		"elapsed", result.Elapsed,
		"movements", len(result.Snapshot.Movements),
		"clicks", len(result.Snapshot.Clicks),
		"hovers", len(result.Snapshot.Hovers),
		"scrolls", len(result.Snapshot.ScrollDepths))
	return result, nil
}

func prepare(doc *page.Document, script *Script) error {
	if script.Title != "" {
		doc.SetTitle(script.Title)
	}
	doc.SetReferrer(script.Referrer)
	doc.SetViewport(script.Viewport.Width, script.Viewport.Height)
	if script.Height > 0 {
		doc.SetHeight(script.Height)
	}

	selectors := make([]string, 0, len(script.Layout))
	for selector := range script.Layout {
		selectors = append(selectors, selector)
	}
	sort.Strings(selectors)
	for _, selector := range selectors {
		elements := doc.QueryAll(selector)
		if len(elements) == 0 {
			return fmt.Errorf("layout: no element matches %q", selector)
		}
		for _, el := range elements {
			doc.SetBox(el, script.Layout[selector])
		}
	}
	return nil
}

func apply(doc *page.Document, step Step) error {
	var target *page.Element
	if step.Target != "" {
		if target = doc.Query(step.Target); target == nil {
			return fmt.Errorf("no element matches %q", step.Target)
		}
	}

	switch step.Type {
	case StepPointerMove:
		doc.Dispatch(page.Signal{Kind: page.SignalPointerMove, X: step.X, Y: step.Y, Target: target})
	case StepClick:
		doc.Dispatch(page.Signal{Kind: page.SignalClick, X: step.X, Y: step.Y, Target: target})
	case StepHoverEnter:
		doc.Dispatch(page.Signal{Kind: page.SignalMouseOver, X: step.X, Y: step.Y, Target: target})
	case StepHoverExit:
		doc.Dispatch(page.Signal{Kind: page.SignalMouseOut, X: step.X, Y: step.Y, Target: target})
	case StepScroll:
		doc.ScrollTo(step.X, step.Y)
	case StepResize:
		doc.SetViewport(step.Width, step.Height)
	case StepVisibility:
		doc.SetHidden(step.Hidden)
	case StepUnload:
		doc.Unload()
	case StepWait:
	}
	return nil
}
