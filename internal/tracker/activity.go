package tracker

import (
	"time"

	"github.com/vincentbai/behaviortrace/internal/models"
)

// activityTracker accumulates visible time on the page and reports it on a
// heartbeat and on visibility changes.
type activityTracker struct {
	t          *Tracker
	timeSpent  time.Duration
	lastActive time.Time
	timer      Timer
}

func newActivityTracker(t *Tracker) *activityTracker {
	return &activityTracker{t: t}
}

func (a *activityTracker) start() {
	a.lastActive = a.t.clock.Now()
	a.schedule()
}

// schedule arms the next beat; a negative interval disables the heartbeat.
func (a *activityTracker) schedule() {
	if a.t.opts.HeartbeatInterval < 0 {
		return
	}
	a.timer = a.t.clock.AfterFunc(a.t.opts.HeartbeatInterval, func() {
		a.t.exec(a.beat)
	})
}

func (a *activityTracker) beat() {
	now := a.t.clock.Now()
	if !a.t.doc.Hidden() {
		a.timeSpent += now.Sub(a.lastActive)
	}
	a.lastActive = now

	a.t.sink.Emit(models.EventHeartbeat, models.HeartbeatPayload{
		TimeSpent: a.timeSpent.Milliseconds(),
		Stale:     a.t.session.Stale(now, a.t.opts.SessionTimeout),
	})
	a.schedule()
}

func (a *activityTracker) onVisibilityChange() {
	now := a.t.clock.Now()
	if a.t.doc.Hidden() {
		a.timeSpent += now.Sub(a.lastActive)
		spent := a.timeSpent.Milliseconds()
		a.t.sink.Emit(models.EventVisibilityChange, models.VisibilityPayload{
			Status:    "hidden",
			TimeSpent: &spent,
		})
		return
	}
	a.lastActive = now
	a.t.sink.Emit(models.EventVisibilityChange, models.VisibilityPayload{Status: "visible"})
}

func (a *activityTracker) stop() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
