package tracker

import (
	"time"

	"github.com/google/uuid"

	"github.com/vincentbai/behaviortrace/internal/models"
)

// Session holds the identity and behaviour buffers of one page load.
// Buffers only grow; Snapshot reads them without clearing.
type Session struct {
	id           string
	startedAt    time.Time
	lastActivity time.Time

	movements    []models.Point
	clicks       []models.ClickSample
	hovers       []models.HoverSample
	scrollDepths []models.ScrollSample
}

// NewSessionID returns a version-4 UUID string. Collisions are not checked.
func NewSessionID() string {
	return uuid.NewString()
}

func NewSession(id string, now time.Time) *Session {
	return &Session{id: id, startedAt: now, lastActivity: now}
}

func (s *Session) ID() string { return s.id }

func (s *Session) StartedAt() time.Time { return s.startedAt }

func (s *Session) RecordMovement(p models.Point) {
	s.movements = append(s.movements, p)
	s.touch(p.Timestamp)
}

func (s *Session) RecordClick(c models.ClickSample) {
	s.clicks = append(s.clicks, c)
	s.touch(c.Timestamp)
}

func (s *Session) RecordHover(h models.HoverSample) {
	s.hovers = append(s.hovers, h)
	s.touch(h.Timestamp + h.Duration)
}

func (s *Session) RecordScroll(sc models.ScrollSample) {
	s.scrollDepths = append(s.scrollDepths, sc)
	s.touch(sc.Timestamp)
}

func (s *Session) touch(ms int64) {
	if t := time.UnixMilli(ms); t.After(s.lastActivity) {
		s.lastActivity = t
	}
}

// Stale reports whether no activity has been recorded within timeout.
// It is advisory; nothing ends a session because of it.
func (s *Session) Stale(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	return now.Sub(s.lastActivity) > timeout
}

// Snapshot copies the buffers in insertion order. Empty buffers are
// returned as empty, non-nil slices so they serialize as [].
func (s *Session) Snapshot() models.SessionEndPayload {
	return models.SessionEndPayload{
		Movements:    append(make([]models.Point, 0, len(s.movements)), s.movements...),
		Clicks:       append(make([]models.ClickSample, 0, len(s.clicks)), s.clicks...),
		Hovers:       append(make([]models.HoverSample, 0, len(s.hovers)), s.hovers...),
		ScrollDepths: append(make([]models.ScrollSample, 0, len(s.scrollDepths)), s.scrollDepths...),
	}
}
