package tracker

import (
	"log/slog"
	"time"
)

const (
	DefaultEndpoint          = "http://localhost:3000/collect"
	DefaultSessionTimeout    = 30 * time.Minute
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultThrottleWindow    = 100 * time.Millisecond
	DefaultHoverThreshold    = 500 * time.Millisecond
	DefaultViewThreshold     = 0.5
	DefaultQueueSize         = 256
	DefaultSendTimeout       = 5 * time.Second
)

// Options is the configuration surface of an embedded tracker.
type Options struct {
	// Endpoint is the collection URL. A value that is not an absolute
	// http(s) URL selects console-only logging.
	Endpoint string `yaml:"endpoint"`
	// SessionTimeout is advisory: it only sets the stale flag on heartbeats.
	SessionTimeout    time.Duration `yaml:"session_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ThrottleWindow    time.Duration `yaml:"throttle_window"`
	HoverThreshold    time.Duration `yaml:"hover_threshold"`
	ViewThreshold     float64       `yaml:"view_threshold"`
	QueueSize         int           `yaml:"queue_size"`
	SendTimeout       time.Duration `yaml:"send_timeout"`
}

func DefaultOptions() Options {
	return Options{
		Endpoint:          DefaultEndpoint,
		SessionTimeout:    DefaultSessionTimeout,
		HeartbeatInterval: DefaultHeartbeatInterval,
		ThrottleWindow:    DefaultThrottleWindow,
		HoverThreshold:    DefaultHoverThreshold,
		ViewThreshold:     DefaultViewThreshold,
		QueueSize:         DefaultQueueSize,
		SendTimeout:       DefaultSendTimeout,
	}
}

// ApplyDefaults fills zero fields. Endpoint is left alone: empty means
// console-only.
func (o *Options) ApplyDefaults() {
	if o.SessionTimeout == 0 {
		o.SessionTimeout = DefaultSessionTimeout
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.ThrottleWindow == 0 {
		o.ThrottleWindow = DefaultThrottleWindow
	}
	if o.HoverThreshold == 0 {
		o.HoverThreshold = DefaultHoverThreshold
	}
	if o.ViewThreshold == 0 {
		o.ViewThreshold = DefaultViewThreshold
	}
	if o.QueueSize == 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.SendTimeout == 0 {
		o.SendTimeout = DefaultSendTimeout
	}
}

// Option customizes a Tracker at construction.
type Option func(*Tracker)

func WithOptions(o Options) Option {
	return func(t *Tracker) {
		o.ApplyDefaults()
		t.opts = o
	}
}

func WithClock(c Clock) Option {
	return func(t *Tracker) {
		t.clock = c
	}
}

// WithTransport overrides the transport derived from the endpoint.
func WithTransport(tr Transport) Option {
	return func(t *Tracker) {
		t.transport = tr
	}
}

func WithMatcher(m ProductMatcher) Option {
	return func(t *Tracker) {
		t.matcher = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// WithIDGenerator replaces the UUID generator used for the session id and
// for products without an id.
func WithIDGenerator(fn func() string) Option {
	return func(t *Tracker) {
		t.newID = fn
	}
}
