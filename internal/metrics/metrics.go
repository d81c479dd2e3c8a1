package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_events_emitted_total",
		Help: "Envelopes built by the event sink, by event type",
	}, []string{"event_type"})

	DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_delivery_failures_total",
		Help: "Best-effort deliveries that failed and were discarded",
	})

	DeliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_deliveries_dropped_total",
		Help: "Envelopes dropped because the delivery queue was full",
	})

	BeaconsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_beacons_total",
		Help: "Unacknowledged teardown deliveries handed to the transport",
	})

	RelayEventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_received_total",
		Help: "Envelopes accepted on /collect, by event type",
	}, []string{"event_type"})

	RelayListenersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_listeners_active",
		Help: "Currently open real-time listener connections",
	})

	RelayPushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_pushed_total",
		Help: "Envelope copies queued to listeners",
	})

	RelaySkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_skipped_total",
		Help: "Envelope copies skipped because a listener was not writable",
	})

	RelayStoreErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_store_errors_total",
		Help: "Envelopes the optional store failed to persist",
	})

	RelayCollectDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_collect_duration_seconds",
		Help:    "Time spent handling one /collect request",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})
)
