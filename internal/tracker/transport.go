package tracker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vincentbai/behaviortrace/internal/metrics"
)

// Transport delivers serialized envelopes to the collection endpoint.
//
// Send is an ordinary best-effort request. Its error exists for logging
// only: callers must not retry.
//
// Beacon hands the body off and returns at once. It gives no confirmation
// and no error; the request may still be in flight, or never complete, when
// the caller goes away. It is the only mode allowed during teardown.
type Transport interface {
	Send(ctx context.Context, body []byte) error
	Beacon(body []byte)
}

// HTTPTransport POSTs envelopes with a pooled client.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewHTTPTransport(endpoint string, timeout time.Duration, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

// IsHTTPEndpoint reports whether endpoint can be delivered to; anything else
// falls back to console logging.
func IsHTTPEndpoint(endpoint string) bool {
	return strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")
}

func (t *HTTPTransport) Send(ctx context.Context, body []byte) error {
	return t.post(ctx, body, "application/json")
}

func (t *HTTPTransport) Beacon(body []byte) {
	metrics.BeaconsSent.Inc()
	go func() {
		// Beacons use text/plain like navigator.sendBeacon with a string body.
		if err := t.post(context.Background(), body, "text/plain;charset=UTF-8"); err != nil {
			metrics.DeliveryFailures.Inc()
			t.logger.Debug("beacon delivery failed", "endpoint", t.endpoint, "error", err)
		}
	}()
}

func (t *HTTPTransport) post(ctx context.Context, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", t.endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("post %s: unexpected status %s", t.endpoint, resp.Status)
	}
	return nil
}
