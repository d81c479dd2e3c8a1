package models

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventClick               EventType = "click"
	EventProductHover        EventType = "product_hover"
	EventProductView         EventType = "product_view"
	EventProductViewDuration EventType = "product_view_duration"
	EventSessionEnd          EventType = "session_end"
	EventPageView            EventType = "page_view"
	EventHeartbeat           EventType = "heartbeat"
	EventVisibilityChange    EventType = "visibility_change"
)

var eventTypes = map[EventType]bool{
	EventClick:               true,
	EventProductHover:        true,
	EventProductView:         true,
	EventProductViewDuration: true,
	EventSessionEnd:          true,
	EventPageView:            true,
	EventHeartbeat:           true,
	EventVisibilityChange:    true,
}

func (t EventType) Valid() bool {
	return eventTypes[t]
}

// EventTypes returns the fixed tag set in a stable order.
func EventTypes() []EventType {
	return []EventType{
		EventClick,
		EventProductHover,
		EventProductView,
		EventProductViewDuration,
		EventSessionEnd,
		EventPageView,
		EventHeartbeat,
		EventVisibilityChange,
	}
}

// Envelope is the unit of transmission. Data holds the already-serialized
// payload so an envelope can be relayed verbatim.
type Envelope struct {
	SessionID string          `json:"sessionId"`
	EventType EventType       `json:"eventType"`
	URL       string          `json:"url"`
	Timestamp int64           `json:"timestamp"` // ms since epoch
	Data      json.RawMessage `json:"data"`
}

func NewEnvelope(sessionID string, eventType EventType, url string, timestamp int64, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		SessionID: sessionID,
		EventType: eventType,
		URL:       url,
		Timestamp: timestamp,
		Data:      data,
	}, nil
}
