package models

// Point is a pointer-movement sample in viewport coordinates.
type Point struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp"`
}

type ClickSample struct {
	X         float64           `json:"x"`
	Y         float64           `json:"y"`
	Element   ElementDescriptor `json:"element"`
	Timestamp int64             `json:"timestamp"`
}

// HoverSample.Timestamp is the hover start, not the exit.
type HoverSample struct {
	Element   ElementDescriptor `json:"element"`
	Duration  int64             `json:"duration"` // ms
	Timestamp int64             `json:"timestamp"`
}

type ScrollSample struct {
	Depth     float64 `json:"depth"`
	Timestamp int64   `json:"timestamp"`
}

// ElementDescriptor is a detached snapshot of a page element.
type ElementDescriptor struct {
	Tag     string   `json:"tag"`
	ID      string   `json:"id"`
	Classes []string `json:"classes"`
	Text    string   `json:"text"`
	Href    *string  `json:"href,omitempty"`
	Type    *string  `json:"type,omitempty"`
	Value   *string  `json:"value,omitempty"`
}

type ProductData struct {
	Title    *string `json:"title"`
	Price    *string `json:"price"`
	ID       string  `json:"id"`
	Category *string `json:"category"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type ClickPayload struct {
	Position Position          `json:"position"`
	Element  ElementDescriptor `json:"element"`
}

type ProductHoverPayload struct {
	Product  *ProductData `json:"product"`
	Duration int64        `json:"duration"`
}

type ProductViewPayload struct {
	Product *ProductData `json:"product"`
}

type ProductViewDurationPayload struct {
	Product  *ProductData `json:"product"`
	Duration int64        `json:"duration"`
}

type SessionEndPayload struct {
	Movements    []Point        `json:"movements"`
	Clicks       []ClickSample  `json:"clicks"`
	Hovers       []HoverSample  `json:"hovers"`
	ScrollDepths []ScrollSample `json:"scrollDepths"`
}

type PageViewPayload struct {
	Title    string `json:"title"`
	Referrer string `json:"referrer"`
}

type HeartbeatPayload struct {
	TimeSpent int64 `json:"timeSpent"` // ms
	Stale     bool  `json:"stale"`
}

type VisibilityPayload struct {
	Status    string `json:"status"` // hidden|visible
	TimeSpent *int64 `json:"timeSpent,omitempty"`
}
