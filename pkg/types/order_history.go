package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StatusChange is one entry in an order's status history.
type StatusChange struct {
	From      string     `json:"from"`
	To        string     `json:"to"`
	ChangedAt time.Time  `json:"changed_at"`
	ChangedBy *uuid.UUID `json:"changed_by,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// StatusHistory is the append-only transition log stored on an order.
type StatusHistory []StatusChange

// Value serializes the history to JSON.
func (h *StatusHistory) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

// Scan decodes JSONB into the history slice.
func (h *StatusHistory) Scan(value interface{}) error {
	if value == nil {
		*h = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded StatusHistory
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*h = decoded
	return nil
}

// TrackingEvent is one courier scan reported by the shipment provider.
type TrackingEvent struct {
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TrackingEvents is the courier scan log stored on an order.
type TrackingEvents []TrackingEvent

// Value serializes the events to JSON.
func (t *TrackingEvents) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

// Scan decodes JSONB into the events slice.
func (t *TrackingEvents) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded TrackingEvents
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*t = decoded
	return nil
}
