package events

import (
	"bytes"
	"fmt"

	"github.com/segmentio/encoding/json"
)

// RawEvent is an analytics event as handed over by the ingestion pipeline.
// Only the fields the export needs are kept; anything else in the source
// document is dropped while decoding.
type RawEvent struct {
	Event      string         `json:"event"`
	DistinctID string         `json:"distinct_id"`
	TeamID     *int64         `json:"team_id,omitempty"`
	IP         string         `json:"ip,omitempty"`
	SiteURL    string         `json:"site_url,omitempty"`
	Timestamp  string         `json:"timestamp,omitempty"`
	UUID       string         `json:"uuid"`
	Properties map[string]any `json:"properties,omitempty"`
	Set        map[string]any `json:"$set,omitempty"`
	SetOnce    map[string]any `json:"$set_once,omitempty"`

	// Batch-level times stamped by the ingestion pipeline
	Now    string `json:"now,omitempty"`
	SentAt string `json:"sent_at,omitempty"`
}

// DecodeRawEvent parses a single JSON document into a RawEvent. Numbers inside
// nested mappings are kept as json.Number so they re-encode unchanged.
func DecodeRawEvent(data []byte) (RawEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var ev RawEvent
	if err := dec.Decode(&ev); err != nil {
		return RawEvent{}, fmt.Errorf("failed to decode raw event: %w", err)
	}
	return ev, nil
}
