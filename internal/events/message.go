package events

import (
	"github.com/segmentio/encoding/json"
)

// CanonicalMessage is the normalized envelope written to the export topic.
// Every key is always present on the wire: mappings default to {} and
// sequences to [], absent scalars encode as null.
type CanonicalMessage struct {
	Event         string         `json:"event"`
	DistinctID    string         `json:"distinct_id"`
	TeamID        *int64         `json:"team_id"`
	IP            *string        `json:"ip"`
	SiteURL       *string        `json:"site_url"`
	Timestamp     *string        `json:"timestamp"`
	UUID          string         `json:"uuid"`
	Properties    map[string]any `json:"properties"`
	Elements      []any          `json:"elements"`
	PeopleSet     map[string]any `json:"people_set"`
	PeopleSetOnce map[string]any `json:"people_set_once"`
}

// Marshal encodes the message as a JSON object. Map keys are emitted in
// sorted order so equal messages always produce equal bytes.
func (m CanonicalMessage) Marshal() ([]byte, error) {
	if m.Properties == nil {
		m.Properties = map[string]any{}
	}
	if m.Elements == nil {
		m.Elements = []any{}
	}
	if m.PeopleSet == nil {
		m.PeopleSet = map[string]any{}
	}
	if m.PeopleSetOnce == nil {
		m.PeopleSetOnce = map[string]any{}
	}
	return json.Marshal(m)
}
