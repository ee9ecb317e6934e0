package events

const (
	AutocaptureEvent = "$autocapture"

	propIP        = "$ip"
	propTimestamp = "timestamp"
	propElements  = "$elements"
)

// Transform builds the canonical message for a raw event. It never mutates
// the raw event's maps.
func Transform(raw RawEvent) CanonicalMessage {
	properties := raw.Properties
	elements := []any{}

	if raw.Event == AutocaptureEvent {
		if extracted, ok := properties[propElements].([]any); ok {
			elements = extracted
			properties = without(properties, propElements)
		}
	}

	return CanonicalMessage{
		Event:         raw.Event,
		DistinctID:    raw.DistinctID,
		TeamID:        raw.TeamID,
		IP:            firstNonEmpty(stringProp(raw.Properties, propIP), raw.IP),
		SiteURL:       firstNonEmpty(raw.SiteURL),
		Timestamp:     firstNonEmpty(raw.Timestamp, stringProp(raw.Properties, propTimestamp), raw.Now, raw.SentAt),
		UUID:          raw.UUID,
		Properties:    orEmpty(properties),
		Elements:      elements,
		PeopleSet:     orEmpty(raw.Set),
		PeopleSetOnce: orEmpty(raw.SetOnce),
	}
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func firstNonEmpty(values ...string) *string {
	for _, v := range values {
		if v != "" {
			return &v
		}
	}
	return nil
}

func without(props map[string]any, key string) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k != key {
			out[k] = v
		}
	}
	return out
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
