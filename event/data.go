package event

import (
	"encoding/json"
	"fmt"
)

// MarshalData encodes a typed payload for storage in Event.Data.
func MarshalData(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	return data, nil
}

// UnmarshalData decodes the payload of e into a value of type T.
// An empty payload decodes to the zero value of T.
func UnmarshalData[T any](e Event) (T, error) {
	var v T
	if len(e.Data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return v, fmt.Errorf("unmarshal %s data (aggregate %s, sequence %d): %w", e.Type, e.AggregateID, e.Sequence, err)
	}
	return v, nil
}
