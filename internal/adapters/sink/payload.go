package sink

import "encoding/json"

// encodePayload returns the JSON body for an envelope payload. Byte payloads
// are expected to be JSON already and are sent as they are.
func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("null"), nil
	case []byte:
		if json.Valid(p) {
			return p, nil
		}
		return json.Marshal(string(p))
	case json.RawMessage:
		return p, nil
	case string:
		if json.Valid([]byte(p)) {
			return []byte(p), nil
		}
		return json.Marshal(p)
	default:
		return json.Marshal(p)
	}
}
