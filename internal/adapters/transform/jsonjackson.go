// Package transform holds the transform stages a route can chain between its
// source and its sink.
package transform

import (
	"encoding/json"
	"fmt"

	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
)

// JSONJackson serializes whatever the source produced into JSON bytes.
// Byte payloads that already hold valid JSON pass through untouched; other
// byte payloads become a JSON string.
type JSONJackson struct {
	name string
}

func NewJSONJackson(name string) *JSONJackson {
	if name == "" {
		name = "jsonjackson"
	}
	return &JSONJackson{name: name}
}

func (j *JSONJackson) Name() string { return j.name }

func (j *JSONJackson) Transform(env *domain.Envelope) (*domain.Envelope, error) {
	out, err := toJSON(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", j.name, err)
	}
	return env.WithPayload(out), nil
}

func toJSON(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		if json.Valid(p) {
			return p, nil
		}
		return nil, fmt.Errorf("invalid raw json")
	case []byte:
		if json.Valid(p) {
			return p, nil
		}
		return json.Marshal(string(p))
	default:
		return json.Marshal(p)
	}
}

var _ ports.Transformer = (*JSONJackson)(nil)
