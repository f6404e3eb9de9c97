// Package message defines the wire envelope exchanged between workers,
// the broker and the manager.
package message

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

// Message is the typed envelope described by the messaging contract:
// source identifies the sender (a worker name, or "manager"), type is
// a key the receiver looks up in its message registry, and payload is
// an arbitrary serializable value produced by yaml.Unmarshal into an
// interface{} (nil, bool, int, float64, string, []interface{} or
// map[interface{}]interface{}).
type Message struct {
	Source  string      `yaml:"source" json:"source"`
	Type    string      `yaml:"type" json:"type"`
	Payload interface{} `yaml:"payload" json:"payload"`
}

// New constructs a Message.
func New(source, msgType string, payload interface{}) Message {
	return Message{Source: source, Type: msgType, Payload: payload}
}

// Serialize encodes m as a YAML mapping with exactly the three keys
// source, type and payload.
func (m Message) Serialize() ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}
	return data, nil
}

// Deserialize decodes a YAML mapping produced by Serialize.
func Deserialize(data []byte) (Message, error) {
	var m Message
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("deserialize message: %w", err)
	}
	return m, nil
}

// StringMapPayload normalizes the map[interface{}]interface{} shape
// that yaml.v2 produces for mapping payloads into a map[string]any,
// recursively, so downstream code (checklist merge, registry lookups)
// can work with plain Go maps regardless of which layer produced the
// value (a freshly decoded wire message vs. an in-memory checklist
// entry built by Go code).
func StringMapPayload(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, vv := range val {
			out[fmt.Sprintf("%v", k)] = StringMapPayload(vv)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, vv := range val {
			out[k] = StringMapPayload(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, vv := range val {
			out[i] = StringMapPayload(vv)
		}
		return out
	default:
		return v
	}
}
