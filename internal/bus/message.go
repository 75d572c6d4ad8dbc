// Package bus defines the platform message type and the publish/subscribe
// transport contract used by every aura component. Two transports are
// provided: an in-process bus and a websocket client speaking the platform
// messagebus framing ({type, data, context} JSON objects).
package bus

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Message is a single bus envelope. Data carries the payload, Context carries
// correlation metadata (ident, source, destination) that must survive
// reply/forward chains.
type Message struct {
	Type    string         `json:"type"`
	Data    map[string]any `json:"data"`
	Context map[string]any `json:"context"`
}

// NewMessage builds a message with non-nil Data and Context maps.
func NewMessage(msgType string, data map[string]any) *Message {
	if data == nil {
		data = map[string]any{}
	}
	return &Message{Type: msgType, Data: data, Context: map[string]any{}}
}

// Reply constructs a response to m: new type and data, context copied from m
// so correlation metadata is preserved.
func (m *Message) Reply(msgType string, data map[string]any) *Message {
	if data == nil {
		data = map[string]any{}
	}
	return &Message{Type: msgType, Data: data, Context: copyMap(m.Context)}
}

// Forward constructs a message of a new type carrying m's data and context
// unchanged. Used to re-emit an event under a different topic.
func (m *Message) Forward(msgType string) *Message {
	return &Message{Type: msgType, Data: copyMap(m.Data), Context: copyMap(m.Context)}
}

// Ident returns the correlation id from the context, if any.
func (m *Message) Ident() string {
	if m.Context == nil {
		return ""
	}
	id, _ := m.Context["ident"].(string)
	return id
}

// EnsureIdent sets a fresh UUID correlation id if none is present and returns
// the effective ident.
func (m *Message) EnsureIdent() string {
	if m.Context == nil {
		m.Context = map[string]any{}
	}
	if id := m.Ident(); id != "" {
		return id
	}
	id := uuid.NewString()
	m.Context["ident"] = id
	return id
}

// Serialize encodes the message for the wire.
func (m *Message) Serialize() ([]byte, error) {
	return json.Marshal(m)
}

// Deserialize decodes a wire frame into a message.
func Deserialize(raw []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("malformed bus frame: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("bus frame missing type")
	}
	if m.Data == nil {
		m.Data = map[string]any{}
	}
	if m.Context == nil {
		m.Context = map[string]any{}
	}
	return &m, nil
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
