// Package message defines the wire envelope exchanged with the host, the
// codecs that serialize it, and the typed payloads of the handshake.
package message

import (
	"encoding/json"
	"fmt"
)

// Actions recognized by the transport itself. Any other action is opaque.
const (
	// ActionAck is the response action for every correlated request.
	ActionAck = "ack"

	ActionRequestExternalAuthorization  = "request-external-authorization"
	ActionExternalAuthorizationResponse = "external-authorization-response"
	ActionRequestAuthorization          = "request-authorization"
	ActionAuthorizationResponse         = "authorization-response"
)

// Message is the envelope carried by the wire.
//
// Wire format:
//
//	{
//	  "action": "get-version",
//	  "payload": {...} | null,
//	  "messageId": 4,
//	  "correlationId": 4
//	}
//
// MessageID is set by the sender of a request. A response echoes it back as
// CorrelationID. A message without a correlationId key is uncorrelated: an
// event or a handshake reply. A correlationId key holding null still marks a
// response, one that can never match a pending request.
type Message struct {
	Action        string         `json:"action"                  cbor:"action"`
	Payload       map[string]any `json:"payload"                 cbor:"payload"`
	MessageID     *uint64        `json:"messageId,omitempty"     cbor:"messageId,omitempty"`
	CorrelationID *uint64        `json:"correlationId,omitempty" cbor:"correlationId,omitempty"`

	nullCorrelation bool
}

// NewRequest builds an outbound message carrying id as its messageId.
func NewRequest(action string, payload map[string]any, id uint64) *Message {
	return &Message{
		Action:    action,
		Payload:   payload,
		MessageID: &id,
	}
}

// NewAck builds a correlated ack response for the request id.
func NewAck(id uint64, success bool, data any) *Message {
	payload := map[string]any{"success": success}
	if data != nil {
		payload["data"] = data
	}

	return &Message{
		Action:        ActionAck,
		Payload:       payload,
		CorrelationID: &id,
	}
}

// NewEvent builds an uncorrelated message.
func NewEvent(action string, payload map[string]any) *Message {
	return &Message{Action: action, Payload: payload}
}

// IsCorrelated reports whether the message answers a prior request, that is
// whether it carried a correlationId key at all.
func (m *Message) IsCorrelated() bool {
	return m.CorrelationID != nil || m.nullCorrelation
}

// hasCorrelationKey reports whether keys, the decoded top-level map of an
// envelope, contains correlationId.
func hasCorrelationKey[V any](keys map[string]V) bool {
	_, ok := keys["correlationId"]

	return ok
}

// Success reports whether payload.success is truthy.
// A nil payload is never successful.
func (m *Message) Success() bool {
	if m.Payload == nil {
		return false
	}

	return Truthy(m.Payload["success"])
}

// Data returns payload.data, or nil when absent.
func (m *Message) Data() any {
	if m.Payload == nil {
		return nil
	}

	return m.Payload["data"]
}

// DecodePayload converts the payload into v, which should be a pointer to a
// struct with json tags. The payload passes through JSON so values decoded by
// any codec end up with the same Go types.
func (m *Message) DecodePayload(v any) error {
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	return nil
}

// String renders the message for logs.
func (m *Message) String() string {
	switch {
	case m.CorrelationID != nil:
		return fmt.Sprintf("%s#%d", m.Action, *m.CorrelationID)
	case m.nullCorrelation:
		return m.Action + "#null"
	case m.MessageID != nil:
		return fmt.Sprintf("%s(%d)", m.Action, *m.MessageID)
	default:
		return m.Action
	}
}

// Truthy mirrors the loose truthiness hosts rely on for payload.success:
// false, nil, zero numbers and the empty string are falsy, anything else is
// truthy.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case float32:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case uint64:
		return x != 0
	case json.Number:
		f, err := x.Float64()

		return err != nil || f != 0
	default:
		return true
	}
}

// Handler observes every inbound message. It reports whether it handled the
// message; an error is reported to the transport's error sink and does not
// stop other handlers from running.
type Handler func(msg *Message) (handled bool, err error)
