package hostwire

import (
	"github.com/wagiedev/hostwire-go/internal/client"
	"github.com/wagiedev/hostwire-go/internal/config"
	"github.com/wagiedev/hostwire-go/internal/message"
)

// Message is the envelope exchanged with the host. Requests carry a
// MessageID, responses echo it as CorrelationID, events carry neither.
type Message = message.Message

// Handler inspects an inbound message. It reports whether it handled the
// message; an error is passed to the protocol error callback.
type Handler = message.Handler

// Identity names the connecting application to the host.
type Identity = config.Identity

// Request is one entry of a SendBatch call.
type Request = client.Request

// Codec encodes envelopes for the wire.
type Codec = message.Codec

// Handshake and response actions.
const (
	ActionAck                           = message.ActionAck
	ActionRequestExternalAuthorization  = message.ActionRequestExternalAuthorization
	ActionExternalAuthorizationResponse = message.ActionExternalAuthorizationResponse
	ActionRequestAuthorization          = message.ActionRequestAuthorization
	ActionAuthorizationResponse         = message.ActionAuthorizationResponse
)

// NewIdentity returns an identity with a fresh UUID.
func NewIdentity(name string) Identity {
	return message.NewIdentity(name)
}

// NewEvent builds an uncorrelated message, as a host sends unprompted.
func NewEvent(action string, payload map[string]any) *Message {
	return message.NewEvent(action, payload)
}

// CodecNames lists the codec names accepted by WithCodec.
func CodecNames() []string {
	return message.CodecNames()
}

// JSONCodec returns the default JSON envelope codec.
func JSONCodec() Codec {
	return message.JSON()
}

// CBORCodec returns the CBOR envelope codec.
func CBORCodec() (Codec, error) {
	return message.CBOR()
}
