package message

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/wagiedev/hostwire-go/internal/errors"
)

// Codec serializes envelopes for a wire.
type Codec interface {
	// Name is the registry key, e.g. "json".
	Name() string

	// Binary reports whether encoded frames are binary rather than text.
	Binary() bool

	Marshal(msg *Message) ([]byte, error)
	Unmarshal(data []byte, msg *Message) error
}

// JSON returns the default text codec.
func JSON() Codec { return jsonCodec{} }

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Marshal(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg *Message) error {
	if err := json.Unmarshal(data, msg); err != nil {
		return err
	}

	if msg.CorrelationID == nil {
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(data, &keys); err != nil {
			return err
		}

		msg.nullCorrelation = hasCorrelationKey(keys)
	}

	return nil
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a binary codec using core deterministic encoding.
// Nested maps decode as map[string]any so payloads look the same as with JSON.
func CBOR() (Codec, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}

	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor dec mode: %w", err)
	}

	return cborCodec{enc: em, dec: dm}, nil
}

func (cborCodec) Name() string { return "cbor" }

func (cborCodec) Binary() bool { return true }

func (c cborCodec) Marshal(msg *Message) ([]byte, error) {
	return c.enc.Marshal(msg)
}

func (c cborCodec) Unmarshal(data []byte, msg *Message) error {
	if err := c.dec.Unmarshal(data, msg); err != nil {
		return err
	}

	if msg.CorrelationID == nil {
		var keys map[string]cbor.RawMessage
		if err := c.dec.Unmarshal(data, &keys); err != nil {
			return err
		}

		msg.nullCorrelation = hasCorrelationKey(keys)
	}

	return nil
}

// CodecByName resolves a codec name. The empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON(), nil
	case "cbor":
		return CBOR()
	default:
		return nil, fmt.Errorf("%w: %q (known: %v)", errors.ErrUnknownCodec, name, CodecNames())
	}
}

// CodecNames lists the registered codec names.
func CodecNames() []string {
	return []string{"cbor", "json"}
}
