package message

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"

	"github.com/wagiedev/hostwire-go/internal/errors"
)

// CredentialTypeFileToken is the only credential type the handshake offers.
const CredentialTypeFileToken = "file-token"

// Identity describes the connecting application. It is supplied once at
// connect time and never mutated by the transport.
type Identity struct {
	UUID string `json:"uuid"           mapstructure:"uuid"`
	Name string `json:"name,omitempty" mapstructure:"name"`
}

// NewIdentity returns an identity with a freshly generated UUID.
func NewIdentity(name string) Identity {
	return Identity{UUID: uuid.NewString(), Name: name}
}

// Validate checks that the identity can be presented to the host.
func (i Identity) Validate() error {
	if i.UUID == "" {
		return fmt.Errorf("%w: identity uuid is empty", errors.ErrInvalidPayload)
	}

	return nil
}

// AuthorizationRequest is the payload of both handshake requests.
type AuthorizationRequest struct {
	UUID string `json:"uuid"`
	Type string `json:"type"`
}

// Map converts the request into an envelope payload.
func (r AuthorizationRequest) Map() map[string]any {
	return map[string]any{
		"uuid": r.UUID,
		"type": r.Type,
	}
}

// AuthorizationPayload carries the credential granted by the host and the
// location it must be persisted to.
type AuthorizationPayload struct {
	Token string `json:"token"`
	File  string `json:"file"`
}

// AuthorizationResult is the payload of the final handshake response.
type AuthorizationResult struct {
	Success bool `json:"success"`
}

var (
	schemaOnce          sync.Once
	authPayloadSchema   *jsonschema.Resolved
	errSchemaResolution error
)

func resolveSchemas() {
	minLen := 1

	grant := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"token": {Type: "string", MinLength: &minLen},
			"file":  {Type: "string", MinLength: &minLen},
		},
		Required: []string{"token", "file"},
	}

	authPayloadSchema, errSchemaResolution = grant.Resolve(nil)
}

// DecodeAuthorizationPayload validates and decodes the payload of an
// external-authorization-response.
func DecodeAuthorizationPayload(msg *Message) (AuthorizationPayload, error) {
	var out AuthorizationPayload
	if err := validatePayload(msg); err != nil {
		return out, err
	}

	if err := msg.DecodePayload(&out); err != nil {
		return out, fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}

	return out, nil
}

// DecodeAuthorizationResult reads the payload of an authorization-response.
// Success is true only when payload.success is exactly the boolean true; a
// missing payload or a non-boolean value counts as a denial.
func DecodeAuthorizationResult(msg *Message) AuthorizationResult {
	ok, _ := msg.Payload["success"].(bool)

	return AuthorizationResult{Success: ok}
}

func validatePayload(msg *Message) error {
	schemaOnce.Do(resolveSchemas)

	if errSchemaResolution != nil {
		return fmt.Errorf("resolve payload schema: %w", errSchemaResolution)
	}

	if msg.Payload == nil {
		return fmt.Errorf("%w: %s has no payload", errors.ErrInvalidPayload, msg.Action)
	}

	instance, err := normalize(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}

	if err := authPayloadSchema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %s: %w", errors.ErrInvalidPayload, msg.Action, err)
	}

	return nil
}

// normalize round-trips through JSON so the validator only sees JSON value types.
func normalize(payload map[string]any) (map[string]any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	return out, nil
}
