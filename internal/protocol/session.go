package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wagiedev/hostwire-go/internal/errors"
	"github.com/wagiedev/hostwire-go/internal/message"
)

// TokenPersister stores the token granted during the handshake at the
// location the host names. The host reads it back from there before it
// answers the authorization request.
type TokenPersister interface {
	Persist(ctx context.Context, file string, token string) error
}

// Session runs the token handshake on top of a connected Controller.
type Session struct {
	log        *slog.Logger
	controller *Controller
	identity   message.Identity
	persister  TokenPersister

	mu    sync.RWMutex
	token string
}

// NewSession creates a new Session for the given application identity.
func NewSession(
	log *slog.Logger,
	controller *Controller,
	identity message.Identity,
	persister TokenPersister,
) *Session {
	return &Session{
		log:        log.With("component", "session", "uuid", identity.UUID),
		controller: controller,
		identity:   identity,
		persister:  persister,
	}
}

// Authenticate performs the two-round-trip handshake and returns the token.
//
//  1. request-external-authorization, answered by an uncorrelated
//     external-authorization-response carrying {token, file}
//  2. the token is persisted to file
//  3. request-authorization, answered by an uncorrelated
//     authorization-response whose payload.success must be exactly true
//
// A reply with any other action fails with KindUnexpectedAction and the
// handshake stops there. A denied authorization fails with KindNoSuccess.
func (s *Session) Authenticate(ctx context.Context) (string, error) {
	token, err := s.authenticate(ctx)
	s.controller.observer.HandshakeFinished(err)

	if err != nil {
		s.log.Error("Handshake failed", "error", err)

		return "", err
	}

	s.log.Info("Authenticated with host")

	return token, nil
}

func (s *Session) authenticate(ctx context.Context) (string, error) {
	if err := s.identity.Validate(); err != nil {
		return "", err
	}

	request := message.AuthorizationRequest{
		UUID: s.identity.UUID,
		Type: message.CredentialTypeFileToken,
	}

	s.log.Debug("Requesting external authorization")

	resp, err := s.controller.SendUncorrelated(ctx, message.ActionRequestExternalAuthorization, request.Map())
	if err != nil {
		return "", fmt.Errorf("request external authorization: %w", err)
	}

	if resp.Action != message.ActionExternalAuthorizationResponse {
		return "", &errors.ProtocolError{Kind: errors.KindUnexpectedAction, Action: resp.Action}
	}

	grant, err := message.DecodeAuthorizationPayload(resp)
	if err != nil {
		return "", err
	}

	if err := s.persister.Persist(ctx, grant.File, grant.Token); err != nil {
		return "", fmt.Errorf("persist token: %w", err)
	}

	s.log.Debug("Token persisted, requesting authorization", "file", grant.File)

	resp, err = s.controller.SendUncorrelated(ctx, message.ActionRequestAuthorization, request.Map())
	if err != nil {
		return "", fmt.Errorf("request authorization: %w", err)
	}

	if resp.Action != message.ActionAuthorizationResponse {
		return "", &errors.ProtocolError{Kind: errors.KindUnexpectedAction, Action: resp.Action}
	}

	if !message.DecodeAuthorizationResult(resp).Success {
		return "", &errors.ProtocolError{Kind: errors.KindNoSuccess, Action: resp.Action, Payload: resp.Payload}
	}

	s.mu.Lock()
	s.token = grant.Token
	s.mu.Unlock()

	return grant.Token, nil
}

// Token returns the token from the last successful handshake, or "".
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}
