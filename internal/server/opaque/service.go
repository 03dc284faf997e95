// Package opaque implements the server side of the OPAQUE password exchange:
// the envelope codec that keeps the server stateless, the exchange driver
// around the PAKE primitive, and the Service orchestrating both against the
// credential store.
package opaque

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/dmitrijs2005/bindguard/internal/common"
	"github.com/dmitrijs2005/bindguard/internal/logging"
	"github.com/dmitrijs2005/bindguard/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/bindguard/internal/server/repositories/repomanager"
)

// NormalizeUserID canonicalizes a user identity for storage keys and protocol
// binding. Identities differing only in case or surrounding whitespace are
// the same user.
func NormalizeUserID(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Service orchestrates the four protocol operations plus the legacy cleartext
// bind. It holds no per-exchange state: everything a finish step needs rides
// inside the sealed ServerData token the client carries between round trips.
type Service struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	driver *Driver
	codec  *Codec
	logger logging.Logger
}

// NewService wires the orchestrator to its storage and crypto collaborators.
func NewService(db *sql.DB, m repomanager.RepositoryManager, driver *Driver, codec *Codec, logger logging.Logger) *Service {
	return &Service{db: db, repos: m, driver: driver, codec: codec, logger: logger.With("module", "opaque")}
}

// RegistrationStartResponse carries the server's registration message and the
// sealed state token the client must echo back on the finish leg.
type RegistrationStartResponse struct {
	ServerData           string
	RegistrationResponse []byte
}

// LoginStartResponse carries the server's credential response and the sealed
// state token for the login finish leg.
type LoginStartResponse struct {
	ServerData         string
	CredentialResponse []byte
}

// RegistrationStart begins a password registration. It performs no storage
// access and no authentication: callers must have authorized the change
// before invoking it.
func (s *Service) RegistrationStart(ctx context.Context, username string, registrationStart []byte) (*RegistrationStartResponse, error) {
	username = NormalizeUserID(username)
	msg, state, err := s.driver.RegistrationStart(username, registrationStart)
	if err != nil {
		s.logger.Debug(ctx, "registration start rejected", "user", username, "error", err)
		return nil, ErrAuthenticationFailed
	}
	payload, err := encodeState(state)
	if err != nil {
		s.logger.Error(ctx, "encoding registration state", "error", err)
		return nil, common.ErrorInternal
	}
	token, err := s.codec.Seal(payload)
	if err != nil {
		s.logger.Error(ctx, "sealing registration state", "error", err)
		return nil, common.ErrorInternal
	}
	return &RegistrationStartResponse{ServerData: token, RegistrationResponse: msg}, nil
}

// RegistrationFinish completes a registration: it opens the sealed state,
// derives the password file from the client upload and stores it, replacing
// any previous file for that user. The user row must already exist.
func (s *Service) RegistrationFinish(ctx context.Context, serverData string, registrationUpload []byte) error {
	payload, err := s.codec.Open(serverData)
	if err != nil {
		s.logger.Debug(ctx, "registration envelope rejected", "error", err)
		return ErrAuthenticationFailed
	}
	state := &registrationState{}
	if err := decodeState(payload, state); err != nil {
		s.logger.Debug(ctx, "registration state rejected", "error", err)
		return ErrAuthenticationFailed
	}
	file, err := s.driver.RegistrationFinish(state, registrationUpload)
	if err != nil {
		s.logger.Debug(ctx, "registration finish rejected", "user", state.Username, "error", err)
		return ErrAuthenticationFailed
	}
	if err := s.repos.Credentials(s.db).Set(ctx, state.Username, file); err != nil {
		s.logger.Error(ctx, "storing password file", "user", state.Username, "error", err)
		return common.ErrorInternal
	}
	return nil
}

// LoginStart begins a login exchange. The driver runs whether or not a
// password file exists; an unknown user receives a response of identical
// shape and only discovers the difference at the finish step.
func (s *Service) LoginStart(ctx context.Context, username string, credentialRequest []byte) (*LoginStartResponse, error) {
	username = NormalizeUserID(username)
	lookup, err := s.repos.Credentials(s.db).Get(ctx, username)
	if err != nil {
		s.logger.Error(ctx, "credential lookup failed", "user", username, "error", err)
		return nil, common.ErrorInternal
	}
	var file []byte
	switch lookup.State {
	case credentials.StateFound:
		file = lookup.File
	case credentials.StateNoCredential:
		s.logger.Debug(ctx, "login start for user without password file", "user", username)
	default:
		s.logger.Debug(ctx, "login start for unknown user", "user", username)
	}

	msg, state, err := s.driver.LoginStart(username, file, credentialRequest)
	if err != nil {
		if errors.Is(err, ErrStorageCorruption) {
			s.logger.Error(ctx, "stored password file is corrupted", "user", username, "error", err)
			return nil, common.ErrorInternal
		}
		s.logger.Debug(ctx, "login start rejected", "user", username, "error", err)
		return nil, ErrAuthenticationFailed
	}
	payload, err := encodeState(state)
	if err != nil {
		s.logger.Error(ctx, "encoding login state", "error", err)
		return nil, common.ErrorInternal
	}
	token, err := s.codec.Seal(payload)
	if err != nil {
		s.logger.Error(ctx, "sealing login state", "error", err)
		return nil, common.ErrorInternal
	}
	return &LoginStartResponse{ServerData: token, CredentialResponse: msg}, nil
}

// LoginFinish verifies the client's finalization and returns the
// authenticated user identity. The PAKE session key is discarded: callers
// get a yes-plus-identity or a failure, nothing else. Every failure mode is
// reported as ErrAuthenticationFailed; the true cause goes to the debug log.
func (s *Service) LoginFinish(ctx context.Context, serverData string, credentialFinalization []byte) (string, error) {
	payload, err := s.codec.Open(serverData)
	if err != nil {
		s.logger.Debug(ctx, "login envelope rejected", "error", err)
		return "", ErrAuthenticationFailed
	}
	state := &loginState{}
	if err := decodeState(payload, state); err != nil {
		s.logger.Debug(ctx, "login state rejected", "error", err)
		return "", ErrAuthenticationFailed
	}
	if _, err := s.driver.LoginFinish(state, credentialFinalization); err != nil {
		s.logger.Debug(ctx, "login finish rejected", "user", state.Username, "error", err)
		return "", ErrAuthenticationFailed
	}
	return state.Username, nil
}

// Bind authenticates a cleartext password for clients that cannot run the
// exchange. Unlike LoginStart it fails immediately for absent credentials:
// this path only exists for callers that already reveal the password, so the
// decoy exchange buys nothing.
func (s *Service) Bind(ctx context.Context, username, password string) error {
	username = NormalizeUserID(username)
	lookup, err := s.repos.Credentials(s.db).Get(ctx, username)
	if err != nil {
		s.logger.Error(ctx, "credential lookup failed", "user", username, "error", err)
		return common.ErrorInternal
	}
	if lookup.State != credentials.StateFound {
		s.logger.Debug(ctx, "bind for user without credential", "user", username)
		return ErrAuthenticationFailed
	}
	if err := s.driver.CheckCleartext(lookup.File, password, username); err != nil {
		if errors.Is(err, ErrStorageCorruption) {
			s.logger.Error(ctx, "stored password file is corrupted", "user", username, "error", err)
			return common.ErrorInternal
		}
		s.logger.Debug(ctx, "bind rejected", "user", username, "error", err)
		return ErrAuthenticationFailed
	}
	return nil
}
