package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/bindguard/internal/common"
	"github.com/dmitrijs2005/bindguard/internal/server/opaque"
)

// Binary protocol messages travel inside JSON as base64 ([]byte fields).

type registrationStartRequest struct {
	Username          string `json:"username"`
	RegistrationStart []byte `json:"registration_start_request"`
}

type registrationStartResponse struct {
	ServerData           string `json:"server_data"`
	RegistrationResponse []byte `json:"registration_response"`
}

type registrationFinishRequest struct {
	ServerData         string `json:"server_data"`
	RegistrationUpload []byte `json:"registration_upload"`
}

type loginStartRequest struct {
	Username   string `json:"username"`
	LoginStart []byte `json:"login_start_request"`
}

type loginStartResponse struct {
	ServerData         string `json:"server_data"`
	CredentialResponse []byte `json:"credential_response"`
}

type loginFinishRequest struct {
	ServerData             string `json:"server_data"`
	CredentialFinalization []byte `json:"credential_finalization"`
}

type bindRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto HTTP statuses. Every authentication
// failure gets the same body so responses carry no hint about the cause.
func (s *HTTPServer) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, opaque.ErrAuthenticationFailed),
		errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrRefreshTokenExpired):
		http.Error(w, "authentication failed", http.StatusUnauthorized)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *HTTPServer) registrationStart(w http.ResponseWriter, r *http.Request) {
	var req registrationStartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.opaque.RegistrationStart(r.Context(), req.Username, req.RegistrationStart)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, &registrationStartResponse{
		ServerData:           result.ServerData,
		RegistrationResponse: result.RegistrationResponse,
	})
}

func (s *HTTPServer) registrationFinish(w http.ResponseWriter, r *http.Request) {
	var req registrationFinishRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.opaque.RegistrationFinish(r.Context(), req.ServerData, req.RegistrationUpload); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *HTTPServer) loginStart(w http.ResponseWriter, r *http.Request) {
	var req loginStartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.opaque.LoginStart(r.Context(), req.Username, req.LoginStart)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, &loginStartResponse{
		ServerData:         result.ServerData,
		CredentialResponse: result.CredentialResponse,
	})
}

func (s *HTTPServer) loginFinish(w http.ResponseWriter, r *http.Request) {
	var req loginFinishRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	username, err := s.opaque.LoginFinish(r.Context(), req.ServerData, req.CredentialFinalization)
	if err != nil {
		s.writeError(w, err)
		return
	}
	tokens, err := s.users.IssueTokens(r.Context(), username)
	if err != nil {
		s.logger.Error(r.Context(), "issuing tokens", "user", username, "error", err)
		s.writeError(w, err)
		return
	}
	s.logger.Info(r.Context(), "Login", "user", username)
	writeJSON(w, &tokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken})
}

func (s *HTTPServer) simpleBind(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.opaque.Bind(r.Context(), req.Username, req.Password); err != nil {
		s.writeError(w, err)
		return
	}
	username := opaque.NormalizeUserID(req.Username)
	tokens, err := s.users.IssueTokens(r.Context(), username)
	if err != nil {
		s.logger.Error(r.Context(), "issuing tokens", "user", username, "error", err)
		s.writeError(w, err)
		return
	}
	s.logger.Info(r.Context(), "Bind", "user", username)
	writeJSON(w, &tokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken})
}

func (s *HTTPServer) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tokens, err := s.users.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, &tokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken})
}

func (s *HTTPServer) health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		http.Error(w, "db unreachable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "OK"})
}
