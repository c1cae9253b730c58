package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tunehub/authcore"
	"github.com/tunehub/authcore/identity"
	"github.com/tunehub/authcore/moderation"
)

const maxBodyBytes = 1 << 16

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var c credentials
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil || c.Username == "" || c.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return c, false
	}
	return c, true
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	c, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	created, err := s.engine.Register(r.Context(), w, c.Username, c.Password)
	if err != nil {
		s.internalError(w, "register", err)
		return
	}
	if !created {
		writeError(w, http.StatusConflict, "registration rejected")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"username": c.Username})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	c, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	res, err := s.engine.LoginWithResult(r.Context(), w, c.Username, c.Password)
	if err != nil {
		s.internalError(w, "login", err)
		return
	}
	switch res {
	case authcore.LoginSucceeded:
		writeJSON(w, http.StatusOK, map[string]string{"username": c.Username})
	case authcore.LoginBanned:
		writeError(w, http.StatusForbidden, "account suspended")
	case authcore.LoginThrottled:
		writeError(w, http.StatusTooManyRequests, "too many attempts")
	default:
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	}
}

func (s *Server) adminLogin(w http.ResponseWriter, r *http.Request) {
	c, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	ok, err := s.engine.LoginWithRole(r.Context(), w, c.Username, c.Password, identity.RoleAdmin)
	if err != nil {
		s.internalError(w, "admin login", err)
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"username": c.Username})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.engine.Logout(r.Context(), w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	p, _ := authcore.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         p.UserID,
		"username":   p.Username,
		"roles":      p.Roles,
		"expires_at": p.ExpiresAt,
	})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	p, _ := authcore.PrincipalFromContext(r.Context())
	ips, err := s.engine.Sessions(r.Context(), p.UserID)
	if err != nil {
		s.internalError(w, "list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ips})
}

func (s *Server) clearSessions(w http.ResponseWriter, r *http.Request) {
	p, _ := authcore.PrincipalFromContext(r.Context())
	out := s.engine.ClearAllSessions(r.Context(), p.UserID)
	s.engine.Cookies().DeleteTokens(w)
	writeJSON(w, http.StatusOK, map[string]string{"outcome": out.String()})
}

func (s *Server) ban(w http.ResponseWriter, r *http.Request) {
	s.moderate(w, r, "ban", s.moderation.Ban)
}

func (s *Server) unban(w http.ResponseWriter, r *http.Request) {
	s.moderate(w, r, "unban", s.moderation.Unban)
}

func (s *Server) promote(w http.ResponseWriter, r *http.Request) {
	s.moderate(w, r, "promote", s.moderation.Promote)
}

func (s *Server) moderate(w http.ResponseWriter, r *http.Request, action string, apply func(context.Context, string) error) {
	userID := chi.URLParam(r, "id")
	err := apply(r.Context(), userID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, identity.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, moderation.ErrBanned):
		writeError(w, http.StatusConflict, "user is banned")
	default:
		s.internalError(w, action, err)
	}
}
