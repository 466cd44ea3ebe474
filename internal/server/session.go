package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"reelshelf/internal/accounts"
	"reelshelf/internal/auth"
	"reelshelf/internal/metrics"
	"reelshelf/internal/progress"
)

func (s *Server) handleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			errorJSON(w, http.StatusBadRequest, "invalid body")
			return
		}
		user, err := s.deps.Accounts.Authenticate(req.Username, req.Password)
		switch {
		case errors.Is(err, accounts.ErrPendingApproval):
			metrics.LoginAttemptsTotal.WithLabelValues("pending").Inc()
			errorJSON(w, http.StatusForbidden, "account pending approval")
			return
		case err != nil:
			metrics.LoginAttemptsTotal.WithLabelValues("rejected").Inc()
			s.logger.Warn().Str("username", req.Username).Str("client_ip", clientIP(r)).Msg("login rejected")
			errorJSON(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		token, expires, err := s.deps.Auth.IssueToken(user.ID, user.Username, user.Role)
		if err != nil {
			errorJSON(w, http.StatusInternalServerError, "token error")
			return
		}
		metrics.LoginAttemptsTotal.WithLabelValues("ok").Inc()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"token":     token,
			"expiresAt": expires,
			"user": map[string]string{
				"id":       user.ID,
				"username": user.Username,
				"role":     user.Role,
			},
		})
	}
}

func (s *Server) handleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.ClaimsFromContext(r.Context())
		if err := s.deps.Auth.Revoke(r.Context(), claims); err != nil {
			s.logger.Error().Err(err).Msg("revoke token")
			errorJSON(w, http.StatusInternalServerError, "logout failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
	}
}

func (s *Server) handleGetProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.ClaimsFromContext(r.Context())
		got, err := s.deps.Progress.ForUser(r.Context(), claims.UserID)
		if err != nil {
			s.logger.Error().Err(err).Msg("load progress")
			errorJSON(w, http.StatusInternalServerError, "progress unavailable")
			return
		}
		writeJSON(w, http.StatusOK, got)
	}
}

func (s *Server) handleSaveProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.ClaimsFromContext(r.Context())
		var req progress.Update
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			errorJSON(w, http.StatusBadRequest, "invalid body")
			return
		}
		if err := req.Validate(); err != nil {
			errorJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.deps.Progress.Save(r.Context(), claims.UserID, req); err != nil {
			s.logger.Error().Err(err).Msg("save progress")
			errorJSON(w, http.StatusInternalServerError, "progress unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Progress saved"})
	}
}
