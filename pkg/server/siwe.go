package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"devcamp/pkg/siwe"
)

const sessionCookie = "siwe-session"

func (s *Server) issueNonce(w http.ResponseWriter, r *http.Request) {
	nonce, err := s.siwe.IssueNonce(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to issue nonce")
		writeError(w, http.StatusInternalServerError, "failed to issue nonce")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(nonce))
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	var req siwe.VerifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "message and signature are required")
		return
	}

	session, token, err := s.siwe.Verify(r.Context(), req.Message, req.Signature)
	if err != nil {
		s.metrics.LoginVerified(verifyFailure(err))
		s.log.Info().Err(err).Msg("sign-in rejected")
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.metrics.LoginVerified("ok")

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, siwe.SessionResponse{Address: session.Address.Hex(), ChainID: session.ChainID})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		writeJSON(w, http.StatusOK, siwe.SessionResponse{})
		return
	}
	session, err := s.siwe.Sessions().Parse(cookie.Value)
	if err != nil {
		writeJSON(w, http.StatusOK, siwe.SessionResponse{})
		return
	}
	writeJSON(w, http.StatusOK, siwe.SessionResponse{Address: session.Address.Hex(), ChainID: session.ChainID})
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// verifyFailure maps an error onto a bounded metrics label
func verifyFailure(err error) string {
	switch {
	case errors.Is(err, siwe.ErrMalformedMessage):
		return "malformed"
	case errors.Is(err, siwe.ErrInvalidSignature):
		return "bad_signature"
	case errors.Is(err, siwe.ErrNonceUnknown):
		return "bad_nonce"
	case errors.Is(err, siwe.ErrDomainMismatch), errors.Is(err, siwe.ErrURIMismatch), errors.Is(err, siwe.ErrChainNotAllowed):
		return "wrong_audience"
	case errors.Is(err, siwe.ErrExpired), errors.Is(err, siwe.ErrNotYetValid):
		return "stale"
	}
	return "error"
}
