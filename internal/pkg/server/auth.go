package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anicoll/ics2000-integration/pkg/hasher"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const tokenSubject = "api"

var errTokenInvalid = errors.New("server: token invalid")

type tokenRequest struct {
	Token string `json:"token"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// handleToken trades the static API token for a short-lived JWT.
func (s *server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.cfg.TokenHash == "" {
		writeError(w, http.StatusNotFound, "not_found", "authentication is disabled")
		return
	}
	req, err := unmarshalPayload[tokenRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if !hasher.TokenMatches(req.Token, s.cfg.TokenHash) {
		s.logger.Warn("invalid api token presented", zap.String("remote", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return
	}
	expires := time.Now().Add(s.cfg.TokenTTL)
	signed, err := issueToken(s.cfg.JWTSecret, expires)
	if err != nil {
		s.logger.Error("failed to sign token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expires.UTC()})
}

func issueToken(secret string, expires time.Time) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   tokenSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func parseToken(raw, secret string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", errTokenInvalid, err)
	}
	if !token.Valid || claims.Subject != tokenSubject {
		return "", errTokenInvalid
	}
	return claims.Subject, nil
}
