package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"walink/pkg/interfaces"
)

// TokenVerifier checks the bearer token the admin UI attaches to every
// request. An empty secret disables verification, which keeps local
// development friction-free.
type TokenVerifier struct {
	secret []byte
	log    zerolog.Logger
}

// NewTokenVerifier creates a verifier for HS256-signed tokens.
func NewTokenVerifier(secret string, logger zerolog.Logger) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(secret),
		log:    logger.With().Str("component", "auth").Logger(),
	}
}

// Enabled reports whether a signing secret is configured.
func (v *TokenVerifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify parses and validates a raw token string.
func (v *TokenVerifier) Verify(raw string) error {
	if !v.Enabled() {
		return nil
	}
	if raw == "" {
		return interfaces.ErrUnauthorized
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrUnauthorized, err)
	}
	if !token.Valid {
		return interfaces.ErrUnauthorized
	}
	return nil
}

// VerifyRequest extracts and validates the token from an HTTP request.
// Browsers cannot set headers on websocket upgrades, so a token query
// parameter is accepted as a fallback.
func (v *TokenVerifier) VerifyRequest(r *http.Request) error {
	if !v.Enabled() {
		return nil
	}

	raw := ""
	if header := r.Header.Get("Authorization"); header != "" {
		raw = strings.TrimPrefix(header, "Bearer ")
	} else {
		raw = r.URL.Query().Get("token")
	}

	if err := v.Verify(raw); err != nil {
		v.log.Debug().Str("path", r.URL.Path).Msg("rejected request with invalid token")
		return err
	}
	return nil
}

// Middleware wraps a handler with request token verification.
func (v *TokenVerifier) Middleware(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if err := v.VerifyRequest(r); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprintf(w, `{"error":%q,"code":401,"message":"Invalid or missing token"}`, http.StatusText(http.StatusUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}
