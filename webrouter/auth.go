// Package webrouter implements the one slice of the otherwise
// out-of-scope WebRouter collaborator (spec.md §1/§4.5) that the core
// itself must expose: the control-plane HTTP surface of spec.md §6/§7 —
// device status, timer/mail/wifi/relay configuration, reboot, and
// factory reset — routed with github.com/go-chi/chi/v5 and guarded by a
// bearer-token/cookie-fallback auth middleware in the security posture
// onllm-dev-syntrack applies to its own session tokens.
package webrouter

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lebensspur/sentinel/internal/types"
)

// sessionCookieName matches spec.md §6's "Cookie: session=<token>"
// fallback.
const sessionCookieName = "session"

// HashToken bcrypt-hashes a plaintext bearer token for storage in
// ApiSettings.TokenHash; the plaintext is never persisted.
func HashToken(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	return string(hash), err
}

// authMiddleware enforces spec.md §6's "Authorization: Bearer <token>
// primary, Cookie: session=<token> fallback", bypassing auth entirely
// during first-time setup (no token configured yet).
func authMiddleware(settings func() types.ApiSettings) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cfg := settings()
			if cfg.TokenHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				if c, err := r.Cookie(sessionCookieName); err == nil {
					token = c.Value
				}
			}
			if token == "" || bcrypt.CompareHashAndPassword([]byte(cfg.TokenHash), []byte(token)) != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerVerify checks a plaintext candidate token against its stored bcrypt
// hash, used by /api/login when exchanging a bearer token for a cookie.
func bearerVerify(hash, candidate string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate))
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(h, prefix) {
		return strings.TrimPrefix(h, prefix)
	}
	return ""
}

// sessionCookie builds the fallback auth cookie issued on login.
func sessionCookie(token string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(ttl),
	}
}
