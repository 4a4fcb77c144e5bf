package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/seatmetrics/seatwatch/internal/api/response"
)

const keyIDLen = 8

// Auth validates the Bearer token against the configured bcrypt hash. With
// an empty hash the service runs open, which is the expected deployment
// behind a trusted network.
type Auth struct {
	keyHash string
}

// NewAuth creates the Auth middleware.
func NewAuth(keyHash string) *Auth {
	return &Auth{keyHash: keyHash}
}

// Enabled reports whether a key hash is configured.
func (a *Auth) Enabled() bool {
	return a.keyHash != ""
}

// Authenticate checks the Authorization header and tags the request with a
// client identifier for rate limiting.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			r = r.WithContext(setClientID(r.Context(), clientAddr(r)))
			next.ServeHTTP(w, r)
			return
		}

		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(a.keyHash), []byte(rawKey)) != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		clientID := rawKey
		if len(clientID) > keyIDLen {
			clientID = clientID[:keyIDLen]
		}
		r = r.WithContext(setClientID(r.Context(), clientID))
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
