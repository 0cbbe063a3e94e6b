package worker

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// userKey is the context key for the caller's user or guest ID.
type userKey struct{}

// UserHeader carries the registered user's ID on authenticated routes.
const UserHeader = "X-User-ID"

// guestIDPattern keeps guest IDs URL-safe and bounded.
var guestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// allowedOrigins is the CORS whitelist. Exact matches only, so
// "evil-localhost.com" style origins are rejected.
var allowedOrigins = []string{
	"http://localhost",
	"http://localhost:3000",
	"http://localhost:5173", // Vite dev server
	"http://127.0.0.1",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

// securityHeaders are set on every response. The API serves JSON only, so
// the policy forbids framing and any embedded content.
var securityHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", "default-src 'self'"},
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=()"},
}

// SecurityHeaders adds securityHeaders to every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}

// CORS returns the cross-origin policy for the browser client.
func CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Auth-Token", "Authorization", "X-Request-ID", UserHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// MaxBodySize middleware limits the size of incoming request bodies.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireJSONContentType rejects POST and PUT bodies that are not JSON.
// An empty Content-Type is allowed for requests without a body.
func RequireJSONContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// publicPaths stay reachable without the service token.
var publicPaths = map[string]bool{
	"/health":      true,
	"/api/health":  true,
	"/api/version": true,
}

// TokenAuth gates the service behind one shared token. Clients send it as
// X-Auth-Token or as "Authorization: Bearer <token>".
type TokenAuth struct {
	token []byte
}

// NewTokenAuth returns a disabled gate when enabled is false. An enabled
// gate with no token gets a random 32-byte hex token; read it with Token.
func NewTokenAuth(enabled bool, token string) (*TokenAuth, error) {
	if !enabled {
		return &TokenAuth{}, nil
	}
	if token == "" {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("generate auth token: %w", err)
		}
		token = hex.EncodeToString(raw)
	}
	return &TokenAuth{token: []byte(token)}, nil
}

// Token returns the expected token, or "" when the gate is off.
func (ta *TokenAuth) Token() string { return string(ta.token) }

// IsEnabled reports whether requests are checked.
func (ta *TokenAuth) IsEnabled() bool { return len(ta.token) > 0 }

func presentedToken(r *http.Request) string {
	if t := r.Header.Get("X-Auth-Token"); t != "" {
		return t
	}
	if t, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return t
	}
	return ""
}

// Middleware answers 401 to requests without the token. Public paths and
// CORS preflights pass through.
func (ta *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ta.IsEnabled() || publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if subtle.ConstantTimeCompare([]byte(presentedToken(r)), ta.token) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withUser stores the caller's ID in ctx.
func withUser(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

// UserFromContext returns the user or guest ID set by the identity middleware.
func UserFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

func userFromRequest(r *http.Request) string {
	return UserFromContext(r.Context())
}

// requireUser resolves X-User-ID to a registered account, or answers 401.
func (s *Service) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(UserHeader))
		if id == "" {
			writeError(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
			return
		}
		if _, err := s.store.GetAccount(r.Context(), id); err != nil {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), id)))
	})
}

// requireGuest takes the caller's identity from the {guestID} path segment.
// Only IDs registered through save-name get through; anything else would
// grow guest scoring state that retention never sees.
func (s *Service) requireGuest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "guestID")
		if err := ValidateGuestID(id); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if _, err := s.store.GetGuest(r.Context(), id); err != nil {
			respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), id)))
	})
}

// ValidateGuestID checks a client-chosen guest ID is safe to use as a key.
func ValidateGuestID(id string) error {
	if id == "" {
		return fmt.Errorf("guest ID is required")
	}
	if !guestIDPattern.MatchString(id) {
		return fmt.Errorf("invalid guest ID: only letters, digits, underscore and dash, at most 64 characters")
	}
	return nil
}
