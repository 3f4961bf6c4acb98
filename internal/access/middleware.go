package access

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Resolver turns a bearer token into a Principal.
type Resolver interface {
	ResolvePrincipal(token string) (Principal, error)
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// Authenticate attaches the caller's Principal to the request context.
// Requests without a valid token continue anonymously; Require rejects them.
func Authenticate(res Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := BearerToken(r); token != "" {
				if p, err := res.ResolvePrincipal(token); err == nil {
					r = r.WithContext(WithPrincipal(r.Context(), p))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require rejects requests whose principal lacks capability c: 401 without
// a principal, 403 without the capability.
func (g *Gate) Require(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !g.Allows(p.Roles, c) {
				deny(w, http.StatusForbidden, "missing capability "+string(c))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
