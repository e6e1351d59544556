package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller, taken from the token claims.
type Identity struct {
	UserID      string
	DisplayName string
	Roles       []string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// Middleware validates the Bearer token of every request whose path does not
// start with one of the public prefixes, and injects the caller identity.
func Middleware(issuer Issuer, publicPrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range publicPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			header := r.Header.Get("Authorization")
			tokenStr, found := strings.CutPrefix(header, "Bearer ")
			if !found || tokenStr == "" {
				unauthenticated(w, "authorization token is missing")
				return
			}

			claims, err := issuer.ValidateToken(tokenStr)
			if err != nil {
				unauthenticated(w, "invalid or expired token")
				return
			}

			ctx := WithIdentity(r.Context(), Identity{
				UserID:      claims.UserID,
				DisplayName: claims.DisplayName,
				Roles:       claims.Roles,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthenticated(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
