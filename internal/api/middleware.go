package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/nikhilbhatia/typerush/backend/internal/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// RequireAuth rejects requests without a valid Bearer token and injects the
// verified claims into the request context.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			errorResponse(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := a.tokens.ValidateToken(token)
		if err != nil {
			errorResponse(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next(w, r.WithContext(ctx))
	}
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}
