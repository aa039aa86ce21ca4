package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nearair/nearair/internal/api/models"
	"github.com/nearair/nearair/internal/auth"
)

type subjectKey struct{}

// RequireToken checks for a bearer token valid for scope. A nil tokens
// service leaves the route open.
func RequireToken(tokens *auth.Tokens, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if tokens == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeProblem(w, r, models.NewUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
				writeProblem(w, r, models.NewUnauthorized, "invalid authorization header format")
				return
			}
			token := strings.TrimSpace(header[len(bearerPrefix):])
			if token == "" {
				writeProblem(w, r, models.NewUnauthorized, "missing bearer token")
				return
			}

			claims, err := tokens.Validate(token, scope)
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				writeProblem(w, r, models.NewUnauthorized, "token has expired")
				return
			case errors.Is(err, auth.ErrScopeDenied):
				writeProblem(w, r, models.NewForbidden, "token does not allow "+scope)
				return
			case err != nil:
				writeProblem(w, r, models.NewUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSubject returns the authenticated token subject, or "" on open routes.
func GetSubject(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey{}).(string); ok {
		return s
	}
	return ""
}

// writeProblem lives here rather than in response to avoid an import cycle.
func writeProblem(w http.ResponseWriter, r *http.Request, newProblem func(traceID, detail string) *models.Problem, detail string) {
	newProblem(GetRequestID(r.Context()), detail).WithInstance(r.URL.Path).Write(w)
}
