package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/vectorgate/internal/api"
)

type contextKey string

// CallerKey holds the name of the API key a request authenticated with.
const CallerKey contextKey = "caller"

// callerHeader mirrors the caller name onto the request so middleware above
// the auth layer (access log) can still read it after ServeHTTP returns.
const callerHeader = "X-API-Key-Name"

type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (string, error)
}

// bearerToken extracts the token from an Authorization header, returning
// an error message suitable for the client when the header is unusable.
func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", "invalid authorization format"
	}
	return token, ""
}

func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, reason := bearerToken(r)
			if reason != "" {
				api.Error(w, http.StatusUnauthorized, reason)
				return
			}

			caller, err := validator.ValidateAPIKey(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			r.Header.Set(callerHeader, caller)
			ctx := context.WithValue(r.Context(), CallerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCaller returns the authenticated API key name from context.
func GetCaller(ctx context.Context) string {
	caller, _ := ctx.Value(CallerKey).(string)
	return caller
}
