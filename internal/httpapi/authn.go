package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"pollhub.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Authenticate resolves the optional bearer token into the caller's profile.
// Requests without a token, or whose identity has no resolvable profile,
// continue as anonymous; a malformed or expired token is rejected.
func (a *API) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(authHeader)
		if strings.TrimSpace(raw) == "" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		token, err := extractBearerToken(raw)
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}
		claims, err := a.deps.Tokens.Parse(token)
		if err != nil {
			unauthorized(w, r, "invalid token")
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), claims.Subject)
		ctx = auth.ContextWithClaims(ctx, claims)
		profile, err := a.deps.Gate.ResolveCaller(ctx)
		switch {
		case err == nil:
			ctx = auth.ContextWithActor(ctx, profile)
		case errors.Is(err, auth.ErrNotFound):
			// no profile: anonymous with a verified identity
		default:
			a.log.WithError(err).WithField("request_id", RequestIDFromContext(ctx)).Error("resolve caller")
			writeError(w, r, http.StatusServiceUnavailable, "profile store unavailable")
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="pollhub"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
