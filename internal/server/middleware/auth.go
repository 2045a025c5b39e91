package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-essam23/socket-gateway/pkg/auth"
	"github.com/a-essam23/socket-gateway/pkg/state"
)

const (
	TokenQueryParam = "token"
	TokenCookie     = "session-token"
)

// IdentityResolver turns a raw credential into an identity.
type IdentityResolver interface {
	Resolve(credential string) (state.Identity, auth.Outcome, error)
}

// ExtractCredential looks for a token in the Authorization header, then the
// "token" query parameter, then the session cookie.
func ExtractCredential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := r.URL.Query().Get(TokenQueryParam); token != "" {
		return token
	}
	if cookie, err := r.Cookie(TokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// NewAuthMiddleware binds an identity to the request metadata. Requests are
// only rejected when the resolver returns an error, which happens in
// enforced mode.
func NewAuthMiddleware(logger *slog.Logger, resolver IdentityResolver) Middleware {
	logger = logger.With(slog.String("component", "auth_middleware"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// couldn't extract metadata from request so something went wrong with previous middlewares
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			identity, outcome, err := resolver.Resolve(ExtractCredential(r))
			reqMeta.Outcome = outcome
			if err != nil {
				if errors.Is(err, auth.ErrUnauthorized) {
					logger.Warn("Rejected connection",
						slog.String("ip", reqMeta.IP),
						slog.String("outcome", outcome.String()),
					)
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				logger.Error("Identity resolution failed", slog.String("ip", reqMeta.IP), slog.Any("error", err))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			reqMeta.Identity = identity
			reqMeta.Authenticated = true
			next.ServeHTTP(w, r)
		})
	}
}
