package middleware

import (
	"log/slog"
	"net/http"

	"github.com/a-essam23/socket-gateway/pkg/auth"
)

// IdentityConnectionCounter reports how many live sessions an identity has.
type IdentityConnectionCounter func(identityID int64) int

// NewConnectionLimiter rejects upgrades from verified identities that already
// hold maxPerIdentity sessions. Fallback identities are shared by every
// anonymous client and are never limited. Must run after the auth middleware.
func NewConnectionLimiter(logger *slog.Logger, counter IdentityConnectionCounter, maxPerIdentity int) Middleware {
	logger = logger.With(slog.String("component", "connection_limiter"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxPerIdentity <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok || !reqMeta.Authenticated {
				logger.Error("Connection limiter ran before identity resolution. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if reqMeta.Outcome != auth.OutcomeVerified {
				next.ServeHTTP(w, r)
				return
			}

			count := counter(reqMeta.Identity.ID)
			if count < maxPerIdentity {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("Identity connection limit reached",
				slog.Int64("userID", reqMeta.Identity.ID),
				slog.Int("count", count),
			)
			http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
		})
	}
}
