package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// NewRequestLogger logs each incoming request, and its duration once the
// handler returns. For upgraded connections that is the connection lifetime.
func NewRequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			var ip string
			if ok {
				ip = reqMeta.IP
			}

			logger.Info("Incoming HTTP request",
				slog.String("method", r.Method),
				slog.String("uri", r.RequestURI),
				slog.String("ip", ip),
			)
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("HTTP request finished",
				slog.String("uri", r.RequestURI),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
