package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"haven/internal/platform/metrics"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/httputil"
	"haven/pkg/requestcontext"
)

// RateLimitBySubject limits each authenticated caller to limit requests per
// window, falling back to the client IP for anonymous requests.
func RateLimitBySubject(limit int, window time.Duration, m *metrics.Metrics) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(keyBySubjectOrIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			m.IncRateLimited(routePattern(r))
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":             "rate_limited",
				"error_description": "Rate limit exceeded. Please try again later.",
			})
		}),
	)
}

func keyBySubjectOrIP(r *http.Request) (string, error) {
	if sub := requestcontext.Subject(r.Context()); sub != "" {
		return "sub:" + sub, nil
	}
	return httprate.KeyByRealIP(r)
}

// NotFound renders unknown routes in the error envelope.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
}
