package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/inboxbuckets/internal/instrumentation"
	"github.com/teemow/inboxbuckets/internal/logging"
	"github.com/teemow/inboxbuckets/internal/ratelimit"
)

// DefaultUserID is used when no trusted identity header is configured or
// the request does not carry it.
const DefaultUserID = "local-user"

const maxUserIDLength = 128

type userIDKey struct{}

// UserID returns the user resolved for the request.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok && id != "" {
		return id
	}
	return DefaultUserID
}

// userResolver attaches the request user to the context. The header is
// only trusted when set, since it is expected to come from an auth proxy.
func userResolver(header string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := DefaultUserID
		if header != "" {
			if v := strings.TrimSpace(r.Header.Get(header)); v != "" && len(v) <= maxUserIDLength {
				id = v
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, id)))
	})
}

// cors allows any origin and answers preflight requests.
func cors(userHeader string, next http.Handler) http.Handler {
	allowHeaders := "Content-Type, Authorization"
	if userHeader != "" {
		allowHeaders += ", " + userHeader
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// instrument records request metrics by route pattern and logs failures.
func instrument(logger *slog.Logger, metrics *instrumentation.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		// The mux sets the pattern on the request it was handed.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)
		metrics.RecordHTTPRequest(r.Context(), r.Method, route, status, duration)

		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				logging.Route(route), slog.Int("status", status), slog.Duration("duration", duration))
		} else {
			logger.Debug("request served",
				logging.Route(route), slog.Int("status", status), slog.Duration("duration", duration))
		}
	})
}

// rateLimited consumes one request of the route budget before calling next.
// A failing limiter backend lets the request through.
func (a *API) rateLimited(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		policy, ok := a.policies[route]
		if a.limiter == nil || !ok {
			next(w, r)
			return
		}

		userID := UserID(r.Context())
		res, err := a.limiter.Consume(r.Context(), ratelimit.Key(route, userID), policy.Limit, policy.Window)
		if err != nil {
			a.logger.Warn("rate limiter unavailable, allowing request",
				logging.Route(route), logging.UserHash(userID), logging.Err(err))
			next(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(policy.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			a.metrics.RecordRateLimitRejection(r.Context(), route)
			w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfterSeconds(a.now())))
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next(w, r)
	}
}
