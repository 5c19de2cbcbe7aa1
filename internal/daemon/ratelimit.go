package daemon

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
)

// submitLimiter throttles answer submissions per client. Judge-graded
// answers cost a provider call, so this sits in front of the grader.
type submitLimiter struct {
	limiter ratelimit.RateLimiter
	perMin  int
	logger  *slog.Logger
}

// newSubmitLimiter returns nil when perMinute is zero
func newSubmitLimiter(perMinute, burstMultiplier int, logger *slog.Logger) *submitLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burstMultiplier <= 0 {
		burstMultiplier = 1
	}
	return &submitLimiter{
		limiter: ratelimit.New(&ratelimit.Config{
			Rate:     perMinute,
			Burst:    perMinute * burstMultiplier,
			Interval: time.Minute,
		}),
		perMin: perMinute,
		logger: logger,
	}
}

// allow reports whether r may proceed and writes the 429 when it may not
func (l *submitLimiter) allow(w http.ResponseWriter, r *http.Request) bool {
	if l == nil {
		return true
	}
	key := clientIP(r)
	if l.limiter.Allow(r.Context(), key) {
		return true
	}

	l.logger.Warn("submission rate limit exceeded",
		"client", key,
		"path", r.URL.Path,
		"correlation_id", GetCorrelationID(r.Context()),
	)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(max(60/l.perMin, 1)))
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"too many submissions, please slow down","status":429}`))
	return false
}

func (l *submitLimiter) close() error {
	if l == nil {
		return nil
	}
	return l.limiter.Close()
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address without its port
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
