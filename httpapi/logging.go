package httpapi

import (
	"net"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"pkt.systems/pslog"
)

// RequestIDHeader carries the caller's request id. One is assigned when the
// caller sends none, and it is echoed on the response.
const RequestIDHeader = "X-Request-ID"

// withRequestLogging puts a request-scoped logger in the context and writes
// one summary line when the handler returns. Event streams also get a line
// when they open, since their summary only appears on disconnect.
func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		log := pslog.Ctx(r.Context()).With("remote", clientIP(r), "request_id", id)
		r = r.WithContext(pslog.ContextWithLogger(r.Context(), log))
		if isEventStream(r) {
			log.Debug("http stream opened", "path", r.URL.Path, "last_event_id", r.Header.Get("Last-Event-ID"))
		}

		m := httpsnoop.CaptureMetrics(next, w, r)
		fields := []any{
			"method", r.Method,
			"path", r.URL.RequestURI(),
			"status", m.Code,
			"bytes", m.Written,
			"duration_ms", m.Duration.Milliseconds(),
		}
		if m.Code >= http.StatusInternalServerError {
			log.Warn("http request failed", fields...)
			return
		}
		log.Info("http request", fields...)
	})
}

func isEventStream(r *http.Request) bool {
	return strings.HasSuffix(r.URL.Path, "/api/stream") ||
		strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// clientIP prefers the first X-Forwarded-For hop and drops the port from
// the socket address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
