// internal/middleware/logging.go

package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

// requestFields collects fields handlers attach to the request's access log line.
type requestFields struct {
	mu     sync.Mutex
	fields logrus.Fields
}

// Annotate adds fields to the access log line of the request ctx belongs to. It is a no-op
// outside LogMiddleware.
func Annotate(ctx context.Context, fields logrus.Fields) {
	rf, ok := ctx.Value(ctxKey{}).(*requestFields)
	if !ok {
		return
	}
	rf.mu.Lock()
	for k, v := range fields {
		rf.fields[k] = v
	}
	rf.mu.Unlock()
}

// LogMiddleware logs one line per request with its status and duration, the request id, the
// game named by the route and whatever handlers added with Annotate. Server errors log at
// Error, client errors at Info and the rest at Debug.
func LogMiddleware(logger logrus.FieldLogger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rf := &requestFields{fields: logrus.Fields{}}
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), ctxKey{}, rf)))

			entry := logger.WithFields(requestLogFields(r)).WithFields(logrus.Fields{
				"status":   ww.Status(),
				"duration": time.Since(start),
			})
			rf.mu.Lock()
			entry = entry.WithFields(rf.fields)
			rf.mu.Unlock()

			switch status := ww.Status(); {
			case status >= 500:
				entry.Error("HTTP Request")
			case status >= 400:
				entry.Info("HTTP Request")
			default:
				entry.Debug("HTTP Request")
			}
		})
	}
}

func requestLogFields(r *http.Request) logrus.Fields {
	fields := logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"remote": r.RemoteAddr,
	}
	if id := chimw.GetReqID(r.Context()); id != "" {
		fields["request_id"] = id
	}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if id := rc.URLParam("id"); id != "" {
			fields["session_id"] = id
		}
		if code := rc.URLParam("code"); code != "" {
			fields["code"] = code
		}
	}
	return fields
}

// LogWebSocketConnect logs a message when a WebSocket client connects.
func LogWebSocketConnect(logger logrus.FieldLogger, r *http.Request) {
	logger.WithFields(requestLogFields(r)).Info("WebSocket connected")
}

// LogWebSocketDisconnect logs a message when a WebSocket client disconnects.
func LogWebSocketDisconnect(logger logrus.FieldLogger, r *http.Request, err error) {
	entry := logger.WithFields(requestLogFields(r))
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Info("WebSocket disconnected")
}
