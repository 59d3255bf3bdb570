package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// REQUEST LOGGING - chi middleware.LogFormatter backed by logrus
// =============================================================================

type requestLogger struct {
	log logrus.FieldLogger
}

// NewRequestLogger returns middleware that logs one entry per request.
func NewRequestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return middleware.RequestLogger(&requestLogger{log: log.WithField("component", "http")})
}

func (l *requestLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	fields := logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"remote": r.RemoteAddr,
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		fields["request_id"] = id
	}
	return &requestEntry{log: l.log.WithFields(fields)}
}

type requestEntry struct {
	log logrus.FieldLogger
}

func (e *requestEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	entry := e.log.WithFields(logrus.Fields{
		"status":   status,
		"bytes":    bytes,
		"duration": elapsed.String(),
	})
	switch {
	case status >= 500:
		entry.Error("request failed")
	case status >= 400:
		entry.Warn("request rejected")
	default:
		entry.Info("request served")
	}
}

func (e *requestEntry) Panic(v interface{}, stack []byte) {
	e.log.WithFields(logrus.Fields{
		"panic": fmt.Sprint(v),
		"stack": string(stack),
	}).Error("request panicked")
}
