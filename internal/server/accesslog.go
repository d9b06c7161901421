package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/taskhub/apiserver/internal/logging"
)

// accessLogFormatter feeds chi's RequestLogger into the structured logger.
type accessLogFormatter struct {
	log logging.Logger
}

func (f accessLogFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &accessLogEntry{
		ctx: r.Context(),
		log: f.log.With(
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		),
	}
}

type accessLogEntry struct {
	ctx context.Context
	log logging.Logger
}

func (e *accessLogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ any) {
	args := []any{"status", status, "bytes", bytes, "elapsed_ms", elapsed.Milliseconds()}
	if status >= http.StatusInternalServerError {
		e.log.Warn(e.ctx, "request completed", args...)
		return
	}
	e.log.Info(e.ctx, "request completed", args...)
}

func (e *accessLogEntry) Panic(v any, stack []byte) {
	e.log.Error(e.ctx, "request panicked", "panic", v, "stack", string(stack))
}
