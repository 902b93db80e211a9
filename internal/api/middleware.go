package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/ntv2node/internal/logging"
)

// HTTPLoggingMiddleware logs each API request once it completes.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	method := ctx.Method()
	path := ctx.URL().Path
	query := ctx.URL().RawQuery
	userAgent := ctx.Header("User-Agent")

	logAttrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if query != "" {
		logAttrs = append(logAttrs, slog.String("query", query))
	}
	if userAgent != "" {
		logAttrs = append(logAttrs, slog.String("user_agent", userAgent))
	}

	next(ctx)

	status := ctx.Status()
	logAttrs = append(logAttrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)
	logger.LogAttrs(ctx.Context(), requestLevel(method, path, status), "HTTP request completed", logAttrs...)
}

// requestLevel picks the log level for a finished request. Channel status
// and frame stamp polls, metrics scrapes and CORS preflights succeed many
// times a second and stay at Debug.
func requestLevel(method, path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case method == http.MethodOptions:
		return slog.LevelDebug
	case method == http.MethodGet && isPollPath(path):
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func isPollPath(path string) bool {
	if path == "/metrics" {
		return true
	}
	if !strings.HasPrefix(path, "/api/channels/") {
		return false
	}
	return strings.HasSuffix(path, "/status") || strings.Contains(path, "/framestamp/")
}
