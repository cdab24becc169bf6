package devserver

import (
	"log/slog"
	"net/http"

	"github.com/MrWong99/pointread/internal/observe"
)

// requestLogger returns base enriched with the request's trace correlation
// and request id.
func requestLogger(r *http.Request, base *slog.Logger) *slog.Logger {
	return observe.LoggerFrom(r.Context(), base).With("request_id", observe.RequestID(r.Context()))
}
