package hostfuncs

import (
	"context"
	"log/slog"
	"strings"
)

// MaxLogMessage caps a single guest log record.
const MaxLogMessage = 64 * 1024

// LogRequest is the log_message payload.
type LogRequest struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// LogResponse acknowledges a log_message call.
type LogResponse struct {
	Error *GuestError `json:"error,omitempty"`
}

// LogMessage writes a guest log record through the host logger, tagged with
// the component and request id.
func LogMessage(ctx context.Context, req LogRequest) LogResponse {
	g, ok := GuestFrom(ctx)
	if !ok {
		return LogResponse{Error: NewGuestError(CodeRuntimeError, "no execution bound to this call")}
	}
	msg := req.Message
	if len(msg) > MaxLogMessage {
		msg = msg[:MaxLogMessage]
	}
	g.Log().Log(ctx, ParseLevel(req.Level), msg, "source", "guest")
	return LogResponse{}
}

// ParseLevel maps a guest level name to a slog level. Unknown names log at info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
