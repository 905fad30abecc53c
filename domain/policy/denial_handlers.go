package policy

import (
	"context"
	"log/slog"

	"github.com/spinlet-dev/spinlet/domain/ports"
)

// Ensure implementations satisfy the interface.
var _ ports.DenialHandler = (*LogDenialHandler)(nil)
var _ ports.DenialHandler = (*NopDenialHandler)(nil)

// LogDenialHandler logs denials together with the allow-list entry that would fix them.
type LogDenialHandler struct {
	Logger *slog.Logger // nil means slog.Default()
}

func (h *LogDenialHandler) OnDenial(ctx context.Context, d ports.Denial) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"component", d.Component, "url", d.URL, "reason", d.Reason}
	if d.Hint != "" {
		attrs = append(attrs, "hint", "add "+d.Hint+" to the component's manifest")
	}
	logger.WarnContext(ctx, "outbound request denied", attrs...)
}

// NopDenialHandler does nothing.
type NopDenialHandler struct{}

func (h *NopDenialHandler) OnDenial(context.Context, ports.Denial) {}
