package hostfuncs

import (
	"context"
	"encoding/json"
	"fmt"
)

// HostFunc is a typed host function: it accepts a decoded request and
// returns a response that is encoded back to the guest.
type HostFunc[Req any, Resp any] func(context.Context, Req) Resp

// ByteHandler accepts the raw JSON payload read from guest memory and
// returns the JSON payload to write back.
type ByteHandler func(context.Context, []byte) ([]byte, error)

// NewJSONHandler wraps a typed HostFunc into a ByteHandler. A payload that
// does not decode yields a VALIDATION_ERROR response instead of a Go error,
// so the guest sees a structured failure rather than a trap.
func NewJSONHandler[Req any, Resp any](fn HostFunc[Req, Resp]) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return NewValidationError("failed to unmarshal request: " + err.Error()).ToJSON(), nil
			}
		}

		resp := fn(ctx, req)

		respBytes, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response: %w", err)
		}
		return respBytes, nil
	}
}
