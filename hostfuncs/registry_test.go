package hostfuncs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, []byte) ([]byte, error) { return nil, nil }

func TestNewRegistry(t *testing.T) {
	tests := []struct {
		name    string
		opts    []RegistryOption
		names   []string
		wantErr string
	}{
		{name: "empty"},
		{
			name:  "sorted names",
			opts:  []RegistryOption{WithByteHandler(FuncKVSet, noop), WithByteHandler(FuncKVGet, noop), WithByteHandler(FuncLogMessage, noop)},
			names: []string{FuncKVGet, FuncKVSet, FuncLogMessage},
		},
		{
			name:  "spin bundle",
			opts:  []RegistryOption{WithBundle(SpinBundle(NewOutbound()))},
			names: []string{FuncKVDelete, FuncKVExists, FuncKVGet, FuncKVKeys, FuncKVSet, FuncLogMessage, FuncOutboundHTTP},
		},
		{
			name:    "duplicate across bundle and handler",
			opts:    []RegistryOption{WithBundle(LogBundle()), WithByteHandler(FuncLogMessage, noop)},
			wantErr: "duplicate handler name",
		},
		{
			name:    "empty name",
			opts:    []RegistryOption{WithByteHandler("", noop)},
			wantErr: "cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := NewRegistry(tt.opts...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.names == nil {
				assert.Empty(t, reg.Names())
				return
			}
			assert.Equal(t, tt.names, reg.Names())
			for _, n := range tt.names {
				assert.True(t, reg.Has(n))
			}
		})
	}
}

func TestHandlerRegistry_Invoke(t *testing.T) {
	reg, err := NewRegistry(
		WithByteHandler(FuncKVGet, func(_ context.Context, payload []byte) ([]byte, error) {
			return append([]byte("value:"), payload...), nil
		}),
	)
	require.NoError(t, err)

	t.Run("registered", func(t *testing.T) {
		resp, err := reg.Invoke(context.Background(), FuncKVGet, []byte("k"))
		require.NoError(t, err)
		assert.Equal(t, "value:k", string(resp))
	})

	t.Run("unknown function is a guest error", func(t *testing.T) {
		resp, err := reg.Invoke(context.Background(), "sqlite_execute", nil)
		require.NoError(t, err)

		var errResp ErrorResponse
		require.NoError(t, json.Unmarshal(resp, &errResp))
		require.NotNil(t, errResp.Error)
		assert.Equal(t, CodeNotFound, errResp.Error.Code)
		assert.Contains(t, errResp.Error.Message, "sqlite_execute")
	})
}

func TestHandlerRegistry_Invoke_BindsCall(t *testing.T) {
	var capturedName string
	handler := func(ctx context.Context, payload []byte) ([]byte, error) {
		if c, ok := CallFrom(ctx); ok {
			capturedName = c.Function
		}
		return nil, nil
	}

	reg, err := NewRegistry(
		WithByteHandler(FuncKVKeys, handler),
	)
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), FuncKVKeys, nil)
	require.NoError(t, err)
	assert.Equal(t, FuncKVKeys, capturedName)
}

func TestWithMiddleware(t *testing.T) {
	var callOrder []string

	middleware1 := func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			callOrder = append(callOrder, "mw1-before")
			resp, err := next(ctx, payload)
			callOrder = append(callOrder, "mw1-after")
			return resp, err
		}
	}

	middleware2 := func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			callOrder = append(callOrder, "mw2-before")
			resp, err := next(ctx, payload)
			callOrder = append(callOrder, "mw2-after")
			return resp, err
		}
	}

	handler := func(ctx context.Context, payload []byte) ([]byte, error) {
		callOrder = append(callOrder, "handler")
		return nil, nil
	}

	reg, err := NewRegistry(
		WithMiddleware(middleware1, middleware2),
		WithByteHandler("test", handler),
	)
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "test", nil)
	require.NoError(t, err)

	// FIFO order: mw1 wraps mw2 wraps handler
	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	assert.Equal(t, expected, callOrder)
}
