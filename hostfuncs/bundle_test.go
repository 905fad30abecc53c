package hostfuncs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboundBundle(t *testing.T) {
	handlers := OutboundBundle(NewOutbound()).Handlers()

	assert.Len(t, handlers, 1)
	assert.Contains(t, handlers, FuncOutboundHTTP)
}

func TestKeyValueBundle(t *testing.T) {
	handlers := KeyValueBundle().Handlers()

	assert.Len(t, handlers, 5)
	for _, name := range []string{FuncKVGet, FuncKVSet, FuncKVDelete, FuncKVExists, FuncKVKeys} {
		assert.Contains(t, handlers, name)
	}
}

func TestLogBundle(t *testing.T) {
	handlers := LogBundle().Handlers()

	assert.Len(t, handlers, 1)
	assert.Contains(t, handlers, FuncLogMessage)
}

func TestSpinBundle(t *testing.T) {
	handlers := SpinBundle(NewOutbound()).Handlers()

	assert.Len(t, handlers, 7)
	assert.Contains(t, handlers, FuncOutboundHTTP)
	assert.Contains(t, handlers, FuncKVKeys)
	assert.Contains(t, handlers, FuncLogMessage)
}

func TestWithBundle(t *testing.T) {
	reg, err := NewRegistry(WithBundle(SpinBundle(NewOutbound())))
	require.NoError(t, err)

	assert.Equal(t, []string{
		FuncKVDelete, FuncKVExists, FuncKVGet, FuncKVKeys, FuncKVSet,
		FuncLogMessage, FuncOutboundHTTP,
	}, reg.Names())
}

func TestWithBundle_Duplicate(t *testing.T) {
	_, err := NewRegistry(
		WithBundle(LogBundle()),
		WithBundle(LogBundle()),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestWithHandler(t *testing.T) {
	type CustomReq struct {
		Input string `json:"input"`
	}
	type CustomResp struct {
		Output string `json:"output"`
	}

	reg, err := NewRegistry(
		WithHandler("custom", func(ctx context.Context, req CustomReq) CustomResp {
			return CustomResp{Output: "processed: " + req.Input}
		}),
	)
	require.NoError(t, err)
	assert.True(t, reg.Has("custom"))

	reqBytes, _ := json.Marshal(CustomReq{Input: "test"})
	respBytes, err := reg.Invoke(context.Background(), "custom", reqBytes)
	require.NoError(t, err)

	var resp CustomResp
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	assert.Equal(t, "processed: test", resp.Output)
}

func TestWithHandler_AndBundle_Combined(t *testing.T) {
	type CustomReq struct {
		Value int `json:"value"`
	}
	type CustomResp struct {
		Doubled int `json:"doubled"`
	}

	reg, err := NewRegistry(
		WithBundle(LogBundle()),
		WithHandler("double", func(ctx context.Context, req CustomReq) CustomResp {
			return CustomResp{Doubled: req.Value * 2}
		}),
	)
	require.NoError(t, err)

	names := reg.Names()
	assert.Len(t, names, 2)
	assert.Contains(t, names, FuncLogMessage)
	assert.Contains(t, names, "double")

	reqBytes, _ := json.Marshal(CustomReq{Value: 21})
	respBytes, err := reg.Invoke(context.Background(), "double", reqBytes)
	require.NoError(t, err)

	var resp CustomResp
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	assert.Equal(t, 42, resp.Doubled)
}
