package hostfuncs

import (
	"context"
	"errors"

	"github.com/spinlet-dev/spinlet/domain/ports"
)

// KeyValueRequest is the payload of the kv_* host functions. Store defaults
// to DefaultKeyValueStore.
type KeyValueRequest struct {
	Store string `json:"store,omitempty"`
	Key   string `json:"key,omitempty"`
	Value []byte `json:"value,omitempty"`
}

// KeyValueResponse carries the result of a kv_* call.
type KeyValueResponse struct {
	Error  *GuestError `json:"error,omitempty"`
	Value  []byte      `json:"value,omitempty"`
	Keys   []string    `json:"keys,omitempty"`
	Exists bool        `json:"exists"`
}

type kvOp func(ctx context.Context, s ports.KeyValueStore, req KeyValueRequest) KeyValueResponse

func withStore(needsKey bool, op kvOp) HostFunc[KeyValueRequest, KeyValueResponse] {
	return func(ctx context.Context, req KeyValueRequest) KeyValueResponse {
		g, ok := GuestFrom(ctx)
		if !ok {
			return KeyValueResponse{Error: NewGuestError(CodeRuntimeError, "no execution bound to this call")}
		}
		store, gerr := g.Store(req.Store)
		if gerr != nil {
			return KeyValueResponse{Error: gerr}
		}
		if needsKey && req.Key == "" {
			return KeyValueResponse{Error: NewGuestError(CodeValidation, "key is required")}
		}
		return op(ctx, store, req)
	}
}

func kvFailure(err error) KeyValueResponse {
	return KeyValueResponse{Error: NewGuestError(CodeRuntimeError, "%v", err)}
}

// KeyValueGet returns the value of a key. A missing key is not an error.
func KeyValueGet(ctx context.Context, req KeyValueRequest) KeyValueResponse {
	return withStore(true, func(ctx context.Context, s ports.KeyValueStore, req KeyValueRequest) KeyValueResponse {
		v, err := s.Get(ctx, req.Key)
		if errors.Is(err, ports.ErrKeyNotFound) {
			return KeyValueResponse{}
		}
		if err != nil {
			return kvFailure(err)
		}
		return KeyValueResponse{Value: v, Exists: true}
	})(ctx, req)
}

// KeyValueSet stores a value.
func KeyValueSet(ctx context.Context, req KeyValueRequest) KeyValueResponse {
	return withStore(true, func(ctx context.Context, s ports.KeyValueStore, req KeyValueRequest) KeyValueResponse {
		if err := s.Set(ctx, req.Key, req.Value); err != nil {
			return kvFailure(err)
		}
		return KeyValueResponse{Exists: true}
	})(ctx, req)
}

// KeyValueDelete removes a key. Deleting a missing key succeeds.
func KeyValueDelete(ctx context.Context, req KeyValueRequest) KeyValueResponse {
	return withStore(true, func(ctx context.Context, s ports.KeyValueStore, req KeyValueRequest) KeyValueResponse {
		if err := s.Delete(ctx, req.Key); err != nil {
			return kvFailure(err)
		}
		return KeyValueResponse{}
	})(ctx, req)
}

// KeyValueExists reports whether a key is present.
func KeyValueExists(ctx context.Context, req KeyValueRequest) KeyValueResponse {
	return withStore(true, func(ctx context.Context, s ports.KeyValueStore, req KeyValueRequest) KeyValueResponse {
		ok, err := s.Exists(ctx, req.Key)
		if err != nil {
			return kvFailure(err)
		}
		return KeyValueResponse{Exists: ok}
	})(ctx, req)
}

// KeyValueKeys lists every key of the store.
func KeyValueKeys(ctx context.Context, req KeyValueRequest) KeyValueResponse {
	return withStore(false, func(ctx context.Context, s ports.KeyValueStore, _ KeyValueRequest) KeyValueResponse {
		keys, err := s.Keys(ctx)
		if err != nil {
			return kvFailure(err)
		}
		return KeyValueResponse{Keys: keys}
	})(ctx, req)
}
