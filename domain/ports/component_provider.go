package ports

import "context"

// ComponentProvider yields the wasm bytes of a component.
type ComponentProvider interface {
	// Source returns the binary for component id. An unknown id is an error.
	Source(ctx context.Context, id string) ([]byte, error)
}
