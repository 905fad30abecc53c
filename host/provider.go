package host

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spinlet-dev/spinlet/domain/entities"
	"github.com/spinlet-dev/spinlet/domain/ports"
)

// ErrUnknownComponent is returned for a component id the provider does not know.
var ErrUnknownComponent = errors.New("unknown component")

// FileProvider reads component binaries from the paths in the descriptor.
type FileProvider struct {
	app *entities.App
}

var _ ports.ComponentProvider = (*FileProvider)(nil)

// NewFileProvider returns a provider resolving sources relative to app.Dir.
func NewFileProvider(app *entities.App) *FileProvider {
	return &FileProvider{app: app}
}

// Source reads the wasm file of component id.
func (p *FileProvider) Source(_ context.Context, id string) ([]byte, error) {
	c, ok := p.app.Component(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, id)
	}
	data, err := os.ReadFile(p.app.ResolvePath(c.Source))
	if err != nil {
		return nil, fmt.Errorf("reading source of component %q: %w", id, err)
	}
	return data, nil
}

// MemoryProvider serves binaries held in memory, keyed by component id.
type MemoryProvider map[string][]byte

var _ ports.ComponentProvider = MemoryProvider(nil)

// Source returns the binary registered for id.
func (p MemoryProvider) Source(_ context.Context, id string) ([]byte, error) {
	data, ok := p[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, id)
	}
	return data, nil
}
