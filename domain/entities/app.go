package entities

import (
	"path/filepath"
	"strings"
)

// DefaultBase is the base path used when the descriptor omits http.base.
const DefaultBase = "/"

// App is a loaded application descriptor.
type App struct {
	Name        string      `json:"name" yaml:"name" validate:"required"`
	Version     string      `json:"version,omitempty" yaml:"version,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	HTTP        HTTPTrigger `json:"http,omitempty" yaml:"http,omitempty"`
	Components  []Component `json:"components" yaml:"components" validate:"required,min=1,dive"`

	// Dir is the directory the descriptor was read from. Relative sources and
	// mounts resolve against it.
	Dir string `json:"-" yaml:"-"`
}

// HTTPTrigger holds the settings shared by every HTTP route of the app.
type HTTPTrigger struct {
	Base string `json:"base,omitempty" yaml:"base,omitempty" validate:"omitempty,startswith=/"`
}

// BasePath returns the configured base or DefaultBase.
func (a *App) BasePath() string {
	if a.HTTP.Base == "" {
		return DefaultBase
	}
	return a.HTTP.Base
}

// Component returns the component with the given id.
func (a *App) Component(id string) (*Component, bool) {
	for i := range a.Components {
		if a.Components[i].ID == id {
			return &a.Components[i], true
		}
	}
	return nil, false
}

// ResolvePath joins a descriptor-relative path with the descriptor directory.
func (a *App) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || a.Dir == "" {
		return p
	}
	return filepath.Join(a.Dir, filepath.FromSlash(p))
}

// KeyValueLabels returns the distinct store labels declared by any component.
func (a *App) KeyValueLabels() []string {
	seen := make(map[string]bool)
	var labels []string
	for _, c := range a.Components {
		for _, l := range c.KeyValueStores {
			l = strings.TrimSpace(l)
			if l == "" || seen[l] {
				continue
			}
			seen[l] = true
			labels = append(labels, l)
		}
	}
	return labels
}
