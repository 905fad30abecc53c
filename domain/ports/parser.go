package ports

import "github.com/spinlet-dev/spinlet/domain/entities"

// DescriptorParser turns raw descriptor bytes into an App.
type DescriptorParser interface {
	// Parse unmarshals the descriptor. dir is recorded as App.Dir so relative
	// paths can be resolved later.
	Parse(data []byte, dir string) (*entities.App, error)
}
