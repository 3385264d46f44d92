// Package processor defines the contract every enrichment step implements,
// the registry that maps step names to constructors, and the per-run
// execution context.
package processor

import (
	"context"

	"github.com/wehubfusion/Pythia/pkg/article"
)

// Descriptor is the static metadata of a processor variant
type Descriptor struct {
	// Name is the registry key and the key used in a result's error map
	Name string `json:"name"`

	// Version is informational
	Version string `json:"version"`

	// Requires lists the fields that must be present before Run
	Requires []string `json:"requires"`

	// Provides lists the fields Run is expected to add. Advisory only.
	Provides []string `json:"provides"`
}

// Processor is a single enrichment step.
//
// Run must not mutate bag. It returns only the fields it adds. Expected
// domain conditions such as empty text produce default output rather than
// an error.
type Processor interface {
	Descriptor() Descriptor
	Config() Config
	Run(ctx context.Context, bag article.FieldBag, ec *ExecutionContext) (article.FieldBag, error)
}

// Constructor builds a processor instance from its configuration
type Constructor func(cfg Config) (Processor, error)

// Base provides Descriptor and Config for embedding in processor variants.
type Base struct {
	descriptor Descriptor
	config     Config
}

// NewBase creates a new base from a descriptor and configuration.
func NewBase(d Descriptor, cfg Config) Base {
	if cfg == nil {
		cfg = Config{}
	}
	return Base{descriptor: d, config: cfg}
}

// Descriptor returns the processor metadata.
func (b *Base) Descriptor() Descriptor {
	return b.descriptor
}

// Config returns the processor configuration.
func (b *Base) Config() Config {
	return b.config
}

// Name returns the processor name.
func (b *Base) Name() string {
	return b.descriptor.Name
}
