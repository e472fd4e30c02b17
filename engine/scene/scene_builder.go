package scene

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-world/engine/asset"
	"github.com/Carmen-Shannon/oxy-world/engine/event"
)

// GraphBuilderOption is a functional option for configuring a Graph.
// Use the With* functions to create options.
type GraphBuilderOption func(g *graph)

// WithRegistry sets the asset registry meshes, materials and models are resolved through.
//
// Parameters:
//   - registry: the asset registry
//
// Returns:
//   - GraphBuilderOption: option function to apply
func WithRegistry(registry asset.Registry) GraphBuilderOption {
	return func(g *graph) {
		g.registry = registry
	}
}

// WithBus sets the bus CodeNodeAdded and CodeNodeMoved are published on.
// Without a bus the graph publishes nothing.
//
// Parameters:
//   - bus: the event bus
//
// Returns:
//   - GraphBuilderOption: option function to apply
func WithBus(bus event.Bus) GraphBuilderOption {
	return func(g *graph) {
		g.bus = bus
	}
}

// WithRootName sets the name of the root node.
func WithRootName(name string) GraphBuilderOption {
	return func(g *graph) {
		g.rootName = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GraphBuilderOption {
	return func(g *graph) {
		g.logger = logger
	}
}
