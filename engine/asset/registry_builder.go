package asset

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-world/engine/event"
	"github.com/Carmen-Shannon/oxy-world/engine/loader"
	"github.com/Carmen-Shannon/oxy-world/engine/watch"
)

// RegistryBuilderOption is a functional option for configuring a Registry via NewRegistry.
type RegistryBuilderOption func(*registry)

// WithRoot sets the asset root directory. Relative paths are resolved against it.
//
// Parameters:
//   - root: the directory
//
// Returns:
//   - RegistryBuilderOption: a function that applies the root to a registry
func WithRoot(root string) RegistryBuilderOption {
	return func(r *registry) {
		r.root = root
	}
}

// WithBus sets the event bus used for lifecycle events. Required.
//
// Parameters:
//   - bus: the event bus
//
// Returns:
//   - RegistryBuilderOption: a function that applies the bus to a registry
func WithBus(bus event.Bus) RegistryBuilderOption {
	return func(r *registry) {
		r.bus = bus
	}
}

// WithLoaders replaces the default file loaders.
//
// Parameters:
//   - loaders: the loader set
//
// Returns:
//   - RegistryBuilderOption: a function that applies the loaders to a registry
func WithLoaders(loaders loader.Set) RegistryBuilderOption {
	return func(r *registry) {
		r.loaders = loaders
	}
}

// WithWatcher enables hot reload: the root is watched and modified files are reloaded
// on the next bus dispatch.
//
// Parameters:
//   - w: the file-watch service
//
// Returns:
//   - RegistryBuilderOption: a function that applies the watcher to a registry
func WithWatcher(w watch.Service) RegistryBuilderOption {
	return func(r *registry) {
		r.watcher = w
	}
}

// WithStrictPaths makes an unresolvable Load panic instead of returning ErrNotFound.
// Authoring tools use this to stop on a broken project.
//
// Parameters:
//   - strict: whether missing assets are fatal
//
// Returns:
//   - RegistryBuilderOption: a function that applies the policy to a registry
func WithStrictPaths(strict bool) RegistryBuilderOption {
	return func(r *registry) {
		r.strict = strict
	}
}

// WithLogger sets the logger.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - RegistryBuilderOption: a function that applies the logger to a registry
func WithLogger(logger *slog.Logger) RegistryBuilderOption {
	return func(r *registry) {
		r.logger = logger
	}
}
