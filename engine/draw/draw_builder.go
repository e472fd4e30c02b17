package draw

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-world/engine/asset"
	"github.com/Carmen-Shannon/oxy-world/engine/gpu"
)

// ContextBuilderOption is a function that configures a draw context during construction.
type ContextBuilderOption func(*contextImpl)

// WithRegistry is an option builder that sets the asset registry meshes and materials are
// resolved through.
//
// Parameters:
//   - registry: the asset registry
//
// Returns:
//   - ContextBuilderOption: a function that applies the option to the context
func WithRegistry(registry asset.Registry) ContextBuilderOption {
	return func(c *contextImpl) {
		c.registry = registry
	}
}

// WithBackend is an option builder that sets the GPU backend.
//
// Parameters:
//   - backend: the backend
//
// Returns:
//   - ContextBuilderOption: a function that applies the option to the context
func WithBackend(backend gpu.Backend) ContextBuilderOption {
	return func(c *contextImpl) {
		c.backend = backend
	}
}

// WithTargets is an option builder that sets the render target formats pipelines are built for.
//
// Parameters:
//   - targets: the attachment formats
//
// Returns:
//   - ContextBuilderOption: a function that applies the option to the context
func WithTargets(targets gpu.RenderTargetFormats) ContextBuilderOption {
	return func(c *contextImpl) {
		c.targets = targets
	}
}

// WithWorkers is an option builder that sets the maximum number of CPU prep workers.
//
// Parameters:
//   - workers: the worker count, values below 1 are ignored
//
// Returns:
//   - ContextBuilderOption: a function that applies the option to the context
func WithWorkers(workers int) ContextBuilderOption {
	return func(c *contextImpl) {
		if workers > 0 {
			c.workers = workers
		}
	}
}

// WithLogger is an option builder that sets the logger.
func WithLogger(logger *slog.Logger) ContextBuilderOption {
	return func(c *contextImpl) {
		c.logger = logger
	}
}
