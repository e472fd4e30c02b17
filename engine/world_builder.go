package engine

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-world/engine/config"
	"github.com/Carmen-Shannon/oxy-world/engine/gpu"
	"github.com/Carmen-Shannon/oxy-world/engine/loader"
)

// WorldBuilderOption is a functional option for configuring a World.
type WorldBuilderOption func(w *world)

// WithConfig sets the configuration the world is built from.
//
// Parameters:
//   - cfg: the configuration, validated by NewWorld
//
// Returns:
//   - WorldBuilderOption: option function to apply
func WithConfig(cfg config.Config) WorldBuilderOption {
	return func(w *world) {
		w.cfg = cfg
	}
}

// WithBackend supplies the GPU backend. The world does not close a supplied backend.
//
// Parameters:
//   - backend: the backend
//
// Returns:
//   - WorldBuilderOption: option function to apply
func WithBackend(backend gpu.Backend) WorldBuilderOption {
	return func(w *world) {
		w.backend = backend
	}
}

// WithLoaders replaces the registry's file loaders.
func WithLoaders(loaders loader.Set) WorldBuilderOption {
	return func(w *world) {
		w.loaders = &loaders
	}
}

// WithWorldLogger sets the logger shared by every component of the world.
func WithWorldLogger(logger *slog.Logger) WorldBuilderOption {
	return func(w *world) {
		w.logger = logger
	}
}
