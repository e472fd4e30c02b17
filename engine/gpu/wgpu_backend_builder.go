package gpu

import (
	"log/slog"

	"github.com/cogentcore/webgpu/wgpu"
)

// BackendBuilderOption is a function that configures the wgpu backend during construction.
type BackendBuilderOption func(*wgpuBackend)

// WithForceFallbackAdapter is an option builder that requests the software adapter.
// Useful on CI machines without a GPU.
//
// Parameters:
//   - force: true to force the fallback adapter
//
// Returns:
//   - BackendBuilderOption: a function that applies the option to the backend
func WithForceFallbackAdapter(force bool) BackendBuilderOption {
	return func(b *wgpuBackend) {
		b.forceFallbackAdapter = force
	}
}

// WithPowerPreference is an option builder that sets the adapter power preference.
//
// Parameters:
//   - pref: the wgpu power preference
//
// Returns:
//   - BackendBuilderOption: a function that applies the option to the backend
func WithPowerPreference(pref wgpu.PowerPreference) BackendBuilderOption {
	return func(b *wgpuBackend) {
		b.powerPreference = pref
	}
}

// WithLogger is an option builder that sets the logger.
//
// Parameters:
//   - logger: the slog logger
//
// Returns:
//   - BackendBuilderOption: a function that applies the option to the backend
func WithLogger(logger *slog.Logger) BackendBuilderOption {
	return func(b *wgpuBackend) {
		b.logger = logger
	}
}
