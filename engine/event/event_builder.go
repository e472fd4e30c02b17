package event

import "log/slog"

// BusBuilderOption is a functional option for configuring a Bus during construction.
type BusBuilderOption func(*bus)

// WithCapacity sets the size of the event ring buffer.
//
// Parameters:
//   - capacity: the maximum number of undispatched events
//
// Returns:
//   - BusBuilderOption: functional option to set the capacity
func WithCapacity(capacity int) BusBuilderOption {
	return func(b *bus) {
		b.capacity = capacity
	}
}

// WithLogger sets the logger used for dropped events and subscription warnings.
//
// Parameters:
//   - logger: the structured logger
//
// Returns:
//   - BusBuilderOption: functional option to set the logger
func WithLogger(logger *slog.Logger) BusBuilderOption {
	return func(b *bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}
