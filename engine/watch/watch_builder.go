package watch

import "log/slog"

// ServiceBuilderOption is a functional option for configuring a Service via NewService.
type ServiceBuilderOption func(*service)

// WithLogger sets the logger used for watcher errors.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - ServiceBuilderOption: a function that applies the logger to a service
func WithLogger(logger *slog.Logger) ServiceBuilderOption {
	return func(s *service) {
		s.logger = logger
	}
}
