package rewards

import (
	"context"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing rewards operation.
type OperationLog struct {
	Operation string
	Account   AccountID
	Amount    Coins
	Detail    string
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithReferenceLocation pins the timezone used for weekday-sensitive perk
// decisions. The default is UTC; host-local time is never consulted.
func WithReferenceLocation(location *time.Location) ServiceOption {
	return func(service *Service) {
		if location != nil {
			service.location = location
		}
	}
}

// WithRandomSource replaces the wheel's random source, usually with a
// fixed-seed source in tests.
func WithRandomSource(random RandomSource) ServiceOption {
	return func(service *Service) {
		if random != nil {
			service.random = random
		}
	}
}
