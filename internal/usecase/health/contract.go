package health

import "context"

// VaultChecker checks vault availability.
type VaultChecker interface {
	Status(ctx context.Context) error
}

// Pinger checks an optional backing store (the shared response cache).
type Pinger interface {
	Ping(ctx context.Context) error
}

// LLMChecker checks chat model availability.
type LLMChecker interface {
	HealthCheck(ctx context.Context) error
}
