package retrieve

import (
	"context"
	"time"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/perf"
	"github.com/kailas-cloud/vaultctx/internal/transport/vaulthttp"
	"github.com/kailas-cloud/vaultctx/internal/usecase/aggregate"
)

// Aggregator gathers candidates for a composed query.
type Aggregator interface {
	Aggregate(ctx context.Context, q domain.ComposedQuery, limit int, strict bool) (aggregate.Result, error)
}

// Monitor records stage timings and produces the health report.
type Monitor interface {
	StartTimer(name string) func(err error)
	Record(name string, d time.Duration, err error)
	GenerateReport() perf.Report
}

// VaultInspector exposes the vault client's cache and breaker state. Optional.
type VaultInspector interface {
	GetCacheStats() vaulthttp.CacheStats
	GetCircuitBreakerState() vaulthttp.BreakerSnapshot
}
