package aggregate

import (
	"context"
	"time"

	"github.com/kailas-cloud/vaultctx/internal/domain"
)

// Vault is the read side of the vault transport.
type Vault interface {
	Get(ctx context.Context, path string) (domain.Response, error)
	Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error)
}

// Monitor records stage timings and degradations.
type Monitor interface {
	StartTimer(name string) func(err error)
	Record(name string, d time.Duration, err error)
}
