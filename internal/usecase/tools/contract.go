package tools

import (
	"context"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/usecase/retrieve"
)

// Retriever runs the retrieval pipeline.
type Retriever interface {
	RetrieveWithOptions(ctx context.Context, query string, opts retrieve.Options) (retrieve.Result, error)
	GetStats() retrieve.Stats
}

// Vault reads and writes notes.
type Vault interface {
	Get(ctx context.Context, path string) (domain.Response, error)
	Post(ctx context.Context, path string, body []byte) (domain.Response, error)
	Put(ctx context.Context, path string, body []byte) (domain.Response, error)
}

// LLM answers a prompt grounded on retrieved context.
type LLM interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Model() string
}
