package domain

import "context"

// Vault is the narrow capability surface the retrieval core needs from the note store.
// vaulthttp.Client is the real transport; tests inject an in-memory double.
type Vault interface {
	Get(ctx context.Context, path string) (Response, error)
	Post(ctx context.Context, path string, body []byte) (Response, error)
	Put(ctx context.Context, path string, body []byte) (Response, error)
	Delete(ctx context.Context, path string) (Response, error)
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// Response is a decoded vault reply.
// Records is set only when the body arrived as a stream and was split into logical records.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
	Records     [][]byte
}

// SearchHit is one file matched by a vault search.
type SearchHit struct {
	Path    string        `json:"filename"`
	Score   float64       `json:"score"`
	Matches []SearchMatch `json:"matches,omitempty"`
}

// SearchMatch is a matched span inside a file with its surrounding text.
type SearchMatch struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Context string `json:"context"`
}
