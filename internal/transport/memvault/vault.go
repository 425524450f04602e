// Package memvault is an in-memory domain.Vault used by tests and local demos.
package memvault

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/vaultctx/internal/domain"
)

// Note is one stored note.
type Note struct {
	Content  string
	Tags     []string
	Modified time.Time
}

// Vault stores notes in memory. Safe for concurrent use.
type Vault struct {
	mu    sync.RWMutex
	notes map[string]Note
	err   error
	calls map[string]int
}

// Compile-time check: Vault implements domain.Vault.
var _ domain.Vault = (*Vault)(nil)

// New creates a vault seeded with notes.
func New(notes map[string]Note) *Vault {
	v := &Vault{notes: make(map[string]Note, len(notes)), calls: make(map[string]int)}
	for p, n := range notes {
		v.notes[p] = n
	}
	return v
}

// SetError makes every subsequent call fail with err; nil restores normal operation.
func (v *Vault) SetError(err error) {
	v.mu.Lock()
	v.err = err
	v.mu.Unlock()
}

// Calls returns how many times op ("get", "search", ...) was invoked.
func (v *Vault) Calls(op string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.calls[op]
}

func (v *Vault) begin(op string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls[op]++
	return v.err
}

// Get returns the note as the vault's note+json body.
func (v *Vault) Get(ctx context.Context, path string) (domain.Response, error) {
	if err := v.begin("get"); err != nil {
		return domain.Response{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Response{}, &domain.TimeoutError{Op: "get", Err: err}
	}

	v.mu.RLock()
	n, ok := v.notes[path]
	v.mu.RUnlock()
	if !ok {
		return domain.Response{}, &domain.StatusError{Op: "get", StatusCode: http.StatusNotFound}
	}

	var mtime int64
	if !n.Modified.IsZero() {
		mtime = n.Modified.UnixMilli()
	}
	body, err := json.Marshal(map[string]any{
		"path":    path,
		"content": n.Content,
		"tags":    n.Tags,
		"stat": map[string]int64{
			"mtime": mtime,
			"size":  int64(len(n.Content)),
		},
	})
	if err != nil {
		return domain.Response{}, err
	}
	return domain.Response{
		StatusCode:  http.StatusOK,
		ContentType: "application/vnd.olrapi.note+json",
		Body:        body,
	}, nil
}

// Post appends body to a note.
func (v *Vault) Post(_ context.Context, path string, body []byte) (domain.Response, error) {
	if err := v.begin("post"); err != nil {
		return domain.Response{}, err
	}
	v.mu.Lock()
	n := v.notes[path]
	n.Content += string(body)
	n.Modified = time.Now()
	v.notes[path] = n
	v.mu.Unlock()
	return domain.Response{StatusCode: http.StatusNoContent}, nil
}

// Put creates or replaces a note.
func (v *Vault) Put(_ context.Context, path string, body []byte) (domain.Response, error) {
	if err := v.begin("put"); err != nil {
		return domain.Response{}, err
	}
	v.mu.Lock()
	v.notes[path] = Note{Content: string(body), Modified: time.Now()}
	v.mu.Unlock()
	return domain.Response{StatusCode: http.StatusNoContent}, nil
}

// Delete removes a note.
func (v *Vault) Delete(_ context.Context, path string) (domain.Response, error) {
	if err := v.begin("delete"); err != nil {
		return domain.Response{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.notes[path]; !ok {
		return domain.Response{}, &domain.StatusError{Op: "delete", StatusCode: http.StatusNotFound}
	}
	delete(v.notes, path)
	return domain.Response{StatusCode: http.StatusNoContent}, nil
}

// Search returns notes whose path or content contains every word of query (case-insensitive),
// ordered by occurrence count, then path.
func (v *Vault) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	if err := v.begin("search"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &domain.TimeoutError{Op: "search", Err: err}
	}
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil, domain.NewValidationError("query", "must not be empty")
	}

	v.mu.RLock()
	var hits []domain.SearchHit
	for p, n := range v.notes {
		hay := strings.ToLower(p + "\n" + n.Content)
		count := 0
		for _, w := range words {
			c := strings.Count(hay, w)
			if c == 0 {
				count = 0
				break
			}
			count += c
		}
		if count > 0 {
			hits = append(hits, domain.SearchHit{Path: p, Score: float64(count)})
		}
	}
	v.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Path < hits[j].Path
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
