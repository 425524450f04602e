package respcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vaultctx/internal/db"
	"github.com/kailas-cloud/vaultctx/internal/domain"
)

// --- Mocks ---

type mockStore struct {
	data    map[string][]byte
	ttls    map[string]time.Duration
	deleted []string
	getErr  error
	scanErr error
}

func newMockStore() *mockStore {
	return &mockStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *mockStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}

func (m *mockStore) Scan(_ context.Context, pattern string) ([]string, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	prefix := pattern[:len(pattern)-1] // trailing '*'
	var keys []string
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_shared_cache_total"}, []string{"result"})
}

// --- Tests ---

func TestPutGet_RoundTrip(t *testing.T) {
	s := newMockStore()
	counter := newCounter()
	c := New(s, time.Minute, counter, zap.NewNop())
	ctx := context.Background()

	resp := domain.Response{
		StatusCode:  200,
		ContentType: "application/json",
		Body:        []byte(`{"content":"x"}`),
		Records:     [][]byte{[]byte("a"), []byte("b")},
	}
	c.Put(ctx, "note", "abc", resp)

	if ttl := s.ttls[KeyPrefix+"note:abc"]; ttl != time.Minute {
		t.Fatalf("expected TTL 1m on namespaced key, got %v (keys %v)", ttl, s.ttls)
	}

	got, ok := c.Get(ctx, "note", "abc")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.StatusCode != 200 || string(got.Body) != `{"content":"x"}` || len(got.Records) != 2 {
		t.Errorf("unexpected response: %+v", got)
	}
	if v := testutil.ToFloat64(counter.WithLabelValues("hit")); v != 1 {
		t.Errorf("expected 1 hit, got %v", v)
	}
}

func TestGet_Miss(t *testing.T) {
	counter := newCounter()
	c := New(newMockStore(), time.Minute, counter, nil)

	if _, ok := c.Get(context.Background(), "note", "missing"); ok {
		t.Fatal("expected miss")
	}
	if v := testutil.ToFloat64(counter.WithLabelValues("miss")); v != 1 {
		t.Errorf("expected 1 miss, got %v", v)
	}
}

func TestGet_StoreErrorIsMiss(t *testing.T) {
	s := newMockStore()
	s.getErr = errors.New("connection reset")
	counter := newCounter()
	c := New(s, time.Minute, counter, nil)

	if _, ok := c.Get(context.Background(), "note", "k"); ok {
		t.Fatal("store errors must not be hits")
	}
	if v := testutil.ToFloat64(counter.WithLabelValues("error")); v != 1 {
		t.Errorf("expected 1 error, got %v", v)
	}
}

func TestGet_CorruptEntry(t *testing.T) {
	s := newMockStore()
	s.data[KeyPrefix+"note:k"] = []byte("not json")
	c := New(s, time.Minute, nil, nil)

	if _, ok := c.Get(context.Background(), "note", "k"); ok {
		t.Fatal("corrupt entry must be a miss")
	}
}

func TestInvalidate(t *testing.T) {
	s := newMockStore()
	c := New(s, time.Minute, nil, nil)
	ctx := context.Background()

	c.Put(ctx, "note", "a", domain.Response{StatusCode: 200})
	c.Put(ctx, "note", "b", domain.Response{StatusCode: 200})
	c.Invalidate(ctx, "note", "a")

	if _, ok := c.Get(ctx, "note", "a"); ok {
		t.Error("a should be gone")
	}
	if _, ok := c.Get(ctx, "note", "b"); !ok {
		t.Error("b should remain")
	}
}

func TestInvalidateKind(t *testing.T) {
	s := newMockStore()
	c := New(s, time.Minute, nil, nil)
	ctx := context.Background()

	c.Put(ctx, "search", "q1", domain.Response{StatusCode: 200})
	c.Put(ctx, "search", "q2", domain.Response{StatusCode: 200})
	c.Put(ctx, "note", "n1", domain.Response{StatusCode: 200})
	c.InvalidateKind(ctx, "search")

	if len(s.deleted) != 2 {
		t.Fatalf("expected 2 deleted keys, got %v", s.deleted)
	}
	if _, ok := c.Get(ctx, "note", "n1"); !ok {
		t.Error("note entries must survive search invalidation")
	}
}

func TestInvalidateKind_ScanError(t *testing.T) {
	s := newMockStore()
	s.scanErr = errors.New("boom")
	c := New(s, time.Minute, nil, nil)

	c.InvalidateKind(context.Background(), "search")
	if len(s.deleted) != 0 {
		t.Errorf("nothing should be deleted on scan failure, got %v", s.deleted)
	}
}
