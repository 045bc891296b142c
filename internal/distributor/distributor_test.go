package distributor

import (
	"context"
	"sync"
	"testing"
)

type memProvider struct {
	name string
	mu   sync.Mutex
	data map[string][]byte
}

func newMemProvider(name string) *memProvider {
	return &memProvider{name: name, data: make(map[string][]byte)}
}

func (p *memProvider) Name() string { return p.name }

func (p *memProvider) Put(ctx context.Context, key string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = append([]byte{}, data...)
	return nil
}

func (p *memProvider) Get(ctx context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data[key], nil
}

func (p *memProvider) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, key)
	return nil
}

func (p *memProvider) Head(ctx context.Context, key string) (bool, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.data[key]
	return ok, int64(len(d)), nil
}

func (p *memProvider) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}

func (p *memProvider) TestConnection(ctx context.Context) error { return nil }

var _ Provider = (*memProvider)(nil)

func makeEntries(n int) []Entry {
	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		entries[i] = Entry{ID: int64(i), Provider: newMemProvider("p"), Weight: 1}
	}
	return entries
}

func TestRoundRobin_Cycles(t *testing.T) {
	t.Parallel()
	d, err := NewRoundRobin(makeEntries(3))
	if err != nil {
		t.Fatalf("NewRoundRobin() error = %v", err)
	}

	var ids []int64
	for i := 0; i < 9; i++ {
		ids = append(ids, d.Next().ID)
	}
	want := []int64{0, 1, 2, 0, 1, 2, 0, 1, 2}
	for i, id := range ids {
		if id != want[i] {
			t.Fatalf("Next() sequence = %v, want %v", ids, want)
		}
	}
}

func TestNewRoundRobin_EmptyFails(t *testing.T) {
	t.Parallel()
	if _, err := NewRoundRobin(nil); err == nil {
		t.Fatal("NewRoundRobin(nil) succeeded, want error")
	}
}

func TestWeighted_Distribution(t *testing.T) {
	t.Parallel()
	entries := []Entry{
		{ID: 0, Provider: newMemProvider("heavy"), Weight: 3},
		{ID: 1, Provider: newMemProvider("light"), Weight: 1},
	}
	d, err := NewWeighted(entries)
	if err != nil {
		t.Fatalf("NewWeighted() error = %v", err)
	}

	var counts [2]int
	for i := 0; i < 400; i++ {
		counts[d.Next().ID]++
	}
	if counts[0] <= counts[1]*2 {
		t.Fatalf("expected heavy provider to receive more than 2x light, got %v", counts)
	}
}

func TestByID(t *testing.T) {
	t.Parallel()
	d, err := NewRoundRobin(makeEntries(3))
	if err != nil {
		t.Fatalf("NewRoundRobin() error = %v", err)
	}
	if e, ok := d.ByID(1); !ok || e.ID != 1 {
		t.Fatalf("ByID(1) = %v, %v, want entry with ID 1", e, ok)
	}
	if _, ok := d.ByID(99); ok {
		t.Fatal("ByID(99) found an entry, want not found")
	}
}
