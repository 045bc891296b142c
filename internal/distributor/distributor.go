package distributor

import (
	"sync/atomic"

	"github.com/enigma-backup/enigma/internal/enigmaerr"
)

// Entry binds a configured provider's manifest ID to its live Provider
// implementation and its configured weight.
type Entry struct {
	ID       int64
	Provider Provider
	Weight   int
}

// Distributor picks which provider a newly seen chunk is placed on.
// Placement happens once per chunk, at first upload; subsequent
// dedup hits reuse the chunk's existing placement and never re-run this
// selection, per the manifest's ref-count model.
type Distributor struct {
	entries []Entry
	ring    []int // expanded weighted ring: ring[i] is an index into entries
	counter atomic.Uint64
}

// NewRoundRobin builds a Distributor that cycles through entries in
// order, one per Next call, independent of weight.
func NewRoundRobin(entries []Entry) (*Distributor, error) {
	if len(entries) == 0 {
		return nil, enigmaerr.New(enigmaerr.ConfigInvalid, "distributor requires at least one provider", nil)
	}
	ring := make([]int, len(entries))
	for i := range entries {
		ring[i] = i
	}
	return &Distributor{entries: entries, ring: ring}, nil
}

// NewWeighted builds a Distributor whose placement frequency is
// proportional to each entry's Weight, implemented as a flattened ring:
// provider i appears Weight[i] times in the ring, and Next advances an
// atomic counter around it. This is equivalent to
// original_source's cumulative-weight selection, and resolves the
// "tie-breaking" open question as round-robin of the expanded ring.
func NewWeighted(entries []Entry) (*Distributor, error) {
	if len(entries) == 0 {
		return nil, enigmaerr.New(enigmaerr.ConfigInvalid, "distributor requires at least one provider", nil)
	}
	var ring []int
	for i, e := range entries {
		w := e.Weight
		if w <= 0 {
			w = 1
		}
		for j := 0; j < w; j++ {
			ring = append(ring, i)
		}
	}
	return &Distributor{entries: entries, ring: ring}, nil
}

// Next selects the provider for the next chunk to be uploaded.
func (d *Distributor) Next() Entry {
	idx := d.counter.Add(1) - 1
	return d.entries[d.ring[idx%uint64(len(d.ring))]]
}

// ByID returns the entry for a given manifest provider ID, used at
// restore/verify time to route a chunk read back to the provider it was
// originally placed on.
func (d *Distributor) ByID(id int64) (Entry, bool) {
	for _, e := range d.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Entries returns every configured provider entry.
func (d *Distributor) Entries() []Entry {
	return d.entries
}
