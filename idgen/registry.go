package idgen

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// ErrDuplicateID is returned by Claim when the id is already taken.
var ErrDuplicateID = errors.New("idgen: duplicate id")

// maxRandomAttempts bounds the purely random retries in Next before a
// counter is mixed into the suffix.
const maxRandomAttempts = 8

// Registry hands out identifiers of the form "<prefix>-<suffix>" and remembers
// every id it has issued or accepted, so ids are pairwise distinct for the
// registry's lifetime. It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	gen     Generator
	claimed map[string]struct{}
	seq     uint64
}

// NewRegistry returns a Registry drawing suffixes from gen.
// A nil gen defaults to NanoID(8).
func NewRegistry(gen Generator) *Registry {
	if gen == nil {
		gen = NanoID(8)
	}
	return &Registry{gen: gen, claimed: make(map[string]struct{})}
}

// Next returns a fresh id for prefix. It never returns an id that is
// currently claimed.
func (r *Registry) Next(prefix string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < maxRandomAttempts; i++ {
		id := prefix + "-" + r.gen()
		if _, taken := r.claimed[id]; !taken {
			r.claimed[id] = struct{}{}
			return id
		}
	}
	// The generator keeps colliding (tiny alphabet or a fixed test
	// generator). The counter makes the loop terminate.
	for {
		r.seq++
		id := prefix + "-" + r.gen() + strconv.FormatUint(r.seq, 36)
		if _, taken := r.claimed[id]; !taken {
			r.claimed[id] = struct{}{}
			return id
		}
	}
}

// Claim reserves an explicit id.
func (r *Registry) Claim(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.claimed[id]; taken {
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	r.claimed[id] = struct{}{}
	return nil
}

// Release frees id so it can be claimed again.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	delete(r.claimed, id)
	r.mu.Unlock()
}

// Len returns the number of ids currently claimed.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.claimed)
}
