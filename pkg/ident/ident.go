// Package ident generates document identifiers.
//
// Identifiers are ULIDs: 26-character, Crockford base32, lexically sortable
// by creation time. A Generator never hands out the same id twice, even to
// concurrent callers within the same millisecond.
package ident

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces time-ordered, collision-resistant identifiers.
// It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	lastMs  uint64
	now     func() time.Time
}

// NewGenerator creates a Generator seeded from crypto/rand.
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Next returns a new identifier. Ids from one Generator are strictly
// increasing; if the wall clock steps backwards the generator keeps using
// the last millisecond it saw.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(g.now())
	if ms < g.lastMs {
		ms = g.lastMs
	}

	for {
		id, err := ulid.New(ms, g.entropy)
		if err == nil {
			g.lastMs = ms
			return id.String()
		}
		// Monotonic entropy exhausted for this millisecond; move on to the
		// next one rather than fail.
		ms++
	}
}
