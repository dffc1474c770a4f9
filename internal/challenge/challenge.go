// Package challenge implements the bounded, time-expiring nonce index
// described in design component B: issue() hands out a fresh nonce,
// consume() redeems it at most once within a 60s freshness window.
package challenge

import (
	"container/list"
	"crypto/rand"
	"sync"
	"time"
)

const (
	// Len is the nonce size in bytes.
	Len = 32
	// TTL is how long an issued nonce remains eligible for consumption.
	TTL = 60 * time.Second
	// Capacity bounds memory under challenge-flood attacks; the oldest
	// unconsumed entries are evicted once this many are outstanding.
	Capacity = 1_000_000
)

// Nonce is a 32-byte server-issued challenge value.
type Nonce [Len]byte

type entry struct {
	nonce     Nonce
	issuedAt  time.Time
	listEntry *list.Element
}

// Index is a concurrent, capacity-bounded set of outstanding nonces. The
// zero value is not usable; construct with New. Safe for concurrent use.
type Index struct {
	mu      sync.Mutex
	entries map[Nonce]*entry
	order   *list.List // front = oldest write
	now     func() time.Time
}

// New constructs an empty Index.
func New() *Index {
	return &Index{
		entries: make(map[Nonce]*entry),
		order:   list.New(),
		now:     time.Now,
	}
}

// Issue draws Len bytes from a cryptographically strong RNG, records the
// issuance time, and returns the nonce. Issue never fails; a read error
// from crypto/rand indicates a broken system RNG and is treated as fatal
// the same way the standard library treats it (panic), since there is no
// meaningful degraded mode for a nonce source.
func (idx *Index) Issue() Nonce {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		panic("challenge: system RNG unavailable: " + err.Error())
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	e := &entry{nonce: n, issuedAt: idx.now()}
	e.listEntry = idx.order.PushBack(e)
	idx.entries[n] = e

	for len(idx.entries) > Capacity {
		oldest := idx.order.Front()
		if oldest == nil {
			break
		}
		idx.order.Remove(oldest)
		delete(idx.entries, oldest.Value.(*entry).nonce)
	}

	return n
}

// Consume atomically removes n and reports whether it was present and
// issued within the last TTL. Each nonce can be consumed at most once:
// consuming removes it from the index regardless of freshness, so a
// stale entry is also evicted (and rejected) on its first consume.
func (idx *Index) Consume(n Nonce) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	e, ok := idx.entries[n]
	if !ok {
		return false
	}
	delete(idx.entries, n)
	idx.order.Remove(e.listEntry)

	return idx.now().Sub(e.issuedAt) <= TTL
}

// Len reports the number of outstanding, unconsumed nonces. Intended for
// metrics/tests, not for control flow.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.entries)
}
