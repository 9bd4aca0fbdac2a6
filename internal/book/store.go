package book

import (
	"sync"

	"github.com/updownlabs/dipcatcher/internal/price"
)

// Store maps token IDs to their most recent snapshot. Writes arrive
// only from the decode path; reads come from any goroutine. The
// replace is atomic at snapshot granularity.
type Store struct {
	mu    sync.RWMutex
	books map[string]Snapshot
}

func NewStore() *Store {
	return &Store{books: make(map[string]Snapshot)}
}

// Apply replaces the stored snapshot for snap's token wholesale.
func (s *Store) Apply(snap Snapshot) {
	s.mu.Lock()
	s.books[snap.TokenID] = snap
	s.mu.Unlock()
}

// Get returns the current snapshot for a token.
func (s *Store) Get(tokenID string) (Snapshot, bool) {
	s.mu.RLock()
	snap, ok := s.books[tokenID]
	s.mu.RUnlock()
	return snap, ok
}

// BestBid returns the highest bid price, or 0 without bids or book.
func (s *Store) BestBid(tokenID string) price.Price {
	snap, ok := s.Get(tokenID)
	if !ok {
		return 0
	}
	return snap.BestBid
}

// BestAsk returns the lowest ask price, or price.One without asks or
// book.
func (s *Store) BestAsk(tokenID string) price.Price {
	snap, ok := s.Get(tokenID)
	if !ok {
		return price.One
	}
	return snap.BestAsk
}

// Mid returns the snapshot mid price, or price.Half without a book.
func (s *Store) Mid(tokenID string) price.Price {
	snap, ok := s.Get(tokenID)
	if !ok {
		return price.Half
	}
	return snap.Mid
}

// Spread returns bestAsk − bestBid when a bid exists, else 0. A
// one-sided book is not an error, just an undefined spread.
func (s *Store) Spread(tokenID string) price.Price {
	snap, ok := s.Get(tokenID)
	if !ok {
		return 0
	}
	return snap.Spread()
}
