// Package book maintains per-token order-book snapshots. A snapshot is
// an immutable value replaced wholesale on every book event; readers
// never observe a half-updated book.
package book

import (
	"time"

	"github.com/google/btree"

	"github.com/updownlabs/dipcatcher/internal/feed"
	"github.com/updownlabs/dipcatcher/internal/price"
)

// Level is one resting price level.
type Level struct {
	Price price.Price
	Size  price.Size
}

// lessAsc orders levels by price ascending (asks: lowest first).
func lessAsc(a, b Level) bool {
	return a.Price < b.Price
}

// lessDesc orders levels by price descending (bids: highest first).
func lessDesc(a, b Level) bool {
	return a.Price > b.Price
}

// Snapshot is a full view of one token's book at a point in time.
// Bids are strictly descending by price, asks strictly ascending, with
// no duplicate prices within a side.
type Snapshot struct {
	TokenID   string
	MarketID  string
	Timestamp time.Time
	Hash      string
	Bids      []Level
	Asks      []Level
	BestBid   price.Price // 0 when no bids
	BestAsk   price.Price // price.One when no asks
	Mid       price.Price
}

// FromBook builds a Snapshot from a wire book event. Levels that fail
// to parse are dropped individually; a later entry for the same price
// replaces the earlier one, and zero size removes the level.
func FromBook(ev *feed.BookEvent, now time.Time) Snapshot {
	bids := btree.NewG(8, lessDesc)
	asks := btree.NewG(8, lessAsc)

	insertLevels(bids, ev.Buys)
	insertLevels(asks, ev.Sells)

	snap := Snapshot{
		TokenID:   ev.AssetID,
		MarketID:  ev.Market,
		Timestamp: ev.Time(now),
		Hash:      ev.Hash,
		Bids:      flatten(bids),
		Asks:      flatten(asks),
	}
	snap.BestBid, snap.BestAsk, snap.Mid = derive(snap.Bids, snap.Asks)
	return snap
}

func insertLevels(tree *btree.BTreeG[Level], entries []feed.LevelEntry) {
	for _, entry := range entries {
		p, err := price.Parse(entry.Price)
		if err != nil {
			continue
		}
		size, err := price.ParseSize(entry.Size)
		if err != nil {
			continue
		}
		if size <= 0 {
			tree.Delete(Level{Price: p})
			continue
		}
		tree.ReplaceOrInsert(Level{Price: p, Size: size})
	}
}

func flatten(tree *btree.BTreeG[Level]) []Level {
	levels := make([]Level, 0, tree.Len())
	tree.Ascend(func(lvl Level) bool {
		levels = append(levels, lvl)
		return true
	})
	return levels
}

func derive(bids, asks []Level) (bestBid, bestAsk, mid price.Price) {
	bestBid = 0
	bestAsk = price.One

	hasBids := len(bids) > 0
	hasAsks := len(asks) > 0
	if hasBids {
		bestBid = bids[0].Price
	}
	if hasAsks {
		bestAsk = asks[0].Price
	}

	switch {
	case hasBids && hasAsks:
		mid = (bestBid + bestAsk) / 2
	case hasBids:
		mid = bestBid
	case hasAsks:
		mid = bestAsk
	default:
		mid = price.Half
	}
	return bestBid, bestAsk, mid
}

// Spread is bestAsk − bestBid when a bid exists, else 0.
func (s Snapshot) Spread() price.Price {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.BestAsk - s.BestBid
}

// WithBestPrices derives a successor snapshot carrying updated best
// bid/ask from a price-change event. Zero values leave the side
// untouched (the feed omits fields it is not updating). Depth arrays
// are kept; only the derived prices move.
func (s Snapshot) WithBestPrices(bid, ask price.Price, ts time.Time) Snapshot {
	next := s
	if !ts.IsZero() {
		next.Timestamp = ts
	}
	if bid > 0 {
		next.BestBid = bid
	}
	if ask > 0 {
		next.BestAsk = ask
	}
	switch {
	case next.BestBid > 0 && next.BestAsk < price.One:
		next.Mid = (next.BestBid + next.BestAsk) / 2
	case next.BestBid > 0:
		next.Mid = next.BestBid
	case next.BestAsk < price.One:
		next.Mid = next.BestAsk
	default:
		next.Mid = price.Half
	}
	return next
}
