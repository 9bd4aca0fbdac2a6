package book

import (
	"testing"
	"time"

	"github.com/updownlabs/dipcatcher/internal/feed"
	"github.com/updownlabs/dipcatcher/internal/price"
)

func bookEvent(buys, sells []feed.LevelEntry) *feed.BookEvent {
	return &feed.BookEvent{
		AssetID: "token-up",
		Market:  "0xabc",
		Hash:    "h1",
		Buys:    buys,
		Sells:   sells,
	}
}

func TestFromBookOrdering(t *testing.T) {
	// Wire order is scrambled on purpose; the snapshot must come out
	// strictly sorted with no duplicate prices.
	ev := bookEvent(
		[]feed.LevelEntry{
			{Price: "0.40", Size: "10"},
			{Price: "0.42", Size: "5"},
			{Price: "0.38", Size: "7"},
			{Price: "0.40", Size: "12"}, // replaces the first 0.40
		},
		[]feed.LevelEntry{
			{Price: "0.47", Size: "3"},
			{Price: "0.44", Size: "9"},
			{Price: "0.45", Size: "2"},
		},
	)

	snap := FromBook(ev, time.Now())

	if len(snap.Bids) != 3 {
		t.Fatalf("bids: got %d levels, want 3", len(snap.Bids))
	}
	for i := 1; i < len(snap.Bids); i++ {
		if snap.Bids[i].Price >= snap.Bids[i-1].Price {
			t.Errorf("bids not strictly descending at %d: %v >= %v", i, snap.Bids[i].Price, snap.Bids[i-1].Price)
		}
	}
	for i := 1; i < len(snap.Asks); i++ {
		if snap.Asks[i].Price <= snap.Asks[i-1].Price {
			t.Errorf("asks not strictly ascending at %d: %v <= %v", i, snap.Asks[i].Price, snap.Asks[i-1].Price)
		}
	}

	if snap.BestBid != 420_000 {
		t.Errorf("best bid: got %v, want 420000", snap.BestBid)
	}
	if snap.BestAsk != 440_000 {
		t.Errorf("best ask: got %v, want 440000", snap.BestAsk)
	}
	if snap.BestBid >= snap.BestAsk {
		t.Errorf("book crossed: bid %v >= ask %v", snap.BestBid, snap.BestAsk)
	}
	if got := snap.Bids[0].Size; got != 12_000_000 {
		t.Errorf("duplicate level not replaced: top bid size %v, want 12000000", got)
	}
}

func TestFromBookDropsBadLevels(t *testing.T) {
	ev := bookEvent(
		[]feed.LevelEntry{
			{Price: "0.40", Size: "10"},
			{Price: "oops", Size: "10"},
			{Price: "0.39", Size: "bad"},
		},
		nil,
	)

	snap := FromBook(ev, time.Now())
	if len(snap.Bids) != 1 {
		t.Fatalf("got %d bids, want 1 (bad levels dropped)", len(snap.Bids))
	}
	if snap.Bids[0].Price != 400_000 {
		t.Errorf("surviving level: got %v, want 400000", snap.Bids[0].Price)
	}
}

func TestMidPrice(t *testing.T) {
	tests := []struct {
		name  string
		buys  []feed.LevelEntry
		sells []feed.LevelEntry
		want  price.Price
	}{
		{
			"both sides",
			[]feed.LevelEntry{{Price: "0.40", Size: "1"}},
			[]feed.LevelEntry{{Price: "0.44", Size: "1"}},
			420_000,
		},
		{
			"asks only",
			nil,
			[]feed.LevelEntry{{Price: "0.30", Size: "1"}},
			300_000,
		},
		{
			"bids only",
			[]feed.LevelEntry{{Price: "0.35", Size: "1"}},
			nil,
			350_000,
		},
		{
			"empty book",
			nil,
			nil,
			price.Half,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := FromBook(bookEvent(tt.buys, tt.sells), time.Now())
			if snap.Mid != tt.want {
				t.Errorf("mid: got %v, want %v", snap.Mid, tt.want)
			}
		})
	}
}

func TestEmptyBookDefaults(t *testing.T) {
	snap := FromBook(bookEvent(nil, nil), time.Now())
	if snap.BestBid != 0 {
		t.Errorf("best bid: got %v, want 0", snap.BestBid)
	}
	if snap.BestAsk != price.One {
		t.Errorf("best ask: got %v, want %v", snap.BestAsk, price.One)
	}
}

func TestStoreReplaceAndDerivations(t *testing.T) {
	store := NewStore()

	if _, ok := store.Get("token-up"); ok {
		t.Fatal("unexpected snapshot before apply")
	}
	if got := store.Spread("token-up"); got != 0 {
		t.Errorf("spread without book: got %v, want 0", got)
	}
	if got := store.Mid("token-up"); got != price.Half {
		t.Errorf("mid without book: got %v, want %v", got, price.Half)
	}

	first := FromBook(bookEvent(
		[]feed.LevelEntry{{Price: "0.40", Size: "1"}},
		[]feed.LevelEntry{{Price: "0.44", Size: "1"}},
	), time.Now())
	store.Apply(first)

	if got := store.Spread("token-up"); got != 40_000 {
		t.Errorf("spread: got %v, want 40000", got)
	}

	// Wholesale replace: levels from the first snapshot must not
	// survive into the second.
	second := FromBook(bookEvent(
		[]feed.LevelEntry{{Price: "0.30", Size: "1"}},
		nil,
	), time.Now())
	store.Apply(second)

	snap, ok := store.Get("token-up")
	if !ok {
		t.Fatal("snapshot missing after apply")
	}
	if len(snap.Bids) != 1 || snap.Bids[0].Price != 300_000 {
		t.Errorf("replace was merged, not wholesale: %+v", snap.Bids)
	}
	if len(snap.Asks) != 0 {
		t.Errorf("stale asks survived replace: %+v", snap.Asks)
	}
}

func TestWithBestPrices(t *testing.T) {
	snap := FromBook(bookEvent(
		[]feed.LevelEntry{{Price: "0.40", Size: "1"}},
		[]feed.LevelEntry{{Price: "0.44", Size: "1"}},
	), time.Now())

	next := snap.WithBestPrices(380_000, 460_000, time.Now())
	if next.BestBid != 380_000 || next.BestAsk != 460_000 {
		t.Errorf("best prices not applied: %v/%v", next.BestBid, next.BestAsk)
	}
	if next.Mid != 420_000 {
		t.Errorf("mid: got %v, want 420000", next.Mid)
	}

	// Zero leaves a side untouched.
	partial := snap.WithBestPrices(0, 500_000, time.Now())
	if partial.BestBid != snap.BestBid {
		t.Errorf("zero bid overwrote best bid: %v", partial.BestBid)
	}
	if partial.BestAsk != 500_000 {
		t.Errorf("ask not applied: %v", partial.BestAsk)
	}
}
