package feed

import (
	"time"

	"github.com/updownlabs/dipcatcher/internal/price"
)

// Event type discriminators used by the market channel.
const (
	KindBook        = "book"
	KindPriceChange = "price_change"
	KindLastTrade   = "last_trade_price"
)

// Event is a decoded market-channel message.
type Event interface {
	Kind() string
}

// LevelEntry is one resting price level as it appears on the wire.
// Price and size stay as decimal strings so that a single bad level
// can be dropped without rejecting the whole book.
type LevelEntry struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookEvent is a full replacement view of one token's book.
type BookEvent struct {
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Timestamp string       `json:"timestamp"`
	Hash      string       `json:"hash"`
	Buys      []LevelEntry `json:"buys"`
	Sells     []LevelEntry `json:"sells"`
}

func (*BookEvent) Kind() string { return KindBook }

// Time returns the event timestamp, or fallback when the feed did not
// provide one.
func (b *BookEvent) Time(fallback time.Time) time.Time {
	return parseMillis(b.Timestamp, fallback)
}

// BestPriceChange is one per-token entry of a price_change event.
type BestPriceChange struct {
	AssetID string
	Side    string
	Price   price.Price
	Size    price.Size
	BestBid price.Price
	BestAsk price.Price
}

// PriceChangeEvent updates best bid/ask for one or more tokens of a
// market without carrying the full book.
type PriceChangeEvent struct {
	Market    string
	Timestamp time.Time
	Changes   []BestPriceChange
}

func (*PriceChangeEvent) Kind() string { return KindPriceChange }

// TradeEvent is a last-trade notice for a token.
type TradeEvent struct {
	AssetID    string
	Market     string
	Side       string
	Price      price.Price
	Size       price.Size
	FeeRateBPS price.Price
	Timestamp  time.Time
}

func (*TradeEvent) Kind() string { return KindLastTrade }

// Subscription is the outbound market-channel subscribe payload.
// Replace semantics: the server clears state for tokens that are no
// longer listed.
type Subscription struct {
	Auth        *Auth    `json:"auth,omitempty"`
	AssetsIDs   []string `json:"assets_ids"`
	Type        string   `json:"type"`
	InitialDump *bool    `json:"initial_dump,omitempty"`
}

type Auth struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

func parseMillis(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	var ms int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return fallback
		}
		ms = ms*10 + int64(c-'0')
	}
	return time.UnixMilli(ms)
}
