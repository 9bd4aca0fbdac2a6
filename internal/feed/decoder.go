package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/updownlabs/dipcatcher/internal/price"
)

var zeroTime time.Time

// DecodeError marks a single malformed message. It is dropped and
// logged by the caller; it never tears down the stream.
type DecodeError struct {
	Kind string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("couldn't decode %s message: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type envelope struct {
	EventType string `json:"event_type"`
}

type wirePriceChange struct {
	Market    string `json:"market"`
	Timestamp string `json:"timestamp"`
	Changes   []struct {
		AssetID string `json:"asset_id"`
		Price   string `json:"price"`
		Size    string `json:"size"`
		Side    string `json:"side"`
		BestBid string `json:"best_bid"`
		BestAsk string `json:"best_ask"`
	} `json:"price_changes"`
}

type wireTrade struct {
	AssetID    string `json:"asset_id"`
	Market     string `json:"market"`
	Price      string `json:"price"`
	Size       string `json:"size"`
	Side       string `json:"side"`
	FeeRateBPS string `json:"fee_rate_bps"`
	Timestamp  string `json:"timestamp"`
}

// Decode parses one market-channel message. Unknown event types return
// (nil, nil): they are ignored, not errors.
func Decode(raw []byte) (Event, error) {
	base := envelope{}
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, &DecodeError{Kind: "envelope", Err: err}
	}

	switch base.EventType {
	case KindBook:
		book := &BookEvent{}
		if err := json.Unmarshal(raw, book); err != nil {
			return nil, &DecodeError{Kind: KindBook, Err: err}
		}
		if book.AssetID == "" {
			return nil, &DecodeError{Kind: KindBook, Err: fmt.Errorf("missing asset_id")}
		}
		return book, nil

	case KindPriceChange:
		wire := wirePriceChange{}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, &DecodeError{Kind: KindPriceChange, Err: err}
		}
		ev := &PriceChangeEvent{
			Market:    wire.Market,
			Timestamp: parseMillis(wire.Timestamp, zeroTime),
			Changes:   make([]BestPriceChange, 0, len(wire.Changes)),
		}
		for _, c := range wire.Changes {
			change, err := decodeBestPriceChange(c.AssetID, c.Side, c.Price, c.Size, c.BestBid, c.BestAsk)
			if err != nil {
				return nil, &DecodeError{Kind: KindPriceChange, Err: err}
			}
			ev.Changes = append(ev.Changes, change)
		}
		return ev, nil

	case KindLastTrade:
		wire := wireTrade{}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, &DecodeError{Kind: KindLastTrade, Err: err}
		}
		p, err := price.Parse(wire.Price)
		if err != nil {
			return nil, &DecodeError{Kind: KindLastTrade, Err: err}
		}
		size, err := price.ParseSize(wire.Size)
		if err != nil {
			return nil, &DecodeError{Kind: KindLastTrade, Err: err}
		}
		fee, err := price.Parse(wire.FeeRateBPS)
		if err != nil {
			return nil, &DecodeError{Kind: KindLastTrade, Err: err}
		}
		return &TradeEvent{
			AssetID:    wire.AssetID,
			Market:     wire.Market,
			Side:       wire.Side,
			Price:      p,
			Size:       size,
			FeeRateBPS: fee,
			Timestamp:  parseMillis(wire.Timestamp, zeroTime),
		}, nil

	default:
		// New event kinds appear on this channel from time to time.
		return nil, nil
	}
}

// DecodeAll parses a frame that may hold either a single message or a
// JSON array of messages (the server batches the initial dump).
// Malformed entries are collected as errors; well-formed entries still
// decode.
func DecodeAll(raw []byte) ([]Event, []error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] != '[' {
		ev, err := Decode(trimmed)
		if err != nil {
			return nil, []error{err}
		}
		if ev == nil {
			return nil, nil
		}
		return []Event{ev}, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, []error{&DecodeError{Kind: "batch", Err: err}}
	}

	var events []Event
	var errs []error
	for _, entry := range entries {
		ev, err := Decode(entry)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events, errs
}

func decodeBestPriceChange(assetID, side, p, size, bestBid, bestAsk string) (BestPriceChange, error) {
	// Missing numeric fields default to 0 here; garbage does not.
	pr, err := price.Parse(p)
	if err != nil {
		return BestPriceChange{}, err
	}
	sz, err := price.ParseSize(size)
	if err != nil {
		return BestPriceChange{}, err
	}
	bid, err := price.Parse(bestBid)
	if err != nil {
		return BestPriceChange{}, err
	}
	ask, err := price.Parse(bestAsk)
	if err != nil {
		return BestPriceChange{}, err
	}
	return BestPriceChange{
		AssetID: assetID,
		Side:    side,
		Price:   pr,
		Size:    sz,
		BestBid: bid,
		BestAsk: ask,
	}, nil
}
