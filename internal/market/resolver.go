// Package market discovers the currently tradable Up/Down window and
// runs a live market-data session for its token pair.
package market

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/updownlabs/dipcatcher/internal/price"
)

// Side keys are lower-cased outcome labels.
const (
	SideUp   = "up"
	SideDown = "down"
)

// ErrNoTradableWindow is returned when neither the current window nor
// its neighbors are accepting orders.
var ErrNoTradableWindow = errors.New("market: no tradable window found")

// Metadata describes one trading window. It is immutable once
// resolved; the next window's resolution supersedes it.
type Metadata struct {
	Slug            string
	Question        string
	EndTime         time.Time
	AcceptingOrders bool
	Tokens          map[string]string      // side -> token ID
	Prices          map[string]price.Price // side -> reference price
}

// TokenIDs returns all token IDs of the pair.
func (m *Metadata) TokenIDs() []string {
	ids := make([]string, 0, len(m.Tokens))
	for _, id := range m.Tokens {
		ids = append(ids, id)
	}
	return ids
}

// SideFor maps a token ID back to its side key.
func (m *Metadata) SideFor(tokenID string) (string, bool) {
	for side, id := range m.Tokens {
		if id == tokenID {
			return side, true
		}
	}
	return "", false
}

// Expired reports whether the window's end time has passed.
func (m *Metadata) Expired(now time.Time) bool {
	return !m.EndTime.IsZero() && now.After(m.EndTime)
}

// Source is the metadata lookup consumed by the resolver. A missing
// slug is (nil, nil), not an error.
type Source interface {
	FetchBySlug(slug string) (*Metadata, error)
}

// Resolver finds the tradable window for an asset given the recurring
// fixed-duration window schedule.
type Resolver struct {
	src          Source
	windowLength time.Duration
	now          func() time.Time
	log          *slog.Logger
}

func NewResolver(src Source, windowLength time.Duration, log *slog.Logger) *Resolver {
	return &Resolver{
		src:          src,
		windowLength: windowLength,
		now:          time.Now,
		log:          log.With("component", "resolver"),
	}
}

// Slug builds the canonical window slug for an asset prefix and a
// window start, e.g. "btc-updown-15m-1756500300".
func Slug(assetPrefix string, windowStart time.Time) string {
	return fmt.Sprintf("%s%d", assetPrefix, windowStart.Unix())
}

// ResolveCurrent floors the current time to the window length and
// probes the current, next, then previous window in that fixed order,
// returning the first one accepting orders. Windows open and close
// asynchronously relative to wall-clock boundaries, so the three-probe
// search absorbs clock skew and late market creation.
func (r *Resolver) ResolveCurrent(assetPrefix string) (*Metadata, error) {
	start := r.now().Truncate(r.windowLength)

	for _, offset := range []time.Duration{0, r.windowLength, -r.windowLength} {
		slug := Slug(assetPrefix, start.Add(offset))
		meta, err := r.src.FetchBySlug(slug)
		if err != nil {
			r.log.Warn("window probe failed", "slug", slug, "error", err)
			continue
		}
		if meta == nil {
			r.log.Debug("window not found", "slug", slug)
			continue
		}
		if !meta.AcceptingOrders {
			r.log.Debug("window not accepting orders", "slug", slug)
			continue
		}
		return meta, nil
	}
	return nil, ErrNoTradableWindow
}
