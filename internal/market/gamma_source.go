package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/updownlabs/dipcatcher/internal/polymarket/gamma"
	"github.com/updownlabs/dipcatcher/internal/price"
)

// GammaSource adapts the Gamma client to the resolver's Source.
type GammaSource struct {
	client *gamma.Client
}

func NewGammaSource(client *gamma.Client) *GammaSource {
	return &GammaSource{client: client}
}

func (g *GammaSource) FetchBySlug(slug string) (*Metadata, error) {
	m, err := g.client.GetMarketBySlug(slug)
	if err != nil {
		return nil, fmt.Errorf("couldn't fetch market %s: %w", slug, err)
	}
	if m == nil {
		return nil, nil
	}

	meta := &Metadata{
		Slug:            m.Slug,
		Question:        m.Question,
		AcceptingOrders: m.AcceptingOrders,
		Tokens:          make(map[string]string, len(m.Outcomes)),
		Prices:          make(map[string]price.Price, len(m.Outcomes)),
	}

	if m.EndDate != "" {
		end, err := time.Parse(time.RFC3339, m.EndDate)
		if err != nil {
			return nil, fmt.Errorf("couldn't parse end date %q for %s: %w", m.EndDate, slug, err)
		}
		meta.EndTime = end
	}

	// Outcome labels map positionally onto token IDs and reference
	// prices. A label with no value at the same index is skipped;
	// partial metadata is tolerated.
	for i, outcome := range m.Outcomes {
		side := strings.ToLower(outcome)
		if i < len(m.ClobTokenIDs) {
			meta.Tokens[side] = m.ClobTokenIDs[i]
		}
		if i < len(m.OutcomePrices) {
			p, err := price.Parse(m.OutcomePrices[i])
			if err == nil {
				meta.Prices[side] = p
			}
		}
	}

	return meta, nil
}
