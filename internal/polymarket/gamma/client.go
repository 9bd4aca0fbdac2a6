// Package gamma consumes Polymarket Gamma endpoints for market
// metadata lookups.
package gamma

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/updownlabs/dipcatcher/pkg/httpclient"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
}

func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
	}
}

// StringList handles the double-encoded JSON arrays the API returns
// for outcomes, prices and token IDs.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return json.Unmarshal([]byte(s), (*[]string)(l))
}

type Market struct {
	ID              string     `json:"id"`
	ConditionID     string     `json:"conditionId"`
	Question        string     `json:"question"`
	Slug            string     `json:"slug"`
	EndDate         string     `json:"endDate"`
	AcceptingOrders bool       `json:"acceptingOrders"`
	Outcomes        StringList `json:"outcomes"`
	OutcomePrices   StringList `json:"outcomePrices"`
	ClobTokenIDs    StringList `json:"clobTokenIds"`
}

// GetMarketBySlug looks up one market by its slug. Returns (nil, nil)
// when no market with that slug exists.
func (c *Client) GetMarketBySlug(slug string) (*Market, error) {
	endpoint := "/markets?slug=" + url.QueryEscape(slug)
	markets, err := httpclient.GetResource[[]*Market](c.httpClient, c.baseURL, endpoint, []int{200})
	if err != nil {
		return nil, fmt.Errorf("couldn't get market by slug %s: %w", slug, err)
	}
	if len(markets) == 0 {
		return nil, nil
	}
	return markets[0], nil
}
