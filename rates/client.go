// Package rates fetches currency exchange rates and converts amounts to USD.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/helpcomp/txn-normalizer/prom"
	"github.com/shopspring/decimal"
)

const resultSuccess = "success"

// LatestResponse is the bulk payload of the rate service: how much of each
// currency one unit of the base currency buys.
type LatestResponse struct {
	Result   string                     `json:"result"`
	BaseCode string                     `json:"base_code"`
	Rates    map[string]decimal.Decimal `json:"rates"`
}

// Fetcher returns all rates relative to USD in one call.
type Fetcher interface {
	Latest(ctx context.Context) (map[string]decimal.Decimal, error)
}

type Client struct {
	client *http.Client
	url    string
	stats  *prom.Stats
}

// New returns a Client for the bulk endpoint at url. A zero timeout uses 10s.
func New(url string, timeout time.Duration, stats *prom.Stats) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		client: &http.Client{Timeout: timeout},
		url:    url,
		stats:  stats,
	}
}

// Latest fetches every rate relative to USD. Transport errors, non-200 statuses
// and a non-success result marker are all errors.
func (c *Client) Latest(ctx context.Context) (map[string]decimal.Decimal, error) {
	var latest LatestResponse

	c.stats.RatesCall()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		c.stats.RatesError()
		return nil, err
	}

	res, err := c.client.Do(req)
	if err != nil {
		c.stats.RatesError()
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		c.stats.RatesError()
		return nil, fmt.Errorf("%s - %v", res.Status, res.StatusCode)
	}

	if err = json.NewDecoder(res.Body).Decode(&latest); err != nil {
		c.stats.RatesError()
		return nil, fmt.Errorf("decoding rates: %w", err)
	}

	if latest.Result != resultSuccess {
		c.stats.RatesError()
		return nil, fmt.Errorf("API returned unsuccessful result: %q", latest.Result)
	}

	rates := make(map[string]decimal.Decimal, len(latest.Rates))
	for code, rate := range latest.Rates {
		rates[strings.ToUpper(code)] = rate
	}
	return rates, nil
}
