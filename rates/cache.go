package rates

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const USD = "USD"

var one = decimal.NewFromInt(1)

// Cache maps a currency code to the factor converting it to USD. It is filled
// in bulk from a single Fetcher call on the first miss and never refreshed
// afterwards. Lookups that still miss after a fill report unavailable.
type Cache struct {
	fetcher    Fetcher
	maxRetries int
	retryBase  time.Duration
	sleep      func(context.Context, time.Duration) error

	mu    sync.Mutex // Protects toUSD and loaded
	toUSD map[string]decimal.Decimal
	// loaded is set after a successful bulk fetch; later misses are unknown
	// currencies and do not trigger another fetch.
	loaded bool
}

// NewCache returns an empty cache. A failed bulk fetch is retried maxRetries
// times, waiting 2^attempt * retryBase between attempts.
func NewCache(fetcher Fetcher, maxRetries int, retryBase time.Duration) *Cache {
	return &Cache{
		fetcher:    fetcher,
		maxRetries: maxRetries,
		retryBase:  retryBase,
		sleep:      sleepContext,
		toUSD:      make(map[string]decimal.Decimal),
	}
}

// Rate returns the factor converting one unit of code into USD. USD is always
// 1 without a lookup. The second value is false when the rate is unavailable,
// which callers must handle as an expected outcome.
func (c *Cache) Rate(ctx context.Context, code string) (decimal.Decimal, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == USD {
		return one, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if rate, ok := c.toUSD[code]; ok {
		return rate, true
	}
	if c.loaded {
		log.Warn().Str("currency", code).Msg("Currency not found in exchange rates")
		return decimal.Decimal{}, false
	}

	if err := c.refreshWithRetry(ctx); err != nil {
		log.Error().Err(err).Str("currency", code).Msgf("Error fetching exchange rate after %d attempts", c.maxRetries+1)
		return decimal.Decimal{}, false
	}

	rate, ok := c.toUSD[code]
	if !ok {
		log.Warn().Str("currency", code).Msg("Currency not found in exchange rates")
	}
	return rate, ok
}

// Refresh performs one bulk fetch, with retries, and replaces the cached rates.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshWithRetry(ctx)
}

// Len reports how many currencies are cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.toUSD)
}

// refreshWithRetry is the bounded retry loop around refresh. The caller holds mu.
func (c *Cache) refreshWithRetry(ctx context.Context) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = c.refresh(ctx); err == nil {
			return nil
		}
		if attempt >= c.maxRetries {
			return err
		}
		wait := Backoff(attempt, c.retryBase)
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", c.maxRetries).
			Dur("wait", wait).
			Msgf("💱 Error fetching exchange rates, retrying in %s", wait)
		if serr := c.sleep(ctx, wait); serr != nil {
			return fmt.Errorf("%w (gave up waiting: %v)", err, serr)
		}
	}
}

// refresh inverts every positive base rate into a to-USD factor. Zero or
// missing rates are skipped so they can never cause a division by zero.
func (c *Cache) refresh(ctx context.Context) error {
	latest, err := c.fetcher.Latest(ctx)
	if err != nil {
		return err
	}

	toUSD := make(map[string]decimal.Decimal, len(latest))
	for code, rate := range latest {
		if !rate.IsPositive() {
			continue
		}
		toUSD[strings.ToUpper(code)] = one.Div(rate)
	}
	toUSD[USD] = one

	log.Debug().Int("currencies", len(toUSD)).Msg("Cache: updating exchange rates")
	c.toUSD = toUSD
	c.loaded = true
	return nil
}

// Backoff is the wait before retry attempt+1: 2^attempt * base.
func Backoff(attempt int, base time.Duration) time.Duration {
	return time.Duration(1<<uint(attempt)) * base
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
