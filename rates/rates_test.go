package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/helpcomp/txn-normalizer/prom"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	calls   int
	errs    []error // returned in order before succeeding
	payload map[string]decimal.Decimal
}

func (f *fakeFetcher) Latest(ctx context.Context) (map[string]decimal.Decimal, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.payload, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nullDec(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

func newTestCache(f Fetcher) (*Cache, *[]time.Duration) {
	c := NewCache(f, 3, 2*time.Second)
	var waits []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return c, &waits
}

func TestCache_USDNeverFetches(t *testing.T) {
	f := &fakeFetcher{}
	c, _ := newTestCache(f)
	for i := 0; i < 5; i++ {
		rate, ok := c.Rate(context.Background(), "USD")
		require.True(t, ok)
		assert.True(t, rate.Equal(decimal.NewFromInt(1)))
	}
	assert.Equal(t, 0, f.calls)
}

func TestCache_BulkFetchPopulatesEverything(t *testing.T) {
	f := &fakeFetcher{payload: map[string]decimal.Decimal{
		"USD": dec("1"),
		"EUR": dec("0.8"),
		"GBP": dec("0.5"),
		"XXX": dec("0"),
	}}
	c, _ := newTestCache(f)

	eur, ok := c.Rate(context.Background(), "eur ")
	require.True(t, ok)
	assert.Equal(t, "1.25", eur.String())

	gbp, ok := c.Rate(context.Background(), "GBP")
	require.True(t, ok)
	assert.Equal(t, "2", gbp.String())
	assert.Equal(t, 1, f.calls, "one bulk fetch serves every currency")
}

func TestCache_ZeroRateIsNeverCached(t *testing.T) {
	f := &fakeFetcher{payload: map[string]decimal.Decimal{
		"EUR": dec("0.8"),
		"XXX": dec("0"),
	}}
	c, _ := newTestCache(f)

	_, ok := c.Rate(context.Background(), "EUR")
	require.True(t, ok)

	_, ok = c.Rate(context.Background(), "XXX")
	assert.False(t, ok)
	_, ok = c.Rate(context.Background(), "ZZZ")
	assert.False(t, ok)
	assert.Equal(t, 1, f.calls, "unknown currencies do not refetch")
	assert.Equal(t, 2, c.Len(), "EUR plus USD")
}

func TestCache_RetriesWithBackoff(t *testing.T) {
	boom := errors.New("connection refused")
	f := &fakeFetcher{
		errs:    []error{boom, boom},
		payload: map[string]decimal.Decimal{"BRL": dec("5")},
	}
	c, waits := newTestCache(f)

	rate, ok := c.Rate(context.Background(), "BRL")
	require.True(t, ok)
	assert.Equal(t, "0.2", rate.String())
	assert.Equal(t, 3, f.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *waits)
}

func TestCache_ExhaustedRetriesAreUnavailable(t *testing.T) {
	boom := errors.New("503")
	f := &fakeFetcher{errs: []error{boom, boom, boom, boom}}
	c, waits := newTestCache(f)

	_, ok := c.Rate(context.Background(), "EUR")
	assert.False(t, ok)
	assert.Equal(t, 4, f.calls, "initial attempt plus three retries")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, *waits)
}

func TestCache_CancelledWhileWaiting(t *testing.T) {
	f := &fakeFetcher{errs: []error{errors.New("timeout")}}
	c := NewCache(f, 3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := c.Rate(ctx, "EUR")
	assert.False(t, ok)
	assert.Equal(t, 1, f.calls)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 20*time.Second, Backoff(0, 20*time.Second))
	assert.Equal(t, 40*time.Second, Backoff(1, 20*time.Second))
	assert.Equal(t, 80*time.Second, Backoff(2, 20*time.Second))
}

type staticRates map[string]decimal.Decimal

func (s staticRates) Rate(_ context.Context, code string) (decimal.Decimal, bool) {
	r, ok := s[code]
	return r, ok
}

func TestConverter_ToUSD(t *testing.T) {
	conv := NewConverter(staticRates{"EUR": dec("1.1"), "GBP": dec("1.25")})
	ctx := context.Background()

	tests := []struct {
		name     string
		amount   decimal.NullDecimal
		currency string
		want     string // "" means null
		ok       bool
	}{
		{"null amount", decimal.NullDecimal{}, "EUR", "", true},
		{"null amount unknown currency", decimal.NullDecimal{}, "XYZ", "", true},
		{"usd rounds", nullDec("42.505"), "USD", "42.51", true},
		{"empty currency is usd", nullDec("10.129"), "", "10.13", true},
		{"blank currency is usd", nullDec("3"), "   ", "3", true},
		{"eur", nullDec("100"), "EUR", "110", true},
		{"lowercase gbp", nullDec("9.99"), "gbp", "12.49", true},
		{"unavailable", nullDec("5"), "RUB", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := conv.ToUSD(ctx, tt.amount, tt.currency)
			assert.Equal(t, tt.ok, ok)
			if tt.want == "" {
				assert.False(t, got.Valid)
				return
			}
			require.True(t, got.Valid)
			assert.Equal(t, tt.want, got.Decimal.String())
		})
	}
}

func TestConverter_USDIsRoundedForAnyAmount(t *testing.T) {
	conv := NewConverter(staticRates{})
	for _, s := range []string{"0", "-12.345", "0.004", "1e6", "123456789.987654321"} {
		a := dec(s)
		got, ok := conv.ToUSD(context.Background(), decimal.NullDecimal{Decimal: a, Valid: true}, "USD")
		require.True(t, ok)
		assert.True(t, got.Decimal.Equal(a.Round(2)), s)
	}
}

func TestClient_Latest(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"success","base_code":"USD","rates":{"USD":1,"eur":0.92,"GBP":0.79,"BAD":0,"NUL":null}}`))
	}))
	defer srv.Close()

	stats := prom.NewStats()
	rates, err := New(srv.URL, time.Second, stats).Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.92", rates["EUR"].String())
	assert.Equal(t, "0.79", rates["GBP"].String())
	assert.True(t, rates["BAD"].IsZero())
	assert.True(t, rates["NUL"].IsZero())
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, 1.0, stats.Snapshot().APICalls.Rates)
	assert.Equal(t, 0.0, stats.Snapshot().APIErrors.Rates)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"http status", http.StatusServiceUnavailable, `{}`, "503"},
		{"unsuccessful marker", http.StatusOK, `{"result":"error","error-type":"quota-reached"}`, "unsuccessful result"},
		{"garbage", http.StatusOK, `<html>`, "decoding rates"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			stats := prom.NewStats()
			_, err := New(srv.URL, time.Second, stats).Latest(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, 1.0, stats.Snapshot().APIErrors.Rates)
		})
	}
}

func TestCacheWithClient_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"success","rates":{"USD":1,"EUR":0.5}}`))
	}))
	defer srv.Close()

	cache := NewCache(New(srv.URL, time.Second, nil), 3, time.Millisecond)
	got, ok := NewConverter(cache).ToUSD(context.Background(), nullDec("100"), "EUR")
	require.True(t, ok)
	assert.Equal(t, "200", got.Decimal.String())
}
