package main

import (
	"context"
	"time"

	"github.com/helpcomp/txn-normalizer/extractor"
	"github.com/shopspring/decimal"
)

const AppName = "txn_normalizer"
const AppDesc = "Batch tool that turns free-text payment descriptions into normalized transaction rows with amounts converted to USD."

// RecordExtractor turns one line of text into an extracted record. The error
// is reserved for failures that should drop the line.
type RecordExtractor interface {
	Extract(ctx context.Context, text string) (extractor.Record, error)
}

// USDConverter converts amounts to USD and exposes the raw rate lookup used by
// the fallback path.
type USDConverter interface {
	ToUSD(ctx context.Context, amount decimal.NullDecimal, currency string) (decimal.NullDecimal, bool)
	Rate(ctx context.Context, currency string) (decimal.Decimal, bool)
}

// Summary describes a finished run.
type Summary struct {
	Total     int
	Processed int
	Failed    int
	Elapsed   time.Duration
	Cancelled bool
}

// Average is the elapsed time per processed line, or zero if none were.
func (s Summary) Average() time.Duration {
	if s.Processed == 0 {
		return 0
	}
	return s.Elapsed / time.Duration(s.Processed)
}
