package rates

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// RateSource resolves a currency code to its to-USD factor.
type RateSource interface {
	Rate(ctx context.Context, code string) (decimal.Decimal, bool)
}

type Converter struct {
	rates RateSource
}

func NewConverter(rates RateSource) *Converter {
	return &Converter{rates: rates}
}

// ToUSD converts amount from currency into USD rounded to cents.
//
// A null amount passes through as null. An empty currency is treated as USD.
// When no rate is available ok is false and the result must not be used: the
// amount is deliberately not assumed to be USD here.
func (c *Converter) ToUSD(ctx context.Context, amount decimal.NullDecimal, currency string) (usd decimal.NullDecimal, ok bool) {
	if !amount.Valid {
		return decimal.NullDecimal{}, true
	}

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == USD {
		return Round(amount.Decimal), true
	}

	rate, ok := c.rates.Rate(ctx, currency)
	if !ok {
		log.Warn().
			Str("amount", amount.Decimal.String()).
			Str("currency", currency).
			Msg("Could not convert amount to USD. Exchange rate unavailable.")
		return decimal.NullDecimal{}, false
	}
	return Round(amount.Decimal.Mul(rate)), true
}

// Rate exposes the underlying lookup for callers that retry a failed conversion.
func (c *Converter) Rate(ctx context.Context, currency string) (decimal.Decimal, bool) {
	return c.rates.Rate(ctx, currency)
}

// Round rounds d half away from zero to two decimal places.
func Round(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d.Round(2), Valid: true}
}
