// Package sink writes normalized transactions to the CSV output and the
// optional remote datastores.
package sink

import (
	"context"

	"github.com/shopspring/decimal"
)

// Header is the fixed column order of the CSV output.
var Header = []string{
	"transaction_type",
	"name",
	"email",
	"amount_usd",
	"original_amount",
	"original_currency",
	"date",
}

// Transaction is an extracted record plus its USD amount.
type Transaction struct {
	TransactionType  string
	Name             string
	Email            string
	AmountUSD        decimal.NullDecimal
	OriginalAmount   decimal.NullDecimal
	OriginalCurrency string
	Date             string
	// Approximate is set when AmountUSD is the unconverted original amount of
	// a non-USD currency.
	Approximate bool
}

// Sink receives one transaction per successfully processed line.
type Sink interface {
	Write(ctx context.Context, t Transaction) error
	Close() error
}

// Row renders t in Header order. Null amounts become empty cells.
func (t Transaction) Row() []string {
	return []string{
		t.TransactionType,
		t.Name,
		t.Email,
		formatUSD(t.AmountUSD),
		formatAmount(t.OriginalAmount),
		t.OriginalCurrency,
		t.Date,
	}
}

func formatUSD(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

func formatAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// nullIfEmpty maps "" to nil so datastores store NULL instead of an empty string.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
