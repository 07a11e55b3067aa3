package extractor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/gomoji"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
)

// Coerce validates the raw JSON object returned by the service and builds a
// Record from it. Invalid or missing values are replaced by their defaults and
// each replacement of a present value is described in warnings. Coerce never
// fails; logging the warnings is left to the caller.
func Coerce(raw map[string]any) (Record, []string) {
	var warnings []string
	warnf := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	rec := Default()

	switch v := raw["transaction_type"].(type) {
	case string:
		if slices.Contains(ValidTransactionTypes, v) {
			rec.TransactionType = v
		} else {
			warnf("Invalid transaction type in response: %q", v)
		}
	case nil:
		warnf("Invalid transaction type in response: missing")
	default:
		warnf("Invalid transaction type in response: %v", v)
	}

	rec.Name = coerceString(raw, "name", warnf)
	rec.Name = strings.TrimSpace(gomoji.RemoveEmojis(rec.Name))
	rec.Email = strings.TrimSpace(coerceString(raw, "email", warnf))

	switch v := raw["amount"].(type) {
	case nil:
	case json.Number:
		rec.Amount = parseAmount(v.String(), warnf)
	case float64:
		rec.Amount = boundAmount(decimal.NewFromFloat(v), fmt.Sprint(v), warnf)
	case string:
		rec.Amount = parseAmount(strings.TrimSpace(v), warnf)
	default:
		warnf("Invalid amount format: %v", v)
	}

	switch v := raw["currency"].(type) {
	case nil:
	case string:
		if slices.Contains(ValidCurrencies, v) {
			rec.Currency = v
		} else if v != "" {
			warnf("Invalid currency code: %q", v)
		}
	default:
		warnf("Invalid currency code: %v", v)
	}

	switch v := raw["date"].(type) {
	case nil:
	case string:
		if v == "" {
			break
		}
		if _, err := time.Parse(time.DateOnly, v); err != nil {
			warnf("Invalid date format: %q", v)
			break
		}
		rec.Date = v
	default:
		warnf("Invalid date format: %v", v)
	}

	return rec, warnings
}

func coerceString(raw map[string]any, key string, warnf func(string, ...any)) string {
	switch v := raw[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		warnf("Invalid %s in response: %v", key, v)
		return ""
	}
}

// maxAmountDigits bounds both the digit count and the exponent of an amount.
// Anything larger is not a money value and would blow up when rendered.
const maxAmountDigits = 30

func parseAmount(s string, warnf func(string, ...any)) decimal.NullDecimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		warnf("Invalid amount format: %q", s)
		return decimal.NullDecimal{}
	}
	return boundAmount(d, s, warnf)
}

func boundAmount(d decimal.Decimal, raw string, warnf func(string, ...any)) decimal.NullDecimal {
	exp := d.Exponent()
	if exp > maxAmountDigits || exp < -maxAmountDigits || d.NumDigits() > maxAmountDigits {
		if len(raw) > 64 {
			raw = raw[:64] + "..."
		}
		warnf("Invalid amount format: %q", raw)
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
