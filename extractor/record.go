// Package extractor turns one free-text transaction description into a
// validated Record using an LLM extraction service.
package extractor

import (
	"github.com/shopspring/decimal"
)

const (
	TypePayment      = "Payment"
	TypeRefund       = "Refund"
	TypeFailedCharge = "Failed Charge"
	TypeCharge       = "Charge"
	TypeUnknown      = "Unknown"
)

// ValidTransactionTypes are the values the service may return for
// transaction_type. Anything else becomes TypeUnknown.
var ValidTransactionTypes = []string{TypePayment, TypeRefund, TypeFailedCharge, TypeCharge}

// ValidCurrencies are the accepted currency codes. Anything else becomes "".
var ValidCurrencies = []string{"USD", "EUR", "GBP", "RUB", "BRL"}

// Record holds the six extracted fields. Every field always carries a value of
// its own type: strings default to "", Amount to null and TransactionType to
// TypeUnknown.
type Record struct {
	TransactionType string              `json:"transaction_type"`
	Name            string              `json:"name"`
	Email           string              `json:"email"`
	Amount          decimal.NullDecimal `json:"amount"`
	Currency        string              `json:"currency"`
	Date            string              `json:"date"`
}

// Default returns the fully defaulted record used whenever extraction fails.
func Default() Record {
	return Record{TransactionType: TypeUnknown}
}
