package extractor

import (
	"strings"
)

const systemPrompt = `You extract structured data from short payment transaction descriptions.
Reply with a single JSON object and nothing else, keeping the exact keys, data types and formats requested.
Convert currency symbols to ISO codes: $ -> USD, € -> EUR, £ -> GBP, ₽ -> RUB, R$ -> BRL.
Amounts are plain numbers without currency symbols or thousands separators.
Dates are always written as YYYY-MM-DD.`

// userPrompt builds the per-line instructions around the raw text.
func userPrompt(text string) string {
	var prompt strings.Builder
	prompt.WriteString("Extract these fields from the transaction text below and return them as JSON:\n")
	prompt.WriteString(`- transaction_type: exactly one of "Payment", "Refund", "Failed Charge", "Charge"` + "\n")
	prompt.WriteString("- name: the person's full name (string, empty if not found)\n")
	prompt.WriteString("- email: the complete email address (string, empty if not found)\n")
	prompt.WriteString("- amount: the numeric amount without currency symbol (number, null if not found)\n")
	prompt.WriteString(`- currency: one of "USD", "EUR", "GBP", "RUB", "BRL" (string, empty if not found)` + "\n")
	prompt.WriteString("- date: the date as YYYY-MM-DD (string, empty if not found)\n\n")
	prompt.WriteString("Transaction text: ")
	prompt.WriteString(text)
	prompt.WriteString("\n\nReturn ONLY a JSON object with exactly these keys. Example:\n")
	prompt.WriteString(`{"transaction_type": "Payment", "name": "John Smith", "email": "john@example.com", "amount": 42.50, "currency": "USD", "date": "2024-11-02"}`)
	return prompt.String()
}

// cleanModelJSON strips Markdown code fences some models wrap around JSON.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
