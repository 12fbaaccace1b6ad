package history

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Activity verbs shown in the history table.
const (
	VerbOpened   = "Opened CDP"
	VerbLocked   = "Locked"
	VerbWithdrew = "Withdrew"
	VerbDrew     = "Generated"
	VerbPaidBack = "Paid back"
	VerbSent     = "Sent"
)

// Label returns the history line for moving amount of asset, for example
// "Paid back 1,000.00 DAI".
func Label(verb string, amount decimal.Decimal, asset string) string {
	normalized := strings.ToUpper(strings.TrimSpace(asset))
	if normalized == "" {
		normalized = "DAI"
	}
	return verb + " " + FormatAmount(amount) + " " + normalized
}

// FormatAmount renders amount with two decimals and thousands separators.
func FormatAmount(amount decimal.Decimal) string {
	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	var sb strings.Builder
	if amount.IsNegative() {
		sb.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('.')
	sb.WriteString(frac)
	return sb.String()
}
