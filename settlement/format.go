package settlement

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// NUMBER FORMATTING
// =============================================================================

// Plain renders d without a decimal point when it is integral and with its
// full precision otherwise: 5000 -> "5000", 12.50 -> "12.5".
func Plain(d decimal.Decimal) string {
	return d.String()
}

// Grouped renders d like Plain with thousands separators: 1234567.5 -> "1,234,567.5".
func Grouped(d decimal.Decimal) string {
	s := d.String()
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	b.WriteString(sign)
	lead := len(intPart) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(intPart[:lead])
	for i := lead; i < len(intPart); i += 3 {
		b.WriteByte(',')
		b.WriteString(intPart[i : i+3])
	}
	b.WriteString(frac)
	return b.String()
}

// Won renders an amount for display: 5000 -> "5,000원".
func Won(d decimal.Decimal) string {
	return Grouped(d) + "원"
}
