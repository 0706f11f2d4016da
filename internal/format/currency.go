package format

import (
	"encoding/json"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	LocaleIndia = "en-IN"
	LocaleUS    = "en-US"

	DefaultSymbol = "₹"
)

// Formatter renders whole-unit currency strings for a locale.
type Formatter struct {
	symbol string
	locale string
}

func NewFormatter(locale, symbol string) Formatter {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		locale = LocaleIndia
	}
	if symbol == "" {
		symbol = DefaultSymbol
	}
	return Formatter{symbol: symbol, locale: locale}
}

func (f Formatter) Symbol() string { return f.symbol }
func (f Formatter) Locale() string { return f.locale }

// Zero is the rendering of a missing or invalid amount.
func (f Formatter) Zero() string {
	return f.symbol + "0"
}

// Format accepts numbers, decimals and numeric strings. Invalid input yields
// Zero; a string already carrying the currency symbol is returned untouched.
func (f Formatter) Format(amount any) string {
	if f.symbol == "" {
		f = NewFormatter(f.locale, "")
	}
	if s, ok := amount.(string); ok && strings.Contains(s, f.symbol) {
		return s
	}
	d, ok := toDecimal(amount)
	if !ok {
		return f.Zero()
	}
	d = d.Round(0)
	if d.IsZero() {
		return f.Zero()
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	return sign + f.symbol + f.group(d.String())
}

func (f Formatter) group(digits string) string {
	if f.locale == LocaleIndia || strings.HasSuffix(f.locale, "-IN") {
		return groupIndian(digits)
	}
	return groupThousands(digits)
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// groupIndian keeps the last three digits together, then groups by two.
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	if head != "" {
		parts = append([]string{head}, parts...)
	}
	return strings.Join(parts, ",") + "," + tail
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return n, true
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, false
		}
		return *n, true
	case decimal.NullDecimal:
		return n.Decimal, n.Valid
	case float64:
		return fromFloat(n)
	case float32:
		return fromFloat(float64(n))
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return fromUint(uint64(n)), true
	case uint32:
		return fromUint(uint64(n)), true
	case uint64:
		return fromUint(n), true
	case json.Number:
		return fromString(n.String())
	case string:
		return fromString(n)
	default:
		return decimal.Zero, false
	}
}

func fromUint(u uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(u), 0)
}

func fromFloat(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

func fromString(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

var defaultFormatter = NewFormatter(LocaleIndia, DefaultSymbol)

// Currency formats with the default en-IN rupee formatter.
func Currency(amount any) string {
	return defaultFormatter.Format(amount)
}
