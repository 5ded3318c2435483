// Package money implements the decimal arithmetic behind every amount in a split:
// parsing user-entered text, display formatting and the cent-exact equal split.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.New(5, -1)
)

// ParseAmount converts free-form amount text into a decimal.
// Either ',' or '.' may be used as the decimal separator. Empty or
// unparsable input yields zero; it never fails.
func ParseAmount(text string) decimal.Decimal {
	s := strings.TrimSpace(text)
	if s == "" {
		return decimal.Zero
	}
	s = strings.Replace(s, ",", ".", 1)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Formatter renders amounts for display in a given locale.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter returns a Formatter for the locale tag.
func NewFormatter(tag language.Tag) *Formatter {
	return &Formatter{printer: message.NewPrinter(tag)}
}

// Format groups thousands and prints up to two fraction digits.
// The result is for display only and is never parsed back.
func (f *Formatter) Format(value decimal.Decimal) string {
	v := value.Round(2).InexactFloat64()
	return f.printer.Sprint(number.Decimal(v, number.MinFractionDigits(0), number.MaxFractionDigits(2)))
}

var defaultFormatter = NewFormatter(language.Russian)

// FormatAmount formats value with the default (Russian) locale.
func FormatAmount(value decimal.Decimal) string {
	return defaultFormatter.Format(value)
}

// ToCents rounds value to whole cents, halves rounding up. The result is
// only meaningful while it fits in an int64; SplitEqually does not use it.
func ToCents(value decimal.Decimal) int64 {
	return roundCents(value).IntPart()
}

// FromCents converts an integer number of cents back to a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func roundCents(value decimal.Decimal) decimal.Decimal {
	return value.Mul(hundred).Add(half).Floor()
}

// SplitEqually divides total into count shares that differ by at most one cent.
//
// The total is rounded to cents, each share gets floor(cents/count) and the
// first cents%count shares (in participant order) get one extra cent. The
// shares always sum to the rounded total, whatever its magnitude. Returns nil
// when count <= 0.
func SplitEqually(total decimal.Decimal, count int) []decimal.Decimal {
	if count <= 0 {
		return nil
	}
	n := decimal.NewFromInt(int64(count))
	base, rem := roundCents(total).QuoRem(n, 0)
	if rem.IsNegative() {
		base = base.Sub(decimal.NewFromInt(1))
		rem = rem.Add(n)
	}
	// rem is in [0, count).
	remainder := int(rem.IntPart())

	shares := make([]decimal.Decimal, count)
	for i := range shares {
		portion := base
		if i < remainder {
			portion = portion.Add(decimal.NewFromInt(1))
		}
		shares[i] = portion.Shift(-2)
	}
	return shares
}

// Sum adds up values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
