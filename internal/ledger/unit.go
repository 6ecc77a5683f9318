package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Unit describes how minor units are shown to people. Decimals is 2 for a
// cent-denominated unit, 0 when the minor unit is the display unit.
type Unit struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals int32  `json:"decimals" yaml:"decimals"`
}

// DefaultUnit counts in whole minor units.
var DefaultUnit = Unit{Symbol: "UNIT", Decimals: 0}

// Format converts minor units to a display string. E.g. 1050 with 2 decimals -> "10.50".
func (u Unit) Format(a Amount) string {
	d := decimal.NewFromBigInt(a.Big(), -u.Decimals)
	return d.StringFixed(u.Decimals)
}

// FormatWithSymbol is Format followed by the unit symbol.
func (u Unit) FormatWithSymbol(a Amount) string {
	if u.Symbol == "" {
		return u.Format(a)
	}
	return u.Format(a) + " " + u.Symbol
}

// Parse converts a display string like "10.50" to minor units. More
// fractional digits than the unit allows is an error, not a rounding.
func (u Unit) Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	minor := d.Shift(u.Decimals)
	if !minor.Equal(minor.Truncate(0)) {
		return Amount{}, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, u.Decimals)
	}
	return AmountFromBig(minor.BigInt())
}
