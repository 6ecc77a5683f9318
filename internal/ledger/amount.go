package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Amount is a non-negative quantity of the ledger's unit in minor units.
// The zero value is a zero amount. Amounts never exceed MaxAmount.
type Amount struct {
	v uint256.Int
}

// MaxAmount is 2^128-1, the widest value a deposit can carry.
var MaxAmount = Amount{v: uint256.Int{^uint64(0), ^uint64(0), 0, 0}}

func NewAmount(n uint64) Amount {
	return Amount{v: *uint256.NewInt(n)}
}

// ParseAmount parses a base-10 integer string of minor units.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return Amount{}, fmt.Errorf("%w: %q is not a non-negative integer", ErrInvalidAmount, s)
		}
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %s", ErrAmountTooLarge, s)
	}
	a := Amount{v: *v}
	if a.v.BitLen() > 128 {
		return Amount{}, fmt.Errorf("%w: %s", ErrAmountTooLarge, s)
	}
	return a, nil
}

// MustParseAmount is ParseAmount for constants; it panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromBig converts b, rejecting negatives and values over MaxAmount.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	v, overflow := uint256.FromBig(b)
	if overflow || v.BitLen() > 128 {
		return Amount{}, fmt.Errorf("%w: %s", ErrAmountTooLarge, b.String())
	}
	return Amount{v: *v}, nil
}

// Add returns a+b and whether the sum stayed within MaxAmount.
func (a Amount) Add(b Amount) (Amount, bool) {
	var sum uint256.Int
	_, overflow := sum.AddOverflow(&a.v, &b.v)
	if overflow || sum.BitLen() > 128 {
		return Amount{}, false
	}
	return Amount{v: sum}, true
}

// Sub returns a-b. It panics if b > a.
func (a Amount) Sub(b Amount) Amount {
	if a.v.Lt(&b.v) {
		panic(fmt.Sprintf("ledger: amount underflow %s - %s", a, b))
	}
	var diff uint256.Int
	diff.Sub(&a.v, &b.v)
	return Amount{v: diff}
}

func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// Big returns a copy of a as a big.Int.
func (a Amount) Big() *big.Int {
	return a.v.ToBig()
}

func (a Amount) String() string {
	return a.v.Dec()
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(b []byte) error {
	parsed, err := ParseAmount(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
