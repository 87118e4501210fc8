// Package units converts between human decimal strings and a token's
// smallest-unit integer representation.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is assumed when a token does not answer decimals().
const DefaultDecimals uint8 = 18

// ErrInvalidAmount is returned for strings that are not plain non-negative
// decimal numbers.
var ErrInvalidAmount = errors.New("invalid amount")

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// MaxUint256 returns 2^256-1, the value used for unlimited approvals.
func MaxUint256() *big.Int {
	return new(big.Int).Set(maxUint256)
}

// ParseUnits normalizes a decimal string such as "1.5" into smallest units for
// a token with the given decimals. The fractional part is right-padded with
// zeros and excess digits are dropped without rounding.
//
//	ParseUnits("1.5", 6)      == 1500000
//	ParseUnits("0.1234567", 6) == 123456
//	ParseUnits("100", 6)       == 100000000
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot && strings.Contains(frac, ".") {
		return nil, fmt.Errorf("%w: %q has more than one decimal point", ErrInvalidAmount, amount)
	}
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	d := int(decimals)
	if len(frac) < d {
		frac += strings.Repeat("0", d-len(frac))
	}
	frac = frac[:d]

	digits := whole + frac
	if digits == "" {
		digits = "0"
	}
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return n, nil
}

// FormatUnits renders a smallest-unit amount as a human decimal string,
// trimming trailing zeros ("1500000", 6 → "1.5").
func FormatUnits(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
