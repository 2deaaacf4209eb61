package x402

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// AtomicDecimals is the fixed precision of the payment asset.
const AtomicDecimals = 6

// minDisplayUnit is the smallest value shown with two fixed decimals.
var minDisplayUnit = decimal.New(1, -2)

// ToAtomic converts an amount to atomic units of a 6-decimal asset.
//
// Amounts without a decimal point are already atomic and are returned
// unchanged. Decimal amounts are truncated, never rounded, to six fractional
// digits before the point is shifted away. ok is false for empty, negative
// or malformed input; ToAtomic never panics.
func ToAtomic(amount string) (string, bool) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return "", false
	}

	if !strings.Contains(amount, ".") {
		if isDigits(amount) {
			return amount, true
		}
		return "", false
	}

	// Only plain decimal literals reach the decimal library; it would also
	// accept exponents, which can expand into arbitrarily large integers.
	if !isDecimalLiteral(amount) {
		return "", false
	}
	if atomic, ok := decimalToAtomic(amount); ok {
		return atomic, true
	}
	return manualToAtomic(amount)
}

// isDecimalLiteral reports whether s is digits with exactly one point.
func isDecimalLiteral(s string) bool {
	whole, frac, found := strings.Cut(s, ".")
	if !found || (whole == "" && frac == "") {
		return false
	}
	return (whole == "" || isDigits(whole)) && (frac == "" || isDigits(frac))
}

func decimalToAtomic(amount string) (string, bool) {
	d, err := decimal.NewFromString(amount)
	if err != nil || d.Sign() < 0 {
		return "", false
	}
	return d.Truncate(AtomicDecimals).Shift(AtomicDecimals).BigInt().String(), true
}

// manualToAtomic zero-pads the fractional part and concatenates it to the
// whole part. It applies the same truncation as decimalToAtomic.
func manualToAtomic(amount string) (string, bool) {
	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" && frac == "" {
		return "", false
	}
	if (whole != "" && !isDigits(whole)) || (frac != "" && !isDigits(frac)) {
		return "", false
	}

	if len(frac) > AtomicDecimals {
		frac = frac[:AtomicDecimals]
	}
	frac += strings.Repeat("0", AtomicDecimals-len(frac))

	atomic := strings.TrimLeft(whole+frac, "0")
	if atomic == "" {
		return "0", true
	}
	return atomic, true
}

// ToDisplay formats an atomic amount for people. Values of at least 0.01 are
// rounded to two decimals; smaller values keep up to six decimals with
// trailing zeros removed. Empty, zero or malformed input yields "0.00".
func ToDisplay(atomic string) string {
	atomic = strings.TrimSpace(atomic)
	if !isDigits(atomic) {
		return "0.00"
	}

	value, ok := new(big.Int).SetString(atomic, 10)
	if !ok || value.Sign() == 0 {
		return "0.00"
	}

	d := decimal.NewFromBigInt(value, -AtomicDecimals)
	if d.GreaterThanOrEqual(minDisplayUnit) {
		return d.StringFixed(2)
	}
	return strings.TrimRight(strings.TrimRight(d.StringFixed(AtomicDecimals), "0"), ".")
}

// AtomicToDecimal converts a raw integer amount into a decimal using the
// token's reported precision. For example, 1500000 with 6 decimals becomes 1.5.
func AtomicToDecimal(value *big.Int, decimals uint8) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -int32(decimals))
}

// AmountToBigInt converts an amount string to *big.Int in atomic units.
func AmountToBigInt(amount string) (*big.Int, error) {
	atomic, ok := ToAtomic(amount)
	if !ok {
		return nil, ErrInvalidAmount
	}
	value, ok := new(big.Int).SetString(atomic, 10)
	if !ok {
		return nil, ErrInvalidAmount
	}
	return value, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
