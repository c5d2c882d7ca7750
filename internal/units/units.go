// Package units converts between decimal token amounts and integer base
// units (wei for 18-decimal assets) without floating point.
package units

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// DefaultDecimals is the precision of SEI, ETH and most ERC-20 tokens.
const DefaultDecimals = 18

var decimalPattern = regexp.MustCompile(`^[0-9]*(\.[0-9]*)?$`)

// FromBaseUnits renders an integer amount as a decimal string. Trailing
// fractional zeros are dropped, so 1500000000000000000 with 18 decimals is "1.5".
func FromBaseUnits(raw string, decimals int) (string, error) {
	if decimals < 0 {
		return "", fmt.Errorf("decimals must be >= 0, got %d", decimals)
	}
	raw = strings.TrimSpace(raw)
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return "", fmt.Errorf("invalid integer amount %q", raw)
	}
	negative := n.Sign() < 0
	if negative {
		n.Neg(n)
	}

	s := n.String()
	if decimals > 0 {
		if len(s) <= decimals {
			s = strings.Repeat("0", decimals-len(s)+1) + s
		}
		whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
		s = whole
		if frac != "" {
			s = whole + "." + frac
		}
	}
	if negative && s != "0" {
		s = "-" + s
	}
	return s, nil
}

// ToBaseUnits converts a decimal string into integer base units. Fractional
// digits beyond the token precision are truncated.
func ToBaseUnits(amount string, decimals int) (string, error) {
	n, err := ToBaseUnitsBig(amount, decimals)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

// ToBaseUnitsBig is ToBaseUnits returning a *big.Int.
func ToBaseUnitsBig(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("decimals must be >= 0, got %d", decimals)
	}
	amount = strings.TrimSpace(amount)
	if amount == "" || amount == "." || !decimalPattern.MatchString(amount) {
		return nil, fmt.Errorf("invalid decimal amount %q", amount)
	}

	whole, frac, _ := strings.Cut(amount, ".")
	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", decimals-len(frac))

	combined := strings.TrimLeft(whole+frac, "0")
	if combined == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", amount)
	}
	return n, nil
}

// SumDecimals adds decimal strings exactly and renders the total with the
// smallest precision that represents it. Empty entries count as zero.
func SumDecimals(values ...string) (string, error) {
	precision := 0
	for _, v := range values {
		if _, frac, ok := strings.Cut(strings.TrimSpace(v), "."); ok && len(frac) > precision {
			precision = len(frac)
		}
	}

	total := new(big.Int)
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		n, err := ToBaseUnitsBig(v, precision)
		if err != nil {
			return "", err
		}
		total.Add(total, n)
	}
	return FromBaseUnits(total.String(), precision)
}
