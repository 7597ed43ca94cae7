// Package units converts native-coin amounts between decimal strings and
// wei. Every amount in riskmesh is a *big.Int in wei (18 decimals).
package units

import (
	"math/big"
	"strings"
)

// Decimals of the native coin.
const Decimals = 18

var weiPerCoin = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// ParseCoin converts "1.5" to 1500000000000000000 wei. It rejects signs,
// exponents, empty input and more than 18 fractional digits.
func ParseCoin(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "+-eE") {
		return nil, false
	}
	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot && strings.Contains(frac, ".") {
		return nil, false
	}
	if len(frac) > Decimals || (whole == "" && frac == "") {
		return nil, false
	}
	if whole == "" {
		whole = "0"
	}
	frac += strings.Repeat("0", Decimals-len(frac))

	out, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, false
	}
	return out, true
}

// ParseWei parses a base-10 integer wei amount. Negative values are rejected.
func ParseWei(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

// FormatCoin renders wei as a decimal coin amount without trailing zeros:
// 1500000000000000000 -> "1.5", 1 -> "0.000000000000000001".
func FormatCoin(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	q, r := new(big.Int).QuoRem(new(big.Int).Abs(wei), weiPerCoin, new(big.Int))
	out := q.String()
	if r.Sign() != 0 {
		frac := r.String()
		frac = strings.Repeat("0", Decimals-len(frac)) + frac
		out += "." + strings.TrimRight(frac, "0")
	}
	if wei.Sign() < 0 {
		out = "-" + out
	}
	return out
}

// Positive reports whether v is non-nil and greater than zero.
func Positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
