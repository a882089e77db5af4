package core

// convert.go turns CSV cell text into typed trip values.
//
// Numeric cells follow parse-or-zero semantics: text that does not parse
// becomes the zero value and the column is reported as defaulted. The
// accepted grammar is the invariant-culture one: floats and currency allow
// the generic currency sign ¤, thousands separators, accounting
// parentheses and exponents. Integers take an optional sign and digits only.
// Currency values must fit a 96-bit decimal with at most 28 fraction digits.

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// Currency values share the range of a 96-bit scaled decimal.
const (
	decimalMaxScale    = 28
	maxDecimalExponent = 64
	currencySign       = "\u00a4"
)

var decimalMax, _ = new(big.Int).SetString("79228162514264337593543950335", 10)

var errNotNumeric = errors.New("not a number")

// Parsed is a value read from a cell, tagged with whether it fell back to
// the zero value.
type Parsed[T any] struct {
	Value     T
	Defaulted bool
}

// ParseOrDefault applies parse to raw and yields the zero value of T when
// parsing fails.
func ParseOrDefault[T any](raw string, parse func(string) (T, error)) Parsed[T] {
	v, err := parse(raw)
	if err != nil {
		var zero T
		return Parsed[T]{Value: zero, Defaulted: true}
	}
	return Parsed[T]{Value: v}
}

// ParseInt accepts an optional sign followed by digits, within int32 range.
func ParseInt(s string) (int, error) {
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, err
	}
	return int(i), nil
}

// ParseFloat accepts the lenient number grammar and returns a finite float64.
func ParseFloat(s string) (float64, error) {
	clean, ok := cleanNumber(s)
	if !ok {
		return 0, fmt.Errorf("%q: %w", s, errNotNumeric)
	}
	return strconv.ParseFloat(clean, 64)
}

// ParseDecimal accepts the lenient number grammar and returns an exact
// decimal value. Fraction digits beyond decimalMaxScale are rounded half
// away from zero; magnitudes above decimalMax are an error.
func ParseDecimal(s string) (pgtype.Numeric, error) {
	clean, ok := cleanNumber(s)
	if !ok {
		return pgtype.Numeric{}, fmt.Errorf("%q: %w", s, errNotNumeric)
	}

	mantissa, exp := clean, 0
	if i := strings.IndexAny(clean, "eE"); i >= 0 {
		e, err := strconv.Atoi(clean[i+1:])
		if err != nil || e > maxDecimalExponent || e < -maxDecimalExponent {
			return pgtype.Numeric{}, fmt.Errorf("%q: exponent out of range", s)
		}
		mantissa, exp = clean[:i], e
	}

	neg := false
	switch {
	case strings.HasPrefix(mantissa, "-"):
		neg = true
		mantissa = mantissa[1:]
	case strings.HasPrefix(mantissa, "+"):
		mantissa = mantissa[1:]
	}

	intPart, fracPart, _ := strings.Cut(mantissa, ".")
	digits := intPart + fracPart
	exp -= len(fracPart)

	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return pgtype.Numeric{}, fmt.Errorf("%q: %w", s, errNotNumeric)
	}

	if exp < -decimalMaxScale {
		shift := -decimalMaxScale - exp
		if shift > len(digits) {
			return ZeroDecimal(), nil
		}
		n = roundShift(n, shift)
		exp = -decimalMaxScale
	}
	if n.Sign() != 0 && (exp > len(decimalMax.String()) || exceedsDecimal(n, exp)) {
		return pgtype.Numeric{}, fmt.Errorf("%q: value out of range", s)
	}

	if neg {
		n.Neg(n)
	}
	return pgtype.Numeric{Int: n, Exp: int32(exp), Valid: true}, nil
}

// roundShift divides the non-negative n by 10^shift, rounding half away
// from zero.
func roundShift(n *big.Int, shift int) *big.Int {
	div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(shift)), nil)
	q, r := new(big.Int).QuoRem(n, div, new(big.Int))
	if r.Lsh(r, 1).Cmp(div) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// exceedsDecimal reports whether n*10^exp is larger than decimalMax.
func exceedsDecimal(n *big.Int, exp int) bool {
	lhs, rhs := new(big.Int).Set(n), new(big.Int).Set(decimalMax)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(max(exp, -exp))), nil)
	if exp >= 0 {
		lhs.Mul(lhs, scale)
	} else {
		rhs.Mul(rhs, scale)
	}
	return lhs.Cmp(rhs) > 0
}

// ParseMoney is ParseOrDefault for currency: unparseable or negative text
// becomes an exact zero.
func ParseMoney(raw string) Parsed[pgtype.Numeric] {
	p := ParseOrDefault(raw, ParseDecimal)
	if p.Defaulted || p.Value.Int.Sign() < 0 {
		return Parsed[pgtype.Numeric]{Value: ZeroDecimal(), Defaulted: true}
	}
	return p
}

// ZeroDecimal returns a valid numeric zero.
func ZeroDecimal() pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(0), Valid: true}
}

// CompareDecimal compares n with the integer limit, returning -1, 0 or +1.
// A NULL numeric compares as zero.
func CompareDecimal(n pgtype.Numeric, limit int64) int {
	lhs := new(big.Int)
	if n.Valid && n.Int != nil {
		lhs.Set(n.Int)
	}
	rhs := big.NewInt(limit)

	exp := int64(n.Exp)
	if exp < 0 {
		exp = -exp
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
	if n.Exp >= 0 {
		lhs.Mul(lhs, scale)
	} else {
		rhs.Mul(rhs, scale)
	}
	return lhs.Cmp(rhs)
}

// FormatDecimal renders n in plain positional notation ("12.50", "0.005").
// NULL renders as the empty string.
func FormatDecimal(n pgtype.Numeric) string {
	if !n.Valid || n.Int == nil {
		return ""
	}

	digits := new(big.Int).Abs(n.Int).String()
	sign := ""
	if n.Int.Sign() < 0 {
		sign = "-"
	}

	if n.Exp >= 0 {
		if n.Int.Sign() == 0 {
			return "0"
		}
		return sign + digits + strings.Repeat("0", int(n.Exp))
	}

	scale := int(-n.Exp)
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	point := len(digits) - scale
	return sign + digits[:point] + "." + digits[point:]
}

// cleanNumber strips the currency sign, thousands separators and accounting
// parentheses and reports whether the remainder is a well-formed number.
func cleanNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, currencySign, "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
			return "", false
		}
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return "", false
	}
	return s, true
}

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
// Keys are lowercased for case-insensitive matching.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = i
	}
	return idx
}

// CleanCell trims surrounding whitespace and a stray byte order mark.
func CleanCell(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
}
