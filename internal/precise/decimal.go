// Package precise holds the decimal type used for every price, amount, cost and
// fee in the module. Values keep the scale they were parsed with and are never
// converted to binary floating point.
package precise

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidDecimal is returned when a string is not a decimal literal.
	ErrInvalidDecimal = errors.New("invalid decimal")
	// ErrDivisionByZero is the arithmetic error raised by Div, DivGuard and Mod.
	ErrDivisionByZero = errors.New("arithmetic error: division by zero")
)

// Decimal is an immutable decimal number or the explicit unknown value.
// The zero value is Unknown.
type Decimal struct {
	d     decimal.Decimal
	known bool
}

// Unknown is the value of a field the source did not report.
var Unknown = Decimal{}

var (
	Zero = Decimal{d: decimal.Zero, known: true}
	One  = Decimal{d: decimal.New(1, 0), known: true}
)

// Parse reads an optionally signed decimal literal with an optional fractional
// part and exponent, e.g. "-12.5", "+3", ".5", "1e-8".
func Parse(s string) (Decimal, error) {
	if !isLiteral(s) {
		return Unknown, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Unknown, fmt.Errorf("%w: %q: %v", ErrInvalidDecimal, s, err)
	}
	return Decimal{d: d, known: true}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Decimal {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func FromInt(i int64) Decimal {
	return Decimal{d: decimal.NewFromInt(i), known: true}
}

// New returns coefficient × 10^exp.
func New(coefficient int64, exp int32) Decimal {
	return Decimal{d: decimal.New(coefficient, exp), known: true}
}

// FromDecimal lifts a shopspring decimal.
func FromDecimal(d decimal.Decimal) Decimal {
	return Decimal{d: d, known: true}
}

// Pow10 returns 10^exp, e.g. Pow10(-8) = 0.00000001.
func Pow10(exp int32) Decimal {
	return New(1, exp)
}

func isLiteral(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == len(s)
}

func (x Decimal) Known() bool { return x.known }

// Or returns x when known, def otherwise.
func (x Decimal) Or(def Decimal) Decimal {
	if x.known {
		return x
	}
	return def
}

// Decimal exposes the underlying representation. Unknown maps to zero.
func (x Decimal) Decimal() decimal.Decimal {
	if !x.known {
		return decimal.Zero
	}
	return x.d
}

func (x Decimal) Add(y Decimal) Decimal {
	if !x.known || !y.known {
		return Unknown
	}
	return Decimal{d: x.d.Add(y.d), known: true}
}

func (x Decimal) Sub(y Decimal) Decimal {
	if !x.known || !y.known {
		return Unknown
	}
	return Decimal{d: x.d.Sub(y.d), known: true}
}

func (x Decimal) Mul(y Decimal) Decimal {
	if !x.known || !y.known {
		return Unknown
	}
	return Decimal{d: x.d.Mul(y.d), known: true}
}

func (x Decimal) Neg() Decimal {
	if !x.known {
		return Unknown
	}
	return Decimal{d: x.d.Neg(), known: true}
}

func (x Decimal) Abs() Decimal {
	if !x.known {
		return Unknown
	}
	return Decimal{d: x.d.Abs(), known: true}
}

// Div returns x / y truncated toward zero at places fractional digits.
func (x Decimal) Div(y Decimal, places int32) (Decimal, error) {
	if !x.known || !y.known {
		return Unknown, nil
	}
	if y.d.IsZero() {
		return Unknown, ErrDivisionByZero
	}
	q, _ := x.d.QuoRem(y.d, places)
	return Decimal{d: q, known: true}, nil
}

// DivGuard divides with scale(x) + scale(y) + guard fractional digits.
func (x Decimal) DivGuard(y Decimal, guard int32) (Decimal, error) {
	return x.Div(y, x.Scale()+y.Scale()+guard)
}

// Mod returns the remainder of x / y carrying the sign of x.
func (x Decimal) Mod(y Decimal) (Decimal, error) {
	if !x.known || !y.known {
		return Unknown, nil
	}
	if y.d.IsZero() {
		return Unknown, ErrDivisionByZero
	}
	return Decimal{d: x.d.Mod(y.d), known: true}, nil
}

// Cmp orders values numerically; Unknown sorts below every known value.
func (x Decimal) Cmp(y Decimal) int {
	switch {
	case !x.known && !y.known:
		return 0
	case !x.known:
		return -1
	case !y.known:
		return 1
	}
	return x.d.Cmp(y.d)
}

// Equal reports numeric equality; "1.50" equals "1.5".
func (x Decimal) Equal(y Decimal) bool {
	if x.known != y.known {
		return false
	}
	return !x.known || x.d.Equal(y.d)
}

func (x Decimal) IsZero() bool     { return x.known && x.d.IsZero() }
func (x Decimal) IsNegative() bool { return x.known && x.d.IsNegative() }
func (x Decimal) IsPositive() bool { return x.known && x.d.IsPositive() }

// Sign returns -1, 0 or 1; Unknown reports 0.
func (x Decimal) Sign() int {
	if !x.known {
		return 0
	}
	return x.d.Sign()
}

// Scale is the number of fractional digits in the representation.
func (x Decimal) Scale() int32 {
	if !x.known || x.d.Exponent() >= 0 {
		return 0
	}
	return -x.d.Exponent()
}

// String prints the value with its own scale, or "" for Unknown.
func (x Decimal) String() string {
	if !x.known {
		return ""
	}
	if exp := x.d.Exponent(); exp < 0 {
		return x.d.StringFixed(-exp)
	}
	return x.d.String()
}

// Rat returns the exact rational value.
func (x Decimal) Rat() *big.Rat {
	if !x.known {
		return nil
	}
	return x.d.Rat()
}

// Min returns the smaller known value; Unknown operands are ignored.
func Min(a, b Decimal) Decimal {
	if !a.known {
		return b
	}
	if !b.known || a.d.Cmp(b.d) <= 0 {
		return a
	}
	return b
}

// Max returns the larger known value; Unknown operands are ignored.
func Max(a, b Decimal) Decimal {
	if !a.known {
		return b
	}
	if !b.known || a.d.Cmp(b.d) >= 0 {
		return a
	}
	return b
}

// Sum adds every value; any Unknown term makes the sum Unknown.
func Sum(values ...Decimal) Decimal {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// FromNumber parses decimal text produced by a JSON decoder or a Go integer.
func FromNumber(v any) (Decimal, error) {
	switch n := v.(type) {
	case string:
		return Parse(n)
	case fmt.Stringer:
		return Parse(n.String())
	case int:
		return FromInt(int64(n)), nil
	case int64:
		return FromInt(n), nil
	case int32:
		return FromInt(int64(n)), nil
	case float64:
		// shortest representation that round-trips; no arithmetic happens in float
		return Parse(strconv.FormatFloat(n, 'f', -1, 64))
	}
	return Unknown, fmt.Errorf("%w: unsupported type %T", ErrInvalidDecimal, v)
}
