package precise

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

type RoundingMode int

const (
	// RoundHalfUp rounds to nearest, ties away from zero.
	RoundHalfUp RoundingMode = iota
	// RoundDown truncates toward zero. Used for order-size quantization.
	RoundDown
	// RoundUp rounds away from zero. Used for fee ceilings.
	RoundUp
)

func (m RoundingMode) String() string {
	switch m {
	case RoundHalfUp:
		return "half_up"
	case RoundDown:
		return "down"
	case RoundUp:
		return "up"
	}
	return fmt.Sprintf("RoundingMode(%d)", int(m))
}

// Round rounds to places fractional digits using mode.
func (x Decimal) Round(places int32, mode RoundingMode) Decimal {
	if !x.known {
		return Unknown
	}
	switch mode {
	case RoundDown:
		return Decimal{d: x.d.RoundDown(places), known: true}
	case RoundUp:
		return Decimal{d: x.d.RoundUp(places), known: true}
	default:
		return Decimal{d: x.d.Round(places), known: true}
	}
}

// Quantize snaps x to an integer multiple of step. A step that is unknown or
// not positive leaves x unchanged.
func (x Decimal) Quantize(step Decimal, mode RoundingMode) Decimal {
	if !x.known || !step.IsPositive() {
		return x
	}
	q, r := x.d.QuoRem(step.d, 0)
	if !r.IsZero() {
		switch mode {
		case RoundUp:
			q = q.Add(oneFor(x))
		case RoundHalfUp:
			if r.Abs().Mul(two).Cmp(step.d) >= 0 {
				q = q.Add(oneFor(x))
			}
		}
	}
	return Decimal{d: q.Mul(step.d), known: true}
}

var two = FromInt(2).d

func oneFor(x Decimal) decimal.Decimal {
	if x.d.IsNegative() {
		return One.d.Neg()
	}
	return One.d
}

// PlacesOf returns the number of fractional digits a tick size implies:
// 0.001 → 3, 1 → 0, 0.25 → 2.
func PlacesOf(tick Decimal) int32 {
	if !tick.known {
		return 0
	}
	return tick.Scale()
}

func (x Decimal) MarshalJSON() ([]byte, error) {
	if !x.known {
		return []byte("null"), nil
	}
	return json.Marshal(x.String())
}

func (x *Decimal) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*x = Unknown
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*x = v
	return nil
}
