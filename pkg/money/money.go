// Package money holds the fixed-point arithmetic used for every ledger amount.
//
// Amounts are carried with four fractional digits internally and only rounded
// to two digits when presented.
package money

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// Scale is the internal precision of every stored amount.
	Scale int32 = 4
	// DisplayScale is the precision used for presentation.
	DisplayScale int32 = 2
)

var hundred = decimal.NewFromInt(100)

// Round4 rounds half away from zero to the internal scale.
func Round4(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Round2 rounds to the display scale.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(DisplayScale)
}

// FitsScale reports whether d is representable at the internal scale
// without rounding.
func FitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(Scale))
}

// Format renders an amount at display precision, e.g. "276.00".
func Format(d decimal.Decimal) string {
	return d.StringFixed(DisplayScale)
}

// Percent converts a 0–100 rate into a multiplier.
func Percent(rate decimal.Decimal) decimal.Decimal {
	return rate.Div(hundred)
}

// Sum adds the given amounts without intermediate rounding.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Coerce turns loosely typed input into a decimal. Anything that is not a
// finite number becomes zero.
func Coerce(value any) decimal.Decimal {
	switch v := value.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return v
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero
		}
		return *v
	case decimal.NullDecimal:
		if !v.Valid {
			return decimal.Zero
		}
		return v.Decimal
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt32(v)
	case int64:
		return decimal.NewFromInt(v)
	case float32:
		return fromFloat(float64(v))
	case float64:
		return fromFloat(v)
	case json.Number:
		return fromString(string(v))
	case string:
		return fromString(v)
	default:
		return decimal.Zero
	}
}

func fromString(v string) decimal.Decimal {
	parsed, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero
	}
	return parsed
}

func fromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
