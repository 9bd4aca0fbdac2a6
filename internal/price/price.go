// Package price handles price and size values from the Polymarket APIs
// without losing precision. Values are fixed-point int64 with six decimal
// places, which covers the exchange's full tick resolution.
package price

import (
	"encoding/json"
	"fmt"
	"math"
)

// Price is a probability-token price in fixed-point units.
type Price int64

// Size is a share quantity in fixed-point units.
type Size int64

const Scale int64 = 1_000_000

// One is the natural ceiling for a probability-token price.
const One Price = Price(Scale)

// Half is the undefined-market default mid price.
const Half Price = Price(Scale / 2)

var (
	_ json.Unmarshaler = (*Price)(nil)
	_ json.Unmarshaler = (*Size)(nil)
)

// Parse converts a decimal string such as "0.42" to a Price.
// An empty string parses to 0; anything that is not a plain
// non-negative decimal is an error.
func Parse(s string) (Price, error) {
	v, err := parseFixed(s)
	return Price(v), err
}

// ParseSize converts a decimal string to a Size. Same rules as Parse.
func ParseSize(s string) (Size, error) {
	v, err := parseFixed(s)
	return Size(v), err
}

func parseFixed(s string) (int64, error) {
	var res int64
	i := 0

	for i < len(s) && s[i] != '.' {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid decimal %q", s)
		}
		res = res*10 + int64(c-'0')*Scale
		i++
	}

	if i < len(s) && s[i] == '.' {
		i++
		mult := Scale
		for i < len(s) {
			c := s[i]
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("invalid decimal %q", s)
			}
			mult /= 10
			res += int64(c-'0') * mult
			i++
		}
	}

	return res, nil
}

func unquote(data []byte) []byte {
	if len(data) > 2 && data[0] == '"' && data[len(data)-1] == '"' {
		return data[1 : len(data)-1]
	}
	// Else we assume that it is a raw number.
	return data
}

func (p *Price) UnmarshalJSON(data []byte) error {
	v, err := parseFixed(string(unquote(data)))
	if err != nil {
		return err
	}
	*p = Price(v)
	return nil
}

func (s *Size) UnmarshalJSON(data []byte) error {
	v, err := parseFixed(string(unquote(data)))
	if err != nil {
		return err
	}
	*s = Size(v)
	return nil
}

// Float64 returns the display value of a price.
func (p Price) Float64() float64 {
	return float64(p) / float64(Scale)
}

// Float64 returns the display value of a size.
func (s Size) Float64() float64 {
	return float64(s) / float64(Scale)
}

// FromFloat64 converts a display value to fixed-point, rounding to
// the nearest micro-unit. Rounding matters: 0.30 has no exact binary
// representation and truncation would yield 299999.
func FromFloat64(f float64) Price {
	return Price(math.Round(f * float64(Scale)))
}

func (p Price) String() string {
	return fmt.Sprintf("%d.%06d", int64(p)/Scale, int64(p)%Scale)
}
