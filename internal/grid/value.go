// Package grid holds gridded pollution datasets and the spatial queries run against them.
package grid

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Missing is the raw sentinel source files use for absent or unparseable numbers.
const Missing = -1

// Value is an optional measurement. The zero Value is missing.
type Value struct {
	v  float64
	ok bool
}

// Some returns a present value.
func Some(v float64) Value {
	return Value{v: v, ok: true}
}

// None returns a missing value.
func None() Value {
	return Value{}
}

// Get returns the measurement and whether it is present.
func (v Value) Get() (float64, bool) {
	return v.v, v.ok
}

// Valid reports whether the value is present.
func (v Value) Valid() bool {
	return v.ok
}

// Or returns the measurement, or def when missing.
func (v Value) Or(def float64) float64 {
	if !v.ok {
		return def
	}
	return v.v
}

func (v Value) String() string {
	if !v.ok {
		return "missing"
	}
	return strconv.FormatFloat(v.v, 'f', -1, 64)
}

// MarshalJSON encodes a missing value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

// UnmarshalJSON decodes null as a missing value.
func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = None()
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*v = ParseValue(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

// ParseValue parses a measurement field. Empty, unparseable, non-finite
// and sentinel inputs all yield a missing value.
func ParseValue(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return None()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f == Missing {
		return None()
	}
	return Some(f)
}

// parseIntOr parses an integer field, returning def if parsing fails or
// the value is outside the int32 range.
func parseIntOr(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		// Some exports write coordinates as "530500.0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return def
		}
		return int(f)
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return def
	}
	return v
}

// ParseInt parses an integer field, returning Missing on failure.
func ParseInt(s string) int {
	return parseIntOr(s, Missing)
}
