// Package toml adds support to marshal and unmarshal types not in the
// official TOML spec.
package toml

import (
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode"
)

// Duration is a TOML wrapper type for time.Duration.
type Duration time.Duration

// String returns the duration's string form.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText parses a TOML value into a duration value.
func (d *Duration) UnmarshalText(text []byte) error {
	// Ignore if there is no value set.
	if len(text) == 0 {
		return nil
	}

	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

// MarshalText converts a duration to a string for encoding toml.
func (d Duration) MarshalText() (text []byte, err error) {
	return []byte(d.String()), nil
}

// Size is a TOML wrapper type for a byte count that accepts the suffixes
// k, m and g (case-insensitive) for KiB, MiB and GiB.
type Size uint64

// UnmarshalText parses a byte size from its string representation.
func (s *Size) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		return fmt.Errorf("size was empty")
	}

	// The multiplier defaults to 1 when the size carries no suffix and is
	// just raw bytes.
	mult := uint64(1)
	switch suffix := text[len(text)-1]; suffix {
	case 'k', 'K':
		mult = 1 << 10
	case 'm', 'M':
		mult = 1 << 20
	case 'g', 'G':
		mult = 1 << 30
	default:
		if !unicode.IsDigit(rune(suffix)) {
			return fmt.Errorf("unknown size suffix: %c (expected k, m, or g)", suffix)
		}
	}
	if mult != 1 {
		text = text[:len(text)-1]
	}

	value, err := strconv.ParseUint(string(text), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size: %s", string(text))
	}
	if math.MaxUint64/mult < value {
		return fmt.Errorf("size overflows a uint64: %s", string(text))
	}

	*s = Size(value * mult)
	return nil
}

// MarshalText encodes the size as its raw byte count.
func (s Size) MarshalText() (text []byte, err error) {
	return []byte(strconv.FormatUint(uint64(s), 10)), nil
}
