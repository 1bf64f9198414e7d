// Package aspect holds the target aspect ratio setting.
package aspect

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Ratio is a target aspect ratio expressed as width/height
type Ratio float64

// Presets offered by the CLI
const (
	Landscape16x9 Ratio = 16.0 / 9.0
	Portrait9x16  Ratio = 9.0 / 16.0
	Square1x1     Ratio = 1
)

// Default is used when nothing else is configured
const Default = Portrait9x16

// ErrInvalid is returned for ratios that are not positive finite numbers
var ErrInvalid = errors.New("invalid aspect ratio")

var presetNames = map[Ratio]string{
	Landscape16x9: "16:9",
	Portrait9x16:  "9:16",
	Square1x1:     "1:1",
}

// Presets returns the preset names in display order
func Presets() []string {
	return []string{"16:9", "9:16", "1:1"}
}

// Parse accepts "W:H", "W/H" or a plain float such as "0.5625"
func Parse(s string) (Ratio, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalid)
	}

	sep := strings.IndexAny(s, ":/")
	if sep < 0 {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrInvalid, s, err)
		}
		return New(v)
	}

	w, err := strconv.ParseFloat(strings.TrimSpace(s[:sep]), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad width in %q: %w", ErrInvalid, s, err)
	}
	h, err := strconv.ParseFloat(strings.TrimSpace(s[sep+1:]), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad height in %q: %w", ErrInvalid, s, err)
	}
	if h == 0 {
		return 0, fmt.Errorf("%w: zero height in %q", ErrInvalid, s)
	}
	return New(w / h)
}

// New validates a raw width/height value
func New(v float64) (Ratio, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalid, v)
	}
	return Ratio(v), nil
}

// Float64 returns the ratio as a plain number
func (r Ratio) Float64() float64 {
	return float64(r)
}

// Valid reports whether r is a usable ratio
func (r Ratio) Valid() bool {
	_, err := New(float64(r))
	return err == nil
}

// String renders presets as "W:H" and anything else as a decimal
func (r Ratio) String() string {
	if name, ok := presetNames[r]; ok {
		return name
	}
	return strconv.FormatFloat(float64(r), 'f', -1, 64)
}

// Set implements pflag.Value
func (r *Ratio) Set(s string) error {
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Type implements pflag.Value
func (r *Ratio) Type() string {
	return "ratio"
}

// MarshalText renders the ratio the way Parse reads it back
func (r Ratio) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText lets the ratio be used directly in config files
func (r *Ratio) UnmarshalText(b []byte) error {
	return r.Set(string(b))
}
