// Package duration parses the compact duration strings used by materialized
// view refresh policies ("30m", "4h", "2d").
package duration

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidFormat is wrapped by every parse failure
var ErrInvalidFormat = errors.New("invalid duration format")

var pattern = regexp.MustCompile(`^(\d+)([mhd])$`)

var minutesPerUnit = map[string]int{
	"m": 1,
	"h": 60,
	"d": 1440,
}

// ParseMinutes converts a duration string into whole minutes
func ParseMinutes(s string) (int, error) {
	match := pattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if match == nil {
		return 0, fmt.Errorf("%w: %q, must be like '30m', '4h', or '2d'", ErrInvalidFormat, s)
	}

	value, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidFormat, s, err)
	}

	factor := minutesPerUnit[match[2]]
	if value > int(^uint(0)>>1)/factor {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidFormat, s)
	}
	return value * factor, nil
}
