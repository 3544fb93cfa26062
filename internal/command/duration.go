package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	Day  = 24 * time.Hour
	Week = 7 * Day
)

var durationToken = regexp.MustCompile(`^(\d+(?:\.\d+)?)([a-zµ]+)`)

// ParseDuration accepts Go durations extended with "d" and "w" units, e.g. "1w2d3h".
// "never" yields never=true.
func ParseDuration(s string) (d time.Duration, never bool, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "never" {
		return 0, true, nil
	}
	if s == "" {
		return 0, false, fmt.Errorf("empty duration")
	}

	var rest strings.Builder
	for in := s; in != ""; {
		m := durationToken.FindStringSubmatch(in)
		if m == nil {
			return 0, false, fmt.Errorf("invalid duration %q", s)
		}
		in = in[len(m[0]):]
		switch m[2] {
		case "w", "d":
			n, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return 0, false, fmt.Errorf("invalid duration %q", s)
			}
			unit := Day
			if m[2] == "w" {
				unit = Week
			}
			d += time.Duration(n * float64(unit))
		default:
			rest.WriteString(m[0])
		}
	}
	if rest.Len() > 0 {
		v, err := time.ParseDuration(rest.String())
		if err != nil {
			return 0, false, fmt.Errorf("invalid duration %q", s)
		}
		d += v
	}
	if d <= 0 {
		return 0, false, fmt.Errorf("duration %q must be positive", s)
	}
	return d, false, nil
}
