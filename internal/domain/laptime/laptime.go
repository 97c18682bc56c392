// Package laptime formats and parses elapsed times in the leaderboard's
// m:ss.t notation (minutes, two-digit seconds, tenths).
package laptime

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is returned for text that is not a m:ss.t time.
var ErrInvalid = errors.New("invalid lap time")

const tenthsPerMinute = 600

// Format renders d as m:ss.t, rounded to the nearest tenth. Negative
// durations are clamped to zero.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	tenths := int64(math.Round(d.Seconds() * 10))
	minutes := tenths / tenthsPerMinute
	rem := tenths % tenthsPerMinute
	return fmt.Sprintf("%d:%02d.%d", minutes, rem/10, rem%10)
}

var (
	clockPattern   = regexp.MustCompile(`^(\d+):(\d{1,2}(?:\.\d+)?)$`)
	secondsPattern = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
)

const (
	maxMinutes = math.MaxInt64 / int64(time.Minute)
	maxSeconds = float64(math.MaxInt64) / float64(time.Second)
)

// Parse reads m:ss.t back into a duration. It also accepts a bare seconds
// value ("9.5"), unpadded seconds and any number of fractional digits.
// Signs, exponents and hex forms are rejected, as is anything that would
// not fit in a time.Duration.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalid)
	}

	var minutes int64
	secPart := s
	if m := clockPattern.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || v > maxMinutes {
			return 0, fmt.Errorf("%w: minutes out of range in %q", ErrInvalid, s)
		}
		minutes = v
		secPart = m[2]
	} else if !secondsPattern.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}

	secs, err := strconv.ParseFloat(secPart, 64)
	if err != nil || secs >= maxSeconds {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if secPart != s && secs >= 60 {
		return 0, fmt.Errorf("%w: seconds out of range in %q", ErrInvalid, s)
	}

	whole := time.Duration(minutes) * time.Minute
	frac := time.Duration(math.Round(secs * float64(time.Second)))
	if frac < 0 || whole > math.MaxInt64-frac {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalid, s)
	}
	return whole + frac, nil
}
