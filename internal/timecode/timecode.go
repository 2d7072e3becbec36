// Package timecode converts between clock strings and float seconds for the
// formats the pipeline touches: config clock times ("hh:mm:ss" / "mm:ss"),
// SRT cue times ("hh:mm:ss,mmm") and ASS event times ("h:mm:ss.cc").
package timecode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidTimeFormat is returned for clock strings that are not
// "hh:mm:ss" or "mm:ss".
var ErrInvalidTimeFormat = errors.New("invalid time format")

// ParseClock parses "hh:mm:ss" or "mm:ss" into seconds.
// Fractional seconds are accepted ("1:23:45.5").
func ParseClock(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")

	var fields []float64
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
		}
		fields = append(fields, f)
	}

	switch len(fields) {
	case 3:
		return fields[0]*3600 + fields[1]*60 + fields[2], nil
	case 2:
		return fields[0]*60 + fields[1], nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
}

// FormatClock renders seconds as "hh:mm:ss.mmm", or "hh:mm:ss" when
// withMillis is false.
func FormatClock(seconds float64, withMillis bool) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	if withMillis {
		ms := int((seconds - float64(total)) * 1000)
		return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, secs, ms)
	}
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}

// SRT renders seconds as an SRT timestamp, "hh:mm:ss,mmm".
func SRT(seconds float64) string {
	return strings.Replace(FormatClock(seconds, true), ".", ",", 1)
}

// ASS renders seconds as an ASS timestamp, "h:mm:ss.cc". ASS uses
// centisecond precision and an unpadded hour field.
func ASS(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	centis := int((seconds - float64(total)) * 100)
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centis)
}
