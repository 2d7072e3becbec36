package timecode

import (
	"errors"
	"math"
	"testing"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "full clock", input: "01:23:45", want: 5025},
		{name: "minutes and seconds", input: "23:45", want: 1425},
		{name: "zero", input: "00:00:00", want: 0},
		{name: "fractional seconds", input: "00:00:01.5", want: 1.5},
		{name: "surrounding whitespace", input: "  01:00  ", want: 60},
		{name: "large hours", input: "10:00:00", want: 36000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseClock(tc.input)
			if err != nil {
				t.Fatalf("ParseClock(%q) error: %v", tc.input, err)
			}
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("ParseClock(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseClock_Invalid(t *testing.T) {
	for _, input := range []string{"", "90", "1:2:3:4", "aa:bb", "1h30m"} {
		if _, err := ParseClock(input); !errors.Is(err, ErrInvalidTimeFormat) {
			t.Fatalf("ParseClock(%q) error = %v, want ErrInvalidTimeFormat", input, err)
		}
	}
}

func TestFormatClock(t *testing.T) {
	if got := FormatClock(5025.5, true); got != "01:23:45.500" {
		t.Fatalf("FormatClock with millis = %q", got)
	}
	if got := FormatClock(5025.5, false); got != "01:23:45" {
		t.Fatalf("FormatClock without millis = %q", got)
	}
	if got := FormatClock(0, true); got != "00:00:00.000" {
		t.Fatalf("FormatClock zero = %q", got)
	}
}

func TestSRT(t *testing.T) {
	if got := SRT(5025.5); got != "01:23:45,500" {
		t.Fatalf("SRT(5025.5) = %q", got)
	}
	if got := SRT(0.04); got != "00:00:00,040" {
		t.Fatalf("SRT(0.04) = %q", got)
	}
}

func TestASS(t *testing.T) {
	if got := ASS(5025.5); got != "1:23:45.50" {
		t.Fatalf("ASS(5025.5) = %q", got)
	}
	if got := ASS(0); got != "0:00:00.00" {
		t.Fatalf("ASS(0) = %q", got)
	}
	if got := ASS(36000.25); got != "10:00:00.25" {
		t.Fatalf("ASS(36000.25) = %q", got)
	}
}

func TestClockRoundTrip(t *testing.T) {
	for _, seconds := range []float64{0, 1, 59, 60, 3599, 3600, 5025} {
		formatted := FormatClock(seconds, false)
		parsed, err := ParseClock(formatted)
		if err != nil {
			t.Fatalf("round trip parse of %q: %v", formatted, err)
		}
		if parsed != seconds {
			t.Fatalf("round trip %v -> %q -> %v", seconds, formatted, parsed)
		}
	}
}
