// Package humanfmt formats and parses byte sizes, row counts and durations
// for log lines and configuration values.
package humanfmt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Binary (IEC) units for bytes.
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
	TiB = 1024 * GiB
)

type scaleStep struct {
	factor float64
	suffix string
}

var (
	byteSteps  = []scaleStep{{TiB, " TiB"}, {GiB, " GiB"}, {MiB, " MiB"}, {KiB, " KiB"}}
	countSteps = []scaleStep{{1e9, "B"}, {1e6, "M"}, {1e3, "K"}}
)

func scaled(n int64, steps []scaleStep) (string, bool) {
	for _, s := range steps {
		if float64(n) >= s.factor {
			return fmt.Sprintf("%.2f%s", float64(n)/s.factor, s.suffix), true
		}
	}
	return "", false
}

// Bytes formats a byte count using IEC units, e.g. "95.37 MiB".
func Bytes(b int64) string {
	if s, ok := scaled(b, byteSteps); ok {
		return s
	}
	return fmt.Sprintf("%d B", b)
}

// Count formats a row or file count compactly, e.g. "1.23M".
func Count(n int64) string {
	if s, ok := scaled(n, countSteps); ok {
		return s
	}
	return strconv.FormatInt(n, 10)
}

// Duration formats d compactly. Examples: "1.23s", "45.6ms", "1m30s", "2h15m".
func Duration(d time.Duration) string {
	if d < 0 {
		return d.String()
	}

	switch {
	case d >= time.Hour:
		return compound(d/time.Hour, "h", (d%time.Hour)/time.Minute, "m")
	case d >= time.Minute:
		return compound(d/time.Minute, "m", (d%time.Minute)/time.Second, "s")
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fµs", float64(d)/float64(time.Microsecond))
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}

func compound(major time.Duration, majorUnit string, minor time.Duration, minorUnit string) string {
	if minor == 0 {
		return fmt.Sprintf("%d%s", major, majorUnit)
	}
	return fmt.Sprintf("%d%s%d%s", major, majorUnit, minor, minorUnit)
}

var sizeSuffixes = map[string]float64{
	"":    1,
	"B":   1,
	"KB":  1e3,
	"MB":  1e6,
	"GB":  1e9,
	"TB":  1e12,
	"K":   KiB,
	"KIB": KiB,
	"M":   MiB,
	"MIB": MiB,
	"G":   GiB,
	"GIB": GiB,
	"T":   TiB,
	"TIB": TiB,
}

// ParseBytes parses a size such as "100MB", "1.5GiB", "1e8" or "4096".
// Decimal suffixes (KB, MB) are powers of 1000; binary ones (KiB, M)
// are powers of 1024. Suffixes are case-insensitive.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size string")
	}

	end := len(s)
	for i, c := range s {
		if (c < '0' || c > '9') && c != '.' && c != 'e' && c != 'E' && c != '+' {
			end = i
			break
		}
	}
	// "1e8" vs "1EB": a trailing exponent marker belongs to the suffix.
	for end > 0 && (s[end-1] == 'e' || s[end-1] == 'E') {
		end--
	}

	num, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	mult, ok := sizeSuffixes[strings.ToUpper(strings.TrimSpace(s[end:]))]
	if !ok {
		return 0, fmt.Errorf("unknown size suffix in %q", s)
	}
	if num < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	return int64(num * mult), nil
}
