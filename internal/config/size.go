package config

import (
	"fmt"
	"strconv"
	"strings"
)

// sizeUnits is checked longest-suffix-first so the bare "B" is tried
// only after the two-letter suffixes ("500MB" is not read as "500M" + "B").
var sizeUnits = []struct {
	suffix string
	factor int64
}{
	{"TB", 1 << 40},
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// ParseSize parses a byte-size string like "500MB", "1GB", "4096" (bare
// bytes) into a byte count. Units are base-1024 (KB = 1024 bytes).
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("config: empty size string")
	}

	upper := strings.ToUpper(s)
	for _, u := range sizeUnits {
		if strings.HasSuffix(upper, u.suffix) {
			numPart := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			if numPart == "" {
				return 0, fmt.Errorf("config: size %q has no numeric part", s)
			}
			value, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, fmt.Errorf("config: invalid size %q: %w", s, err)
			}
			return int64(value * float64(u.factor)), nil
		}
	}

	value, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid size %q: %w", s, err)
	}
	return value, nil
}

// FormatSize renders a byte count as the largest whole unit that
// divides it evenly (TB, then GB, then MB, then KB, else bare bytes),
// so that FormatSize(ParseSize(s)) round-trips for every size this
// recorder itself produces (queue capacities, split sizes, reaper
// thresholds configured in whole units).
func FormatSize(bytes int64) string {
	for _, u := range sizeUnits {
		if u.factor == 1 {
			continue
		}
		if bytes != 0 && bytes%u.factor == 0 {
			return fmt.Sprintf("%d%s", bytes/u.factor, u.suffix)
		}
	}
	return strconv.FormatInt(bytes, 10)
}
