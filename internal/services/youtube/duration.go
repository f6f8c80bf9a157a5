package youtube

import (
	"strconv"
	"strings"
)

// parseISODuration converts the API's ISO 8601 durations (PT58S, PT1M3S)
// into seconds. Malformed input yields zero; callers treat an unknown
// duration as missing rather than fatal.
func parseISODuration(value string) float64 {
	value = strings.TrimPrefix(strings.TrimSpace(value), "P")
	if value == "" {
		return 0
	}

	var total float64
	timePart := false
	number := strings.Builder{}
	for _, r := range value {
		switch {
		case r == 'T':
			timePart = true
		case r >= '0' && r <= '9' || r == '.':
			number.WriteRune(r)
		default:
			n, err := strconv.ParseFloat(number.String(), 64)
			number.Reset()
			if err != nil {
				return 0
			}
			switch {
			case r == 'D':
				total += n * 86400
			case r == 'H' && timePart:
				total += n * 3600
			case r == 'M' && timePart:
				total += n * 60
			case r == 'S' && timePart:
				total += n
			default:
				return 0
			}
		}
	}
	return total
}
