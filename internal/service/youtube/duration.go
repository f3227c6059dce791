package youtube

import (
	"fmt"
	"strconv"
)

// parseISODuration converts a YouTube contentDetails.duration such as
// "PT1H2M3S" or "P1DT5M" into seconds.
func parseISODuration(value string) (int64, error) {
	if len(value) < 2 || value[0] != 'P' {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", value)
	}

	var (
		total  int64
		num    []byte
		inTime bool
	)
	for i := 1; i < len(value); i++ {
		c := value[i]
		switch {
		case c == 'T':
			if inTime || len(num) > 0 {
				return 0, fmt.Errorf("invalid ISO-8601 duration %q", value)
			}
			inTime = true
		case c >= '0' && c <= '9':
			num = append(num, c)
		default:
			if len(num) == 0 {
				return 0, fmt.Errorf("invalid ISO-8601 duration %q", value)
			}
			n, err := strconv.ParseInt(string(num), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", value, err)
			}
			num = num[:0]

			unit, err := unitSeconds(c, inTime)
			if err != nil {
				return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", value, err)
			}
			total += n * unit
		}
	}
	if len(num) > 0 {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q: trailing number", value)
	}
	return total, nil
}

func unitSeconds(designator byte, inTime bool) (int64, error) {
	if inTime {
		switch designator {
		case 'H':
			return 3600, nil
		case 'M':
			return 60, nil
		case 'S':
			return 1, nil
		}
	} else {
		switch designator {
		case 'W':
			return 7 * 86400, nil
		case 'D':
			return 86400, nil
		}
	}
	return 0, fmt.Errorf("unsupported designator %q", designator)
}
