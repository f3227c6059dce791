package domain

import (
	"fmt"
	"strings"
)

// Period is the comparison range of a leaderboard.
type Period string

const (
	PeriodDaily  Period = "daily"
	PeriodWeekly Period = "weekly"
)

const defaultPeriodDays = 7

func (p Period) String() string {
	return string(p)
}

// Days returns how far back the baseline window starts. Unknown periods fall
// back to a week.
func (p Period) Days() int {
	switch p {
	case PeriodDaily:
		return 1
	case PeriodWeekly:
		return 7
	default:
		return defaultPeriodDays
	}
}

func ParsePeriod(value string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(value))) {
	case PeriodDaily:
		return PeriodDaily, nil
	case PeriodWeekly:
		return PeriodWeekly, nil
	default:
		return "", fmt.Errorf("unknown period %q (want daily or weekly)", value)
	}
}
