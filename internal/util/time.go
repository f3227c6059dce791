package util

import (
	"time"
	_ "time/tzdata"
)

var pacificLocation *time.Location

func init() {
	var err error
	pacificLocation, err = time.LoadLocation("America/Los_Angeles")
	if err != nil {
		pacificLocation = time.FixedZone("PST", -8*60*60)
	}
}

// NextPacificMidnight returns when the YouTube Data API quota resets after t.
func NextPacificMidnight(t time.Time) time.Time {
	p := t.In(pacificLocation)
	midnight := time.Date(p.Year(), p.Month(), p.Day(), 0, 0, 0, 0, pacificLocation)
	return midnight.AddDate(0, 0, 1)
}

// PacificDayKey identifies the quota day containing t.
func PacificDayKey(t time.Time) string {
	return t.In(pacificLocation).Format("2006-01-02")
}

// DaysBetween counts whole UTC calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	start := time.Date(a.UTC().Year(), a.UTC().Month(), a.UTC().Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(b.UTC().Year(), b.UTC().Month(), b.UTC().Day(), 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

// FormatTopDate renders the date shown in titles and thumbnails.
func FormatTopDate(t time.Time) string {
	return t.UTC().Format("02/01/2006")
}
