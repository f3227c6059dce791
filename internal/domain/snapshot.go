package domain

import (
	"fmt"
	"strings"
	"time"
)

type RankDelta string

const (
	RankDeltaNew   RankDelta = "NEW"
	RankDeltaUp    RankDelta = "UP"
	RankDeltaDown  RankDelta = "DOWN"
	RankDeltaEqual RankDelta = "EQUAL"
)

func (d RankDelta) String() string {
	return string(d)
}

func (d RankDelta) IsValid() bool {
	switch d {
	case RankDeltaNew, RankDeltaUp, RankDeltaDown, RankDeltaEqual:
		return true
	default:
		return false
	}
}

func ParseRankDelta(value string) (RankDelta, error) {
	d := RankDelta(strings.ToUpper(strings.TrimSpace(value)))
	if !d.IsValid() {
		return "", fmt.Errorf("unknown rank delta %q", value)
	}
	return d, nil
}

// MetricSnapshot is one measurement of a video's popularity. ViewGrowth, Rank,
// RankDelta and PreviousRank are nil until the ranking engine annotates the
// snapshot.
type MetricSnapshot struct {
	VideoID      string     `json:"video_id"`
	ObservedAt   time.Time  `json:"observed_at"`
	Views        int64      `json:"views"`
	Likes        int64      `json:"likes"`
	ViewGrowth   *int64     `json:"view_growth,omitempty"`
	Rank         *int       `json:"rank,omitempty"`
	RankDelta    *RankDelta `json:"rank_delta,omitempty"`
	PreviousRank *int       `json:"previous_rank,omitempty"`
}

// Annotation extracts the ranking-derived fields of the snapshot.
func (s MetricSnapshot) Annotation() SnapshotAnnotation {
	return SnapshotAnnotation{
		ViewGrowth:   s.ViewGrowth,
		Rank:         s.Rank,
		RankDelta:    s.RankDelta,
		PreviousRank: s.PreviousRank,
	}
}

// IsRanked reports whether the engine has annotated the snapshot.
func (s MetricSnapshot) IsRanked() bool {
	return s.Rank != nil && s.RankDelta != nil
}

// SnapshotAnnotation is the partial update applied to a stored snapshot after
// ranking.
type SnapshotAnnotation struct {
	ViewGrowth   *int64
	Rank         *int
	RankDelta    *RankDelta
	PreviousRank *int
}

// NormalizeTimestamp converts t to the storage key form: UTC, microsecond
// precision.
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// StartOfDay returns UTC midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func Int64Ptr(v int64) *int64 {
	return &v
}

func IntPtr(v int) *int {
	return &v
}

func RankDeltaPtr(d RankDelta) *RankDelta {
	return &d
}
