// Package ranking compares a current set of snapshots against a baseline and
// produces the annotated leaderboard.
package ranking

import (
	"sort"

	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/pkg/errors"
)

// Rank orders current by view growth relative to previous and annotates every
// entry with rank, previous rank and delta.
//
// Duplicate ids in previous resolve last-write-wins. Duplicate ids in current
// collapse to the last occurrence, kept in the slot of the first one. When
// previous is empty every entry is NEW. Neither input is modified.
func Rank(current, previous []domain.MetricSnapshot) ([]domain.MetricSnapshot, error) {
	if len(current) == 0 {
		return nil, errors.ErrNoCurrentData
	}

	baseline := make(map[string]domain.MetricSnapshot, len(previous))
	for _, snap := range previous {
		baseline[snap.VideoID] = snap
	}

	ranked := dedupe(current)

	for i := range ranked {
		snap := &ranked[i]
		if prev, ok := baseline[snap.VideoID]; ok {
			snap.ViewGrowth = domain.Int64Ptr(ViewGrowth(snap.Views, prev.Views))
			continue
		}
		if snap.ViewGrowth != nil && *snap.ViewGrowth != 0 {
			// fresh pointer: the result must not alias the caller's snapshot
			snap.ViewGrowth = domain.Int64Ptr(*snap.ViewGrowth)
			continue
		}
		snap.ViewGrowth = domain.Int64Ptr(snap.Views)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].ViewGrowth > *ranked[j].ViewGrowth
	})

	for i := range ranked {
		snap := &ranked[i]
		rank := i + 1
		snap.Rank = domain.IntPtr(rank)
		snap.PreviousRank = nil

		if prev, ok := baseline[snap.VideoID]; ok && prev.Rank != nil {
			snap.PreviousRank = domain.IntPtr(*prev.Rank)
		}

		delta := domain.RankDeltaNew
		if len(previous) > 0 {
			delta = ClassifyDelta(rank, snap.PreviousRank)
		}
		snap.RankDelta = domain.RankDeltaPtr(delta)
	}

	return ranked, nil
}

// ViewGrowth is the absolute difference between two view counts. A platform
// correction that lowers the count still counts as movement.
func ViewGrowth(current, previous int64) int64 {
	if current >= previous {
		return current - previous
	}
	return previous - current
}

// ClassifyDelta compares a rank against the previous one. A lower rank number
// is a better position.
func ClassifyDelta(rank int, previousRank *int) domain.RankDelta {
	switch {
	case previousRank == nil:
		return domain.RankDeltaNew
	case rank == *previousRank:
		return domain.RankDeltaEqual
	case rank < *previousRank:
		return domain.RankDeltaUp
	default:
		return domain.RankDeltaDown
	}
}

func dedupe(current []domain.MetricSnapshot) []domain.MetricSnapshot {
	slot := make(map[string]int, len(current))
	out := make([]domain.MetricSnapshot, 0, len(current))
	for _, snap := range current {
		if i, ok := slot[snap.VideoID]; ok {
			out[i] = snap
			continue
		}
		slot[snap.VideoID] = len(out)
		out = append(out, snap)
	}
	return out
}
