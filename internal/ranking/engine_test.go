package ranking

import (
	"errors"
	"reflect"
	"testing"

	"github.com/kapu/top-music-bot-go/internal/domain"
	apperrors "github.com/kapu/top-music-bot-go/pkg/errors"
)

func snap(id string, views int64) domain.MetricSnapshot {
	return domain.MetricSnapshot{VideoID: id, Views: views}
}

func rankedSnap(id string, views int64, rank int) domain.MetricSnapshot {
	s := snap(id, views)
	s.Rank = domain.IntPtr(rank)
	return s
}

type expectation struct {
	id       string
	growth   int64
	rank     int
	prevRank *int
	delta    domain.RankDelta
}

func assertRanked(t *testing.T, got []domain.MetricSnapshot, want []expectation) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i, w := range want {
		g := got[i]
		if g.VideoID != w.id {
			t.Fatalf("position %d: expected %s, got %s", i, w.id, g.VideoID)
		}
		if g.ViewGrowth == nil || *g.ViewGrowth != w.growth {
			t.Fatalf("%s: expected growth %d, got %v", w.id, w.growth, g.ViewGrowth)
		}
		if g.Rank == nil || *g.Rank != w.rank {
			t.Fatalf("%s: expected rank %d, got %v", w.id, w.rank, g.Rank)
		}
		if !reflect.DeepEqual(g.PreviousRank, w.prevRank) {
			t.Fatalf("%s: expected previous rank %v, got %v", w.id, w.prevRank, g.PreviousRank)
		}
		if g.RankDelta == nil || *g.RankDelta != w.delta {
			t.Fatalf("%s: expected delta %s, got %v", w.id, w.delta, g.RankDelta)
		}
	}
}

func TestRankWithoutBaselineMarksEverythingNew(t *testing.T) {
	got, err := Rank([]domain.MetricSnapshot{snap("v1", 100), snap("v2", 50)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertRanked(t, got, []expectation{
		{id: "v1", growth: 100, rank: 1, delta: domain.RankDeltaNew},
		{id: "v2", growth: 50, rank: 2, delta: domain.RankDeltaNew},
	})
}

func TestRankSamePosition(t *testing.T) {
	got, err := Rank(
		[]domain.MetricSnapshot{snap("v1", 150)},
		[]domain.MetricSnapshot{rankedSnap("v1", 100, 1)},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertRanked(t, got, []expectation{
		{id: "v1", growth: 50, rank: 1, prevRank: domain.IntPtr(1), delta: domain.RankDeltaEqual},
	})
}

func TestRankUsesAbsoluteGrowth(t *testing.T) {
	got, err := Rank(
		[]domain.MetricSnapshot{snap("v1", 80), snap("v2", 200)},
		[]domain.MetricSnapshot{rankedSnap("v1", 100, 1), rankedSnap("v2", 50, 2)},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertRanked(t, got, []expectation{
		{id: "v2", growth: 150, rank: 1, prevRank: domain.IntPtr(2), delta: domain.RankDeltaUp},
		{id: "v1", growth: 20, rank: 2, prevRank: domain.IntPtr(1), delta: domain.RankDeltaDown},
	})
}

func TestRankEmptyCurrent(t *testing.T) {
	previous := []domain.MetricSnapshot{rankedSnap("v1", 100, 1)}
	got, err := Rank(nil, previous)
	if !errors.Is(err, apperrors.ErrNoCurrentData) {
		t.Fatalf("expected ErrNoCurrentData, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected no result, got %v", got)
	}
}

func TestRankIsStableOnTies(t *testing.T) {
	current := []domain.MetricSnapshot{snap("c", 10), snap("a", 10), snap("b", 30), snap("d", 10)}
	got, err := Rank(current, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var order []string
	for _, s := range got {
		order = append(order, s.VideoID)
	}
	if !reflect.DeepEqual(order, []string{"b", "c", "a", "d"}) {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestRankMixedBaseline(t *testing.T) {
	// v3 has no match, so it is NEW even though a baseline exists.
	current := []domain.MetricSnapshot{snap("v1", 120), snap("v3", 15)}
	previous := []domain.MetricSnapshot{rankedSnap("v1", 100, 4), rankedSnap("v2", 10, 1)}

	got, err := Rank(current, previous)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertRanked(t, got, []expectation{
		{id: "v1", growth: 20, rank: 1, prevRank: domain.IntPtr(4), delta: domain.RankDeltaUp},
		{id: "v3", growth: 15, rank: 2, delta: domain.RankDeltaNew},
	})
}

func TestRankUnrankedBaselineMatchIsNew(t *testing.T) {
	got, err := Rank(
		[]domain.MetricSnapshot{snap("v1", 150)},
		[]domain.MetricSnapshot{snap("v1", 100)},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertRanked(t, got, []expectation{
		{id: "v1", growth: 50, rank: 1, delta: domain.RankDeltaNew},
	})
}

func TestRankPreservesPrepopulatedGrowth(t *testing.T) {
	withGrowth := snap("v1", 1000)
	withGrowth.ViewGrowth = domain.Int64Ptr(5)
	zeroGrowth := snap("v2", 40)
	zeroGrowth.ViewGrowth = domain.Int64Ptr(0)

	got, err := Rank([]domain.MetricSnapshot{withGrowth, zeroGrowth}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertRanked(t, got, []expectation{
		{id: "v2", growth: 40, rank: 1, delta: domain.RankDeltaNew},
		{id: "v1", growth: 5, rank: 2, delta: domain.RankDeltaNew},
	})

	if got[1].ViewGrowth == withGrowth.ViewGrowth {
		t.Fatal("result shares the input growth pointer")
	}
	*got[1].ViewGrowth = 99
	if *withGrowth.ViewGrowth != 5 {
		t.Fatalf("writing the result changed the input growth to %d", *withGrowth.ViewGrowth)
	}
}

func TestRankDuplicateIDs(t *testing.T) {
	current := []domain.MetricSnapshot{snap("v1", 10), snap("v2", 20), snap("v1", 500)}
	previous := []domain.MetricSnapshot{rankedSnap("v1", 0, 2), rankedSnap("v1", 400, 7)}

	got, err := Rank(current, previous)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertRanked(t, got, []expectation{
		{id: "v1", growth: 100, rank: 1, prevRank: domain.IntPtr(7), delta: domain.RankDeltaUp},
		{id: "v2", growth: 20, rank: 2, delta: domain.RankDeltaNew},
	})
}

func TestRankContiguousRanks(t *testing.T) {
	current := make([]domain.MetricSnapshot, 0, 50)
	for i := 0; i < 50; i++ {
		current = append(current, snap(string(rune('A'+i)), int64((i*37)%11)))
	}
	got, err := Rank(current, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, s := range got {
		if *s.Rank != i+1 {
			t.Fatalf("expected rank %d at position %d, got %d", i+1, i, *s.Rank)
		}
		if i > 0 && *got[i-1].ViewGrowth < *s.ViewGrowth {
			t.Fatalf("growth not descending at position %d", i)
		}
	}
}

func TestRankIsIdempotentAndDoesNotMutateInput(t *testing.T) {
	current := []domain.MetricSnapshot{snap("v1", 80), snap("v2", 200), snap("v3", 5)}
	previous := []domain.MetricSnapshot{rankedSnap("v1", 100, 1), rankedSnap("v2", 50, 2)}

	first, err := Rank(current, previous)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range current {
		if s.Rank != nil || s.ViewGrowth != nil || s.RankDelta != nil {
			t.Fatalf("input %s was mutated", s.VideoID)
		}
	}
	second, err := Rank(current, previous)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results, got %+v and %+v", first, second)
	}
}

func TestClassifyDelta(t *testing.T) {
	cases := []struct {
		rank int
		prev *int
		want domain.RankDelta
	}{
		{rank: 3, prev: nil, want: domain.RankDeltaNew},
		{rank: 3, prev: domain.IntPtr(3), want: domain.RankDeltaEqual},
		{rank: 2, prev: domain.IntPtr(3), want: domain.RankDeltaUp},
		{rank: 4, prev: domain.IntPtr(3), want: domain.RankDeltaDown},
	}
	for _, tc := range cases {
		if got := ClassifyDelta(tc.rank, tc.prev); got != tc.want {
			t.Errorf("ClassifyDelta(%d, %v) = %s, want %s", tc.rank, tc.prev, got, tc.want)
		}
	}
}

func TestViewGrowth(t *testing.T) {
	if ViewGrowth(150, 100) != 50 || ViewGrowth(80, 100) != 20 || ViewGrowth(7, 7) != 0 {
		t.Fatalf("unexpected growth values")
	}
}
