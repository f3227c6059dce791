package pipeline

import (
	"testing"
	"time"

	"github.com/kapu/top-music-bot-go/internal/domain"
)

func templateVideos() []domain.Video {
	return []domain.Video{
		{VideoID: "a", Rank: domain.IntPtr(1), Title: "Artist - Song (Music Video)", Channel: &domain.Channel{Name: "Chan A"}},
		{VideoID: "b", Rank: domain.IntPtr(2), Title: "Song B"},
	}
}

func TestBuildTitle(t *testing.T) {
	tpl := Templates{Title: "Top @@TOP_DATE@@ @@HASHTAGS@@"}
	day := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)

	got := tpl.BuildTitle(templateVideos(), []string{"#pop", "#rock"}, day)
	want := "Top [08/05/2024] #top2 \n#pop #rock"
	if got != want {
		t.Fatalf("BuildTitle = %q, want %q", got, want)
	}
}

func TestBuildDescription(t *testing.T) {
	tpl := Templates{
		Description: "@@TOP_DATE@@\n@@VIDEO_LIST@@@@DISCLAIMER@@",
		Disclaimer:  "Clips belong to their owners.",
	}
	day := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)

	got := tpl.BuildDescription(templateVideos(), nil, day)
	want := "08 / 05 / 2024 #top2\n" +
		"1.- Artist Song https://www.youtube.com/watch?v=a \n© Chan A\n\n" +
		"2.- Song B https://www.youtube.com/watch?v=b \n" +
		"Clips belong to their owners.\nOriginal publishers: Chan A."
	if got != want {
		t.Fatalf("BuildDescription = %q, want %q", got, want)
	}
}
