package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// VideoMetadata is the descriptive data of a video, upserted on every fetch.
type VideoMetadata struct {
	VideoID         string   `json:"video_id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Channel         *Channel `json:"channel,omitempty"`
	DurationSeconds int64    `json:"duration_seconds"`
}

// EnrichedSnapshot is a snapshot joined with its metadata. Metadata is nil when
// no metadata row exists.
type EnrichedSnapshot struct {
	MetricSnapshot
	Metadata *VideoMetadata `json:"metadata,omitempty"`
}

// Video is the display record produced by the top list.
type Video struct {
	VideoID         string     `json:"video_id"`
	Views           int64      `json:"views"`
	Likes           int64      `json:"likes"`
	ViewGrowth      *int64     `json:"view_growth,omitempty"`
	Rank            *int       `json:"rank,omitempty"`
	RankDelta       *RankDelta `json:"rank_delta,omitempty"`
	PreviousRank    *int       `json:"previous_rank,omitempty"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Channel         *Channel   `json:"channel,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
}

// NewVideo maps a ranked snapshot and its metadata (may be nil) to a Video.
func NewVideo(snap MetricSnapshot, meta *VideoMetadata) Video {
	v := Video{
		VideoID:      snap.VideoID,
		Views:        snap.Views,
		Likes:        snap.Likes,
		ViewGrowth:   snap.ViewGrowth,
		Rank:         snap.Rank,
		RankDelta:    snap.RankDelta,
		PreviousRank: snap.PreviousRank,
	}
	if meta != nil {
		v.Title = meta.Title
		v.Description = meta.Description
		v.Channel = meta.Channel
		v.DurationSeconds = meta.DurationSeconds
	}
	return v
}

func (v Video) URL() string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", v.VideoID)
}

func (v Video) ThumbnailURL() string {
	return fmt.Sprintf("https://i.ytimg.com/vi/%s/maxresdefault.jpg", v.VideoID)
}

// RankValue returns the rank or 0 when unranked.
func (v Video) RankValue() int {
	if v.Rank == nil {
		return 0
	}
	return *v.Rank
}

// GrowthValue returns the view growth or 0 when unset.
func (v Video) GrowthValue() int64 {
	if v.ViewGrowth == nil {
		return 0
	}
	return *v.ViewGrowth
}

// Delta returns the rank delta, NEW when unset.
func (v Video) Delta() RankDelta {
	if v.RankDelta == nil {
		return RankDeltaNew
	}
	return *v.RankDelta
}

// Applied in order: "(Full )" only appears once "Full Video" and "Full Song"
// have been removed from "(Full Video)".
var titleReplacements = []struct{ old, new string }{
	{"(Video)", ""},
	{"(Music Video)", ""},
	{"Official Video", ""},
	{"#Video", ""},
	{"Full Video", ""},
	{"(video)", ""},
	{"Full Song", ""},
	{" - ", " "},
	{"()", ""},
	{"( )", ""},
	{"(Full )", ""},
	{": ", " "},
	{"  ", " "},
}

// CleanTitle strips the usual "official video" noise from a title.
func (v Video) CleanTitle() string {
	return CleanTitle(v.Title)
}

func CleanTitle(title string) string {
	for _, r := range titleReplacements {
		title = strings.ReplaceAll(title, r.old, r.new)
	}
	return strings.TrimSpace(title)
}

var hashtagPattern = regexp.MustCompile(`#(\w+)`)

// Hashtags returns the hashtags found in the description, each prefixed with #.
func (v Video) Hashtags() []string {
	matches := hashtagPattern.FindAllStringSubmatch(v.Description, -1)
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, "#"+m[1])
	}
	return tags
}

// CollectHashtags returns the distinct hashtags of all videos, sorted.
func CollectHashtags(videos []Video) []string {
	seen := make(map[string]struct{})
	for _, v := range videos {
		for _, tag := range v.Hashtags() {
			seen[tag] = struct{}{}
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
