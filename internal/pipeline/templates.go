package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/util"
)

const (
	placeholderTopDate    = "@@TOP_DATE@@"
	placeholderHashtags   = "@@HASHTAGS@@"
	placeholderVideoList  = "@@VIDEO_LIST@@"
	placeholderDisclaimer = "@@DISCLAIMER@@"
)

// Templates fills the configured title and description templates.
type Templates struct {
	Title       string
	Description string
	Disclaimer  string
}

// BuildTitle replaces @@TOP_DATE@@ with "[dd/mm/yyyy] #topN" and @@HASHTAGS@@
// with a new line followed by the hashtags.
func (t Templates) BuildTitle(videos []domain.Video, hashtags []string, day time.Time) string {
	title := strings.ReplaceAll(t.Title, placeholderTopDate,
		fmt.Sprintf("[%s] #top%d", util.FormatTopDate(day), len(videos)))
	title = strings.ReplaceAll(title, placeholderHashtags, "\n"+strings.Join(hashtags, " "))
	return strings.TrimSpace(title)
}

// BuildDescription lists every video with its link and channel, followed by
// the disclaimer naming the original publishers.
func (t Templates) BuildDescription(videos []domain.Video, hashtags []string, day time.Time) string {
	var list strings.Builder
	for _, v := range videos {
		fmt.Fprintf(&list, "%d.- %s %s \n", v.RankValue(), v.CleanTitle(), v.URL())
		if v.Channel != nil {
			fmt.Fprintf(&list, "© %s\n\n", v.Channel.Name)
		}
	}

	description := strings.ReplaceAll(t.Description, placeholderTopDate,
		fmt.Sprintf("%s #top%d", day.UTC().Format("02 / 01 / 2006"), len(videos)))
	description = strings.ReplaceAll(description, placeholderVideoList, list.String())
	description = strings.ReplaceAll(description, placeholderHashtags, strings.Join(hashtags, " "))
	description = strings.ReplaceAll(description, placeholderDisclaimer, t.disclaimer(videos))
	return strings.TrimSpace(description)
}

func (t Templates) disclaimer(videos []domain.Video) string {
	seen := make(map[string]struct{})
	var channels []string
	for _, v := range videos {
		if v.Channel == nil || v.Channel.Name == "" {
			continue
		}
		if _, ok := seen[v.Channel.Name]; ok {
			continue
		}
		seen[v.Channel.Name] = struct{}{}
		channels = append(channels, v.Channel.Name)
	}
	sort.Strings(channels)

	text := t.Disclaimer
	if len(channels) > 0 {
		text += "\nOriginal publishers: " + strings.Join(channels, ", ") + "."
	}
	return text
}
