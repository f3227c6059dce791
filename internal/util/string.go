package util

import "strings"

// TruncateRunes cuts s to at most maxRunes runes without a suffix.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

// LimitTags keeps the first max non-empty tags.
func LimitTags(tags []string, max int) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if len(out) >= max {
			break
		}
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
