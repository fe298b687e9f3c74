package links

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const videoBaseURL = "https://www.bilibili.com/video/"

var (
	videoURLPattern = regexp.MustCompile(`^https?://(www\.)?bilibili\.com/video/((BV|bv)[a-zA-Z0-9]{10})`)
	shortURLPattern = regexp.MustCompile(`^https?://b23\.tv/[a-zA-Z0-9]+`)
	bvidPattern     = regexp.MustCompile(`^(BV|bv)[a-zA-Z0-9]{10}$`)
	avidPattern     = regexp.MustCompile(`^(av|AV)\d+$`)

	sharePatterns = []*regexp.Regexp{
		regexp.MustCompile(`【.*?】\s*(https?://(www\.)?(bilibili\.com|b23\.tv)[^\s]+)`),
		regexp.MustCompile(`\[.*?\]\s*(https?://(www\.)?(bilibili\.com|b23\.tv)[^\s]+)`),
	}
)

// IsValid reports whether value is a recognised Bilibili link or video id.
func IsValid(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	return videoURLPattern.MatchString(value) ||
		shortURLPattern.MatchString(value) ||
		bvidPattern.MatchString(value) ||
		avidPattern.MatchString(value)
}

// Extract returns the fetchable URL contained in text, or "" when none is
// found. Share text of the form "【title】 https://b23.tv/xyz?p=1" yields the
// link with query and fragment removed; bare BV and av ids are expanded to
// full video URLs.
func Extract(text string) string {
	text = normalize(text)
	if text == "" {
		return ""
	}
	for _, pattern := range sharePatterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			return stripQuery(match[1])
		}
	}
	if IsValid(text) {
		return canonical(text)
	}
	return ""
}

func normalize(text string) string {
	return strings.TrimSpace(norm.NFKC.String(text))
}

func stripQuery(link string) string {
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	return link
}

func canonical(value string) string {
	switch {
	case bvidPattern.MatchString(value):
		return videoBaseURL + value
	case avidPattern.MatchString(value):
		return videoBaseURL + "av" + value[2:]
	default:
		return value
	}
}
