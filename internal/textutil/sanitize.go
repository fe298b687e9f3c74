package textutil

import (
	"regexp"
	"strings"
)

var (
	unsafeFileChars = regexp.MustCompile(`[\\/*?:"<>|]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	controlChars    = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)
)

// maxFileNameBytes keeps names under the common 255 byte limit once an
// extension and a collision suffix are appended.
const maxFileNameBytes = 200

// SanitizeFileName removes characters that are unsafe in file names, collapses
// whitespace and strips leading and trailing dots. Names longer than
// maxFileNameBytes are cut on a rune boundary.
func SanitizeFileName(name string) string {
	cleaned := controlChars.ReplaceAllString(name, "")
	cleaned = unsafeFileChars.ReplaceAllString(cleaned, "")
	cleaned = whitespaceRun.ReplaceAllString(cleaned, " ")
	cleaned = strings.Trim(strings.TrimSpace(cleaned), ".")
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) <= maxFileNameBytes {
		return cleaned
	}
	cut := 0
	for i := range cleaned {
		if i > maxFileNameBytes {
			break
		}
		cut = i
	}
	return strings.TrimSpace(cleaned[:cut])
}

// SanitizeText strips control characters and limits value to maxRunes.
func SanitizeText(value string, maxRunes int) string {
	cleaned := controlChars.ReplaceAllString(value, "")
	if maxRunes > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxRunes {
			cleaned = string(runes[:maxRunes])
		}
	}
	return strings.TrimSpace(cleaned)
}
