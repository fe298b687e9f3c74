package links

import "strings"

// InvalidLine describes an input line that did not yield a link.
type InvalidLine struct {
	LineNumber int    `json:"line_number"`
	Content    string `json:"content"`
	Reason     string `json:"reason"`
}

// Report is the per-line validation result for a pasted URL list.
type Report struct {
	ValidURLs    []string      `json:"valid_urls"`
	InvalidLines []InvalidLine `json:"invalid_lines"`
	TotalValid   int           `json:"total_valid"`
	TotalInvalid int           `json:"total_invalid"`
}

const reasonUnrecognised = "not a recognised Bilibili link"

// ParseList splits text into lines, extracts one link per line and drops
// duplicates, keeping the first occurrence.
func ParseList(text string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, line := range splitLines(text) {
		link := Extract(line)
		if link == "" {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	return out
}

// Validate reports which lines of text yield links. Blank lines are ignored
// and line numbers are 1-based.
func Validate(text string) Report {
	report := Report{ValidURLs: []string{}, InvalidLines: []InvalidLine{}}
	for i, line := range splitLines(text) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if link := Extract(trimmed); link != "" {
			report.ValidURLs = append(report.ValidURLs, link)
			continue
		}
		report.InvalidLines = append(report.InvalidLines, InvalidLine{
			LineNumber: i + 1,
			Content:    trimmed,
			Reason:     reasonUnrecognised,
		})
	}
	report.TotalValid = len(report.ValidURLs)
	report.TotalInvalid = len(report.InvalidLines)
	return report
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}
