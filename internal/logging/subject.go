package logging

import "strings"

const shortIDLength = 8

// FormatSubject builds the "Batch 1a2b3c4d · Task 2/5" subject used in console output.
func FormatSubject(batchID, taskLabel string) string {
	batchID = strings.TrimSpace(batchID)
	taskLabel = strings.TrimSpace(taskLabel)
	parts := make([]string, 0, 2)
	if batchID != "" {
		parts = append(parts, "Batch "+ShortID(batchID))
	}
	if taskLabel != "" {
		parts = append(parts, "Task "+taskLabel)
	}
	return strings.Join(parts, " · ")
}

// ShortID trims a uuid down to its first block for display.
func ShortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}
