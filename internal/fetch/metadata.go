package fetch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// videoInfo is the subset of the yt-dlp info JSON mixtape reads.
type videoInfo struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Uploader string  `json:"uploader"`
	Channel  string  `json:"channel"`
	Duration float64 `json:"duration"`
	Ext      string  `json:"ext"`
}

func (v videoInfo) artist() string {
	if s := strings.TrimSpace(v.Uploader); s != "" {
		return s
	}
	return strings.TrimSpace(v.Channel)
}

func readInfo(dir string) (videoInfo, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.info.json"))
	if err != nil {
		return videoInfo{}, err
	}
	if len(matches) == 0 {
		return videoInfo{}, errors.New("yt-dlp wrote no metadata")
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return videoInfo{}, fmt.Errorf("read metadata: %w", err)
	}
	var info videoInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return videoInfo{}, fmt.Errorf("decode metadata: %w", err)
	}
	return info, nil
}

// findAudio returns the transcoded file, preferring the requested format.
func findAudio(dir, format string) (string, error) {
	if format != "" {
		matches, err := filepath.Glob(filepath.Join(dir, outputStem+"."+format))
		if err == nil && len(matches) > 0 {
			return matches[0], nil
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read temp dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".part") {
			continue
		}
		return filepath.Join(dir, name), nil
	}
	return "", errors.New("yt-dlp produced no audio file")
}
