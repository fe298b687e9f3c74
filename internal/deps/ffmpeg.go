package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

const ffmpegDescription = "Used by yt-dlp to extract and transcode audio"

// CheckFFmpegForYTDLP reports the ffmpeg binary yt-dlp will execute.
//
// A configured path is passed to yt-dlp with --ffmpeg-location and must exist
// as given. A bare command name is resolved next to the yt-dlp executable
// first and then on PATH, the same order yt-dlp searches.
func CheckFFmpegForYTDLP(ffmpegCommand, ytdlpCommand string) Status {
	result := Status{
		Name:        "FFmpeg",
		Description: ffmpegDescription,
	}

	name := strings.TrimSpace(ffmpegCommand)
	if name == "" {
		name = "ffmpeg"
	}
	if strings.ContainsRune(name, filepath.Separator) {
		result.Command = name
		if info, err := os.Stat(name); err == nil && isExecutable(info) {
			result.Available = true
			return result
		}
		result.Detail = fmt.Sprintf("configured ffmpeg %q is not executable", name)
		return result
	}

	if ytdlp := strings.TrimSpace(ytdlpCommand); ytdlp != "" {
		if resolved, err := exec.LookPath(ytdlp); err == nil {
			candidate := sidecarCandidate(resolved, name)
			if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
				result.Command = candidate
				result.Available = true
				return result
			}
		}
	}

	if ffmpegPath, err := exec.LookPath(name); err == nil {
		result.Command = ffmpegPath
		result.Available = true
		return result
	}

	result.Command = name
	result.Detail = fmt.Sprintf("binary %q not found", name)
	return result
}

func sidecarCandidate(ytdlpPath, name string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(name, ".exe") {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(ytdlpPath), name)
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
