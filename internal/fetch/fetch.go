package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"mixtape/internal/config"
	"mixtape/internal/fileutil"
	"mixtape/internal/logging"
	"mixtape/internal/textutil"
)

// outputStem is the yt-dlp output name inside the per-fetch temp directory.
// The final name is derived from the title once metadata is known.
const outputStem = "audio"

// Result is the outcome of a successful fetch.
type Result struct {
	Title    string
	Artist   string
	Duration int
	Filename string
	Filepath string
}

// CommandRunner executes an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Runner downloads audio with yt-dlp and transcodes it with ffmpeg. It keeps
// no per-call state and is safe for concurrent use.
type Runner struct {
	binary      string
	ffmpeg      string
	format      string
	quality     string
	cookies     string
	timeout     time.Duration
	downloadDir string
	tempRoot    string
	run         CommandRunner
	logger      *slog.Logger
}

// Option customises a Runner.
type Option func(*Runner)

// WithCommandRunner replaces the exec-based runner, mainly for tests.
func WithCommandRunner(run CommandRunner) Option {
	return func(r *Runner) {
		if run != nil {
			r.run = run
		}
	}
}

// WithTempRoot sets the parent directory for per-fetch scratch space.
func WithTempRoot(dir string) Option {
	return func(r *Runner) { r.tempRoot = dir }
}

// New builds a Runner from the fetch section of cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		binary:      cfg.Fetch.YTDLPBinary,
		ffmpeg:      cfg.Fetch.FFmpegBinary,
		format:      cfg.Fetch.AudioFormat,
		quality:     cfg.Fetch.AudioQuality,
		cookies:     cfg.Fetch.CookiesFile,
		downloadDir: cfg.Paths.DownloadDir,
		run:         execCommand,
		logger:      logging.NewComponentLogger(logger, "fetch"),
	}
	if cfg.Fetch.TimeoutSeconds > 0 {
		r.timeout = time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch downloads url into the download directory and returns the extracted
// metadata. The audio is fetched into a private temp directory first so a
// failed run never leaves partial files in the library.
func (r *Runner) Fetch(ctx context.Context, url string) (Result, error) {
	if strings.TrimSpace(url) == "" {
		return Result{}, errors.New("empty url")
	}
	tempDir, err := os.MkdirTemp(r.tempRoot, "mixtape-fetch-*")
	if err != nil {
		return Result{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	started := time.Now()
	output, err := r.run(runCtx, r.binary, r.args(tempDir, url)...)
	if err != nil {
		if ctxErr := runCtx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) && ctx.Err() == nil {
			return Result{}, fmt.Errorf("yt-dlp timed out after %s", r.timeout)
		}
		return Result{}, fmt.Errorf("yt-dlp failed: %w: %s", err, failureDetail(output))
	}

	info, err := readInfo(tempDir)
	if err != nil {
		return Result{}, err
	}
	audioPath, err := findAudio(tempDir, r.format)
	if err != nil {
		return Result{}, err
	}

	name := textutil.SanitizeFileName(info.Title)
	if name == "" {
		name = textutil.SanitizeFileName(info.ID)
	}
	if name == "" {
		name = outputStem
	}
	target, err := fileutil.UniquePath(filepath.Join(r.downloadDir, name+filepath.Ext(audioPath)))
	if err != nil {
		return Result{}, fmt.Errorf("choose output name: %w", err)
	}
	if err := fileutil.MoveFile(audioPath, target); err != nil {
		return Result{}, fmt.Errorf("move audio into library: %w", err)
	}

	duration := int(math.Round(info.Duration))
	if duration <= 0 && strings.EqualFold(filepath.Ext(target), ".mp3") {
		if probed, probeErr := ProbeDuration(target); probeErr == nil {
			duration = int(math.Round(probed.Seconds()))
		} else {
			r.logger.Debug("mp3 duration probe failed", logging.String("path", target), logging.Error(probeErr))
		}
	}

	result := Result{
		Title:    strings.TrimSpace(info.Title),
		Artist:   info.artist(),
		Duration: duration,
		Filename: filepath.Base(target),
		Filepath: target,
	}
	r.logger.Debug("fetch finished",
		logging.String("url", url),
		logging.String("file", result.Filename),
		logging.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

func (r *Runner) args(tempDir, url string) []string {
	args := []string{
		"--no-playlist",
		"--no-progress",
		"--newline",
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", r.format,
		"--audio-quality", audioQuality(r.quality),
		"--write-info-json",
		"-o", filepath.Join(tempDir, outputStem+".%(ext)s"),
	}
	if strings.ContainsRune(r.ffmpeg, filepath.Separator) {
		args = append(args, "--ffmpeg-location", r.ffmpeg)
	}
	if r.cookies != "" {
		args = append(args, "--cookies", r.cookies)
	}
	return append(args, url)
}

// audioQuality turns a bare bitrate such as "192" into yt-dlp's "192K" form.
// VBR levels 0-9 pass through unchanged.
func audioQuality(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= 1 {
		return value
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return value
		}
	}
	return value + "K"
}

// failureDetail picks the most useful line from yt-dlp output: the last
// "ERROR:" line, or failing that the last non-empty line.
func failureDetail(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	last := ""
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if last == "" {
			last = line
		}
		if strings.HasPrefix(line, "ERROR:") {
			return textutil.SanitizeText(line, 500)
		}
	}
	if last == "" {
		return "no output"
	}
	return textutil.SanitizeText(last, 500)
}
