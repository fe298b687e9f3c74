package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/tcolgate/mp3"
)

// WriteSilentMP3 writes a decodable MP3 made of the requested number of
// silent frames. frames <= 0 writes a single frame.
func WriteSilentMP3(t testing.TB, path string, frames int) {
	t.Helper()

	if frames <= 0 {
		frames = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat(mp3.SilentBytes, frames), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
