package fetch

import (
	"fmt"
	"os"
	"time"

	"github.com/tcolgate/mp3"
)

// ProbeDuration sums the frame durations of an MP3 file.
func ProbeDuration(path string) (time.Duration, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	d := mp3.NewDecoder(file)
	var (
		duration time.Duration
		frame    mp3.Frame
		frames   int
	)
	skipped := 0
	for {
		if err := d.Decode(&frame, &skipped); err != nil {
			break
		}
		duration += frame.Duration()
		frames++
	}
	if frames == 0 {
		return 0, fmt.Errorf("no mp3 frames in %s", path)
	}
	return duration, nil
}
