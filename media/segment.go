package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// ErrSegmentation marks a failure while probing or slicing oversized audio.
var ErrSegmentation = errors.New("audio segmentation failed")

// Segment is one bounded-duration slice of a job's audio. Segments are
// ephemeral; the orchestrator deletes each file once its text is obtained.
type Segment struct {
	Index           int
	Path            string
	StartSeconds    float64
	DurationSeconds float64
}

type window struct {
	start    float64
	duration float64
}

// planWindows covers [0, total) with consecutive windows of at most max
// seconds. The last window absorbs the remainder.
func planWindows(total, max float64) []window {
	n := int(math.Ceil(total / max))
	windows := make([]window, 0, n)
	for i := 0; i < n; i++ {
		start := float64(i) * max
		end := math.Min(start+max, total)
		windows = append(windows, window{start: start, duration: end - start})
	}
	return windows
}

// Seams for tests that exercise Split without ffmpeg/ffprobe on the PATH.
var (
	probe   = ProbeDuration
	extract = extractSegment
)

// Split slices audioPath into segments of at most maxSegmentSeconds, written
// under outDir. Extraction runs concurrently but the returned slice is ordered
// by index, since segment texts are later concatenated in sequence. On any
// failure every segment file written so far is removed.
func Split(ctx context.Context, audioPath, outDir string, maxSegmentSeconds float64) ([]Segment, error) {
	duration, err := probe(ctx, audioPath)
	if err != nil {
		return nil, errors.Join(ErrSegmentation, err)
	}

	windows := planWindows(duration, maxSegmentSeconds)
	segments := make([]Segment, len(windows))
	ext := filepath.Ext(audioPath)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, w := range windows {
		segments[i] = Segment{
			Index:           i,
			Path:            filepath.Join(outDir, fmt.Sprintf("segment_%03d%s", i, ext)),
			StartSeconds:    w.start,
			DurationSeconds: w.duration,
		}

		wg.Add(1)
		go func(seg Segment) {
			defer wg.Done()
			if err := extract(ctx, audioPath, seg); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(segments[i])
	}
	wg.Wait()

	if firstErr != nil {
		for _, seg := range segments {
			_ = os.Remove(seg.Path)
		}
		return nil, errors.Join(ErrSegmentation, firstErr)
	}

	return segments, nil
}

func extractSegment(ctx context.Context, audioPath string, seg Segment) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-ss", fmt.Sprintf("%.3f", seg.StartSeconds),
		"-t", fmt.Sprintf("%.3f", seg.DurationSeconds),
		"-i", audioPath,
		"-c", "copy",
		seg.Path,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg segment %d: %w\noutput: %s", seg.Index, err, string(output))
	}

	return nil
}
