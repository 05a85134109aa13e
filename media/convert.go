package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrConversion marks a failure to normalize the uploaded media to mp3.
var ErrConversion = errors.New("media conversion failed")

// passthroughExts are already in the encoding the transcription service
// accepts; everything else goes through ffmpeg first.
var passthroughExts = map[string]bool{
	".mp3": true,
}

// NeedsConversion decides by extension whether the upload must be normalized
// before transcription.
func NeedsConversion(filename string) bool {
	return !passthroughExts[strings.ToLower(filepath.Ext(filename))]
}

// Convert transforms the input media into an mp3 file at outputPath. The
// input file is left in place.
func Convert(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ar", "44100",
		"-ac", "2",
		"-b:a", "192k",
		"-f", "mp3",
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Join(ErrConversion, fmt.Errorf("ffmpeg: %w\noutput: %s", err, string(output)))
	}

	return nil
}
