package transcribe

import (
	"context"
	"errors"
)

// ErrService marks a failed call to the external speech-to-text service,
// including per-call timeouts.
var ErrService = errors.New("transcription service call failed")

// Transcriber submits one audio file and returns the recognized text verbatim.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}
