package transcribe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAITranscriber calls the OpenAI audio transcription endpoint. Every call
// is bounded by callTimeout; a hit deadline still unwraps to
// context.DeadlineExceeded so callers can tell timeouts from other failures.
type OpenAITranscriber struct {
	client      *openai.Client
	model       string
	callTimeout time.Duration
}

func NewOpenAITranscriber(apiKey, model string, callTimeout time.Duration) *OpenAITranscriber {
	return &OpenAITranscriber{
		client:      openai.NewClient(apiKey),
		model:       model,
		callTimeout: callTimeout,
	}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if t.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.callTimeout)
		defer cancel()
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", errors.Join(ErrService, fmt.Errorf("openai transcription: %w", err))
	}

	return resp.Text, nil
}
