package service

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gustavolhonda/Backend-Liven/dto"
)

// Dispatcher hands an accepted job to whatever runs the asynchronous half of
// the pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg dto.JobMessage) error
}

// InlineDispatcher runs processing in supervised goroutines inside the API
// process. Goroutines are detached from the request lifetime but never from
// supervision: panics are recovered, errors land in the log, and Wait lets
// shutdown and tests observe completion.
type InlineDispatcher struct {
	process func(ctx context.Context, msg dto.JobMessage) error
	wg      sync.WaitGroup
}

func NewInlineDispatcher(process func(ctx context.Context, msg dto.JobMessage) error) *InlineDispatcher {
	return &InlineDispatcher{
		process: process,
	}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, msg dto.JobMessage) error {
	// The request context dies with the response; processing keeps its values
	// (logger) but not its cancellation.
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				zerolog.Ctx(ctx).Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Str("job_id", msg.JobId.String()).
					Msg("panic while processing transcription job")
			}
		}()

		if err := d.process(ctx, msg); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("job_id", msg.JobId.String()).Msg("background processing error")
		}
	}()

	return nil
}

// Wait blocks until every dispatched job has finished.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
