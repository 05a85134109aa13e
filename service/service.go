package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gustavolhonda/Backend-Liven/config"
	"github.com/gustavolhonda/Backend-Liven/constant"
	"github.com/gustavolhonda/Backend-Liven/dto"
	"github.com/gustavolhonda/Backend-Liven/entities"
	"github.com/gustavolhonda/Backend-Liven/media"
	"github.com/gustavolhonda/Backend-Liven/quota"
	"github.com/gustavolhonda/Backend-Liven/repository"
	"github.com/gustavolhonda/Backend-Liven/storage"
	"github.com/gustavolhonda/Backend-Liven/transcribe"
)

// ErrPersistence marks a job record that could not be created; the upload is
// discarded and the request fails as an internal error.
var ErrPersistence = errors.New("could not persist transcription job")

// Upload is a file the intake layer already wrote to the local filesystem.
type Upload struct {
	FileName  string
	LocalPath string
}

type Service interface {
	Submit(ctx context.Context, userId string, upload Upload) (uuid.UUID, error)
	Process(ctx context.Context, msg dto.JobMessage) error
	Wait()
}

// Converter normalizes input media into the target audio encoding.
type Converter func(ctx context.Context, inputPath, outputPath string) error

// Segmenter slices oversized audio into ordered bounded-duration chunks.
type Segmenter func(ctx context.Context, audioPath, outDir string, maxSegmentSeconds float64) ([]media.Segment, error)

type service struct {
	repo        repository.JobRepository
	gate        *quota.Gate
	store       storage.MediaStore
	transcriber transcribe.Transcriber
	dispatcher  Dispatcher
	cfg         *config.Config
	convert     Converter
	split       Segmenter
	now         func() time.Time
}

type Option func(*service)

// WithDispatcher replaces the default in-process dispatcher, e.g. with the
// AMQP publisher when workers run out of process.
func WithDispatcher(d Dispatcher) Option {
	return func(s *service) {
		s.dispatcher = d
	}
}

func WithConverter(c Converter) Option {
	return func(s *service) {
		s.convert = c
	}
}

func WithSegmenter(sp Segmenter) Option {
	return func(s *service) {
		s.split = sp
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

func NewService(
	repo repository.JobRepository,
	gate *quota.Gate,
	store storage.MediaStore,
	transcriber transcribe.Transcriber,
	cfg *config.Config,
	opts ...Option,
) Service {
	s := &service{
		repo:        repo,
		gate:        gate,
		store:       store,
		transcriber: transcriber,
		cfg:         cfg,
		convert:     media.Convert,
		split:       media.Split,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatcher == nil {
		s.dispatcher = NewInlineDispatcher(s.Process)
	}
	return s
}

// Submit is the synchronous half of the pipeline: store the upload, admit it
// against the daily quota while creating the job record, and dispatch the
// asynchronous half. The caller gets the job id back immediately.
func (s *service) Submit(ctx context.Context, userId string, upload Upload) (uuid.UUID, error) {
	now := s.now()
	jobId := uuid.New()
	objectPath := jobId.String() + filepath.Ext(upload.FileName)

	if err := s.store.Put(ctx, objectPath, upload.LocalPath); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to store uploaded media")
		s.removeLocal(ctx, upload.LocalPath)
		return uuid.Nil, errors.Join(ErrPersistence, err)
	}
	// The store holds the media from here on; the temp upload is done on every
	// outcome, accepted or rejected.
	s.removeLocal(ctx, upload.LocalPath)

	job := &entities.TranscriptionJob{
		ID:               jobId,
		UserID:           userId,
		OriginalFileName: upload.FileName,
		Status:           constant.JobStatusProcessing,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.repo.CreateIfUnderLimit(ctx, job, s.gate.DailyLimit(), quota.StartOfDay(now))
	if errors.Is(err, repository.ErrDailyLimitReached) {
		s.removeStored(ctx, objectPath)
		return uuid.Nil, err
	}
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to create transcription job")
		s.removeStored(ctx, objectPath)
		return uuid.Nil, errors.Join(ErrPersistence, err)
	}

	msg := dto.JobMessage{
		JobId:      jobId,
		UserId:     userId,
		ObjectPath: objectPath,
		FileName:   upload.FileName,
	}
	if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("job_id", jobId.String()).Msg("failed to dispatch job")
		if updateErr := s.repo.SetFailed(ctx, jobId); updateErr != nil {
			zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update job status")
		}
		s.removeStored(ctx, objectPath)
		return uuid.Nil, errors.Join(ErrPersistence, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", jobId.String()).
		Str("user_id", userId).
		Str("file", upload.FileName).
		Msg("transcription job accepted")

	return jobId, nil
}

// Process is the asynchronous half: fetch, convert when needed, segment when
// oversized, transcribe in segment order, persist the terminal state. Every
// failure ends in status failed; temporary artifacts are removed on all paths.
func (s *service) Process(ctx context.Context, msg dto.JobMessage) (err error) {
	zerolog.Ctx(ctx).Info().Str("job_id", msg.JobId.String()).Msg("processing transcription job")

	defer func() {
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("job_id", msg.JobId.String()).Msg("transcription job failed")
			if updateErr := s.repo.SetFailed(ctx, msg.JobId); updateErr != nil {
				zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update job status")
			}
		}
	}()

	// Registered before the cleanup defers so it runs after them: a panic in
	// any stage becomes an error and still lands the job in failed status.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing job: %v", r)
		}
	}()

	tempDir := filepath.Join(s.cfg.Pipeline.TempDir, msg.JobId.String())
	defer os.RemoveAll(tempDir)
	defer s.removeStored(ctx, msg.ObjectPath)

	if err = os.MkdirAll(tempDir, os.ModePerm); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}

	inputPath := filepath.Join(tempDir, msg.FileName)
	if err = s.store.Fetch(ctx, msg.ObjectPath, inputPath); err != nil {
		return fmt.Errorf("fetch media: %w", err)
	}

	audioPath := inputPath
	if media.NeedsConversion(msg.FileName) {
		converted := filepath.Join(tempDir, "audio.mp3")
		zerolog.Ctx(ctx).Info().Str("job_id", msg.JobId.String()).Msg("converting media to mp3")
		if err = s.convert(ctx, inputPath, converted); err != nil {
			return err
		}
		audioPath = converted
	}

	info, statErr := os.Stat(audioPath)
	if statErr != nil {
		err = fmt.Errorf("stat audio: %w", statErr)
		return err
	}

	segments := []media.Segment{{Index: 0, Path: audioPath}}
	if info.Size() > s.cfg.Pipeline.SegmentThresholdBytes {
		zerolog.Ctx(ctx).Info().
			Str("job_id", msg.JobId.String()).
			Int64("size", info.Size()).
			Msg("audio exceeds segmentation threshold, splitting")
		segments, err = s.split(ctx, audioPath, tempDir, s.cfg.Pipeline.MaxSegmentSeconds)
		if err != nil {
			return err
		}
	}

	text, transcribeErr := s.transcribeSegments(ctx, segments)
	if transcribeErr != nil {
		err = transcribeErr
		return err
	}

	if err = s.repo.SetCompleted(ctx, msg.JobId, text); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to update job status")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", msg.JobId.String()).
		Int("segments", len(segments)).
		Msg("transcription job completed")

	return nil
}

// transcribeSegments submits all segments concurrently and assembles the
// texts strictly in segment index order, joined by single spaces. Each
// segment file is deleted as soon as its call returns, whether or not another
// segment fails; one failed segment fails the whole job and keeps no text.
func (s *service) transcribeSegments(ctx context.Context, segments []media.Segment) (string, error) {
	texts := make([]string, len(segments))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := range segments {
		wg.Add(1)
		go func(seg media.Segment) {
			defer wg.Done()

			text, err := s.transcriber.Transcribe(ctx, seg.Path)
			if removeErr := os.Remove(seg.Path); removeErr != nil && !os.IsNotExist(removeErr) {
				zerolog.Ctx(ctx).Warn().Err(removeErr).Str("segment", seg.Path).Msg("failed to remove segment file")
			}
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			texts[seg.Index] = text
		}(segments[i])
	}
	wg.Wait()

	if firstErr != nil {
		return "", firstErr
	}

	return strings.Join(texts, " "), nil
}

func (s *service) Wait() {
	if d, ok := s.dispatcher.(*InlineDispatcher); ok {
		d.Wait()
	}
}

func (s *service) removeLocal(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("failed to remove uploaded file")
	}
}

func (s *service) removeStored(ctx context.Context, objectPath string) {
	if err := s.store.Remove(ctx, objectPath); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("object", objectPath).Msg("failed to remove stored media")
	}
}
