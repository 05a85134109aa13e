package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gustavolhonda/Backend-Liven/constant"
	"github.com/gustavolhonda/Backend-Liven/entities"
)

// ErrDailyLimitReached is returned by CreateIfUnderLimit when the user already
// owns `limit` jobs created at or after the window start.
var ErrDailyLimitReached = errors.New("daily transcription limit reached")

// ErrNotFound covers both a missing job id and a job owned by another user,
// so lookups never leak whether a foreign id exists.
var ErrNotFound = errors.New("transcription job not found")

type JobRepository interface {
	Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error
	GetDB() *gorm.DB
	CreateIfUnderLimit(ctx context.Context, job *entities.TranscriptionJob, limit int, since time.Time) error
	SetCompleted(ctx context.Context, id uuid.UUID, text string) error
	SetFailed(ctx context.Context, id uuid.UUID) error
	FindByIdForUser(ctx context.Context, id uuid.UUID, userId string) (*entities.TranscriptionJob, error)
	CountSince(ctx context.Context, userId string, since time.Time) (int64, error)
	ListByUser(ctx context.Context, userId string) ([]*entities.TranscriptionJob, error)
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) JobRepository {
	gormDB, _ := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	return &repo{
		db: gormDB,
	}
}

// NewRepoWithDB wraps an already-open gorm handle. Used by tests.
func NewRepoWithDB(db *gorm.DB) JobRepository {
	return &repo{db: db}
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

func (r *repo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return r.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return callback(ctx)
	}, opts...)
}

// CreateIfUnderLimit counts the user's jobs since `since` and inserts the new
// record inside the same transaction, so concurrent submissions near the limit
// cannot admit more jobs than allowed.
func (r *repo) CreateIfUnderLimit(ctx context.Context, job *entities.TranscriptionJob, limit int, since time.Time) error {
	return r.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Under READ COMMITTED two transactions racing at count = limit-1 would
		// both read the stale count and both insert. The advisory lock holds
		// until commit and serializes admissions per user. SQLite allows a
		// single writer at a time, so the transaction alone suffices there.
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", job.UserID).Error; err != nil {
				return err
			}
		}

		var count int64
		err := tx.Model(&entities.TranscriptionJob{}).
			Where("user_id = ? AND created_at >= ?", job.UserID, since).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count >= int64(limit) {
			return ErrDailyLimitReached
		}
		return tx.Create(job).Error
	})
}

// SetCompleted stores the assembled text and moves the job to its terminal
// completed status. Jobs already in a terminal status are left untouched.
func (r *repo) SetCompleted(ctx context.Context, id uuid.UUID, text string) error {
	return r.GetDB().WithContext(ctx).
		Model(&entities.TranscriptionJob{}).
		Where("id = ? AND status = ?", id, constant.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":             constant.JobStatusCompleted,
			"transcription_text": text,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *repo) SetFailed(ctx context.Context, id uuid.UUID) error {
	return r.GetDB().WithContext(ctx).
		Model(&entities.TranscriptionJob{}).
		Where("id = ? AND status = ?", id, constant.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":     constant.JobStatusFailed,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repo) FindByIdForUser(ctx context.Context, id uuid.UUID, userId string) (*entities.TranscriptionJob, error) {
	job := &entities.TranscriptionJob{}
	err := r.GetDB().WithContext(ctx).
		First(job, "id = ? AND user_id = ?", id, userId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (r *repo) CountSince(ctx context.Context, userId string, since time.Time) (int64, error) {
	var count int64
	err := r.GetDB().WithContext(ctx).
		Model(&entities.TranscriptionJob{}).
		Where("user_id = ? AND created_at >= ?", userId, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) ListByUser(ctx context.Context, userId string) ([]*entities.TranscriptionJob, error) {
	var jobs []*entities.TranscriptionJob
	err := r.GetDB().WithContext(ctx).
		Where("user_id = ?", userId).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
