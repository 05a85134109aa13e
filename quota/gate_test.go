package quota

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gustavolhonda/Backend-Liven/constant"
	"github.com/gustavolhonda/Backend-Liven/entities"
	"github.com/gustavolhonda/Backend-Liven/repository"
)

func newTestGate(t *testing.T, limit int) (*Gate, repository.JobRepository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&entities.TranscriptionJob{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := repository.NewRepoWithDB(db)
	return NewGate(repo, limit), repo
}

func createJobAt(t *testing.T, repo repository.JobRepository, userId string, createdAt time.Time) {
	t.Helper()
	job := &entities.TranscriptionJob{
		ID:               uuid.New(),
		UserID:           userId,
		OriginalFileName: "audio.mp3",
		Status:           constant.JobStatusProcessing,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
	if err := repo.GetDB().Create(job).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}
}

func TestStartOfDay(t *testing.T) {
	now := time.Date(2025, 3, 10, 17, 42, 13, 999, time.UTC)
	want := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if got := StartOfDay(now); !got.Equal(want) {
		t.Fatalf("StartOfDay = %v, want %v", got, want)
	}
}

// TestRemaining walks the counter through and past the limit; remaining must
// clamp at zero even when more jobs exist than the limit allows.
func TestRemaining(t *testing.T) {
	gate, repo := newTestGate(t, 5)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		jobsToday int
		remaining int
		allowed   bool
	}{
		{0, 5, true},
		{1, 4, true},
		{4, 1, true},
		{5, 0, false},
		{7, 0, false},
	}

	created := 0
	for _, tc := range cases {
		for created < tc.jobsToday {
			createJobAt(t, repo, "user-1", now.Add(time.Duration(created)*time.Minute))
			created++
		}

		status, err := gate.Remaining(ctx, "user-1", now)
		if err != nil {
			t.Fatalf("remaining with %d jobs: %v", tc.jobsToday, err)
		}
		if status.Remaining != tc.remaining {
			t.Fatalf("jobs=%d remaining = %d, want %d", tc.jobsToday, status.Remaining, tc.remaining)
		}
		if status.Allowed != tc.allowed {
			t.Fatalf("jobs=%d allowed = %v, want %v", tc.jobsToday, status.Allowed, tc.allowed)
		}
		if status.Used != tc.jobsToday {
			t.Fatalf("jobs=%d used = %d", tc.jobsToday, status.Used)
		}
	}
}

// TestRemainingIgnoresOtherDaysAndUsers pins the window lower bound and the
// per-user scoping.
func TestRemainingIgnoresOtherDaysAndUsers(t *testing.T) {
	gate, repo := newTestGate(t, 5)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	createJobAt(t, repo, "user-1", now.AddDate(0, 0, -1)) // yesterday
	createJobAt(t, repo, "user-2", now)                   // someone else
	createJobAt(t, repo, "user-1", StartOfDay(now))       // exactly midnight, counts

	status, err := gate.Remaining(ctx, "user-1", now)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if status.Used != 1 {
		t.Fatalf("used = %d, want 1", status.Used)
	}
	if status.Remaining != 4 {
		t.Fatalf("remaining = %d, want 4", status.Remaining)
	}
}
