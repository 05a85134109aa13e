package quota

import (
	"context"
	"time"

	"github.com/gustavolhonda/Backend-Liven/repository"
)

// Status is the outcome of a quota read for one user.
type Status struct {
	Limit     int
	Used      int
	Remaining int
	Allowed   bool
}

// Gate answers how much of the daily transcription allowance a user has left.
// It only reads; admission itself is the conditional insert in the repository.
type Gate struct {
	repo  repository.JobRepository
	limit int
}

func NewGate(repo repository.JobRepository, dailyLimit int) *Gate {
	return &Gate{
		repo:  repo,
		limit: dailyLimit,
	}
}

func (g *Gate) DailyLimit() int {
	return g.limit
}

// StartOfDay truncates now to midnight of its calendar day, keeping the
// location. Jobs created exactly at midnight belong to the new day.
func StartOfDay(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (g *Gate) Remaining(ctx context.Context, userId string, now time.Time) (Status, error) {
	count, err := g.repo.CountSince(ctx, userId, StartOfDay(now))
	if err != nil {
		return Status{}, err
	}

	used := int(count)
	remaining := g.limit - used
	if remaining < 0 {
		remaining = 0
	}

	return Status{
		Limit:     g.limit,
		Used:      used,
		Remaining: remaining,
		Allowed:   used < g.limit,
	}, nil
}
