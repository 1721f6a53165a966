// Package progress provides rehab-day completion tracking: daily check-ins
// per assessment, the streak and points bookkeeping they drive, and the
// append-only points ledger.
package progress

import (
	"context"
	"time"
)

// PointsPerDay is awarded once per completed rehab day.
const PointsPerDay = 50

// CompleteDayRequest marks one rehab day done for an assessment.
type CompleteDayRequest struct {
	UserID       string `json:"-"`
	AssessmentID string `json:"assessment_id"`
	DayNumber    int    `json:"day_number"`
	PainLevel    *int   `json:"pain_level,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// CompleteDayResult reports the profile stats after a completion attempt.
// A repeat completion of the same assessment+day sets AlreadyCompleted and
// earns nothing; the stats fields always reflect the stored profile.
type CompleteDayResult struct {
	Success          bool `json:"success"`
	PointsEarned     int  `json:"points_earned"`
	TotalPoints      int  `json:"total_points"`
	CurrentStreak    int  `json:"current_streak"`
	LongestStreak    int  `json:"longest_streak"`
	AlreadyCompleted bool `json:"already_completed"`
}

// Stats is the per-user gamification snapshot.
type Stats struct {
	TotalPoints       int        `json:"total_points"`
	CurrentStreak     int        `json:"current_streak"`
	LongestStreak     int        `json:"longest_streak"`
	LastCompletedDate *time.Time `json:"last_completed_date,omitempty"`
}

// Store defines the interface for progress storage operations.
type Store interface {
	// CompleteDay marks a day complete, awarding points and updating the
	// streak. Completing the same assessment+day again is a no-op that
	// reports the current stats.
	CompleteDay(ctx context.Context, req *CompleteDayRequest) (*CompleteDayResult, error)

	// CompletedDays returns the day numbers already completed for an
	// assessment, ascending.
	CompletedDays(ctx context.Context, assessmentID string) ([]int, error)

	// Stats returns the gamification snapshot for a user. A user with no
	// completions yet gets the zero snapshot.
	Stats(ctx context.Context, userID string) (*Stats, error)

	// Close closes the store and releases resources.
	Close() error
}

// computeStreak applies the consecutive-day rules: completing the day after
// the last completion extends the streak, a repeat on the same calendar day
// keeps it, and any other gap restarts at 1. The first completion ever also
// starts at 1.
func computeStreak(current int, lastCompleted *time.Time, today time.Time) int {
	if lastCompleted == nil {
		return 1
	}
	switch daysBetween(*lastCompleted, today) {
	case 1:
		return current + 1
	case 0:
		return current
	default:
		return 1
	}
}

// daysBetween counts calendar days from one date to another, ignoring the
// time of day.
func daysBetween(from, to time.Time) int {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(toDay.Sub(fromDay).Hours() / 24)
}

const dateLayout = "2006-01-02"
