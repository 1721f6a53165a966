package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL progress store.
// It expects the database and schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL progress store from a
// connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// isUniqueViolation reports whether err is the duplicate-key error raised
// by the unique index on (assessment_id, day_number).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// CompleteDay marks a day complete, awarding points and updating the streak.
func (s *PostgresStore) CompleteDay(ctx context.Context, req *CompleteDayRequest) (*CompleteDayResult, error) {
	var existingID string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM daily_progress WHERE assessment_id = $1 AND day_number = $2",
		req.AssessmentID, req.DayNumber,
	).Scan(&existingID)
	if err == nil {
		return s.alreadyCompleted(ctx, req.UserID)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check existing day: %w", err)
	}

	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_progress (id, user_id, assessment_id, day_number, pain_level, notes, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		uuid.NewString(),
		req.UserID,
		req.AssessmentID,
		req.DayNumber,
		req.PainLevel,
		req.Notes,
		now,
	)
	if err != nil {
		// A concurrent writer logged the same day between the check and
		// our insert; the unique index keeps the award single.
		if isUniqueViolation(err) {
			return s.alreadyCompleted(ctx, req.UserID)
		}
		return nil, fmt.Errorf("failed to insert daily progress: %w", err)
	}

	var (
		totalPoints   int
		currentStreak int
		longestStreak int
		lastDate      sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		SELECT total_points, current_streak, longest_streak, last_completed_date
		FROM progress_profiles WHERE user_id = $1
		FOR UPDATE
	`, req.UserID).Scan(&totalPoints, &currentStreak, &longestStreak, &lastDate)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var lastCompleted *time.Time
	if lastDate.Valid {
		lastCompleted = &lastDate.Time
	}

	newStreak := computeStreak(currentStreak, lastCompleted, now)
	newLongest := longestStreak
	if newStreak > newLongest {
		newLongest = newStreak
	}
	newPoints := totalPoints + PointsPerDay

	_, err = tx.ExecContext(ctx, `
		INSERT INTO progress_profiles (user_id, total_points, current_streak, longest_streak, last_completed_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			total_points = EXCLUDED.total_points,
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			last_completed_date = EXCLUDED.last_completed_date,
			updated_at = EXCLUDED.updated_at
	`,
		req.UserID, newPoints, newStreak, newLongest, now.Format(dateLayout), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO points_log (id, user_id, points, source, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		uuid.NewString(),
		req.UserID,
		PointsPerDay,
		fmt.Sprintf("completed_day_%d", req.DayNumber),
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to log points: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return &CompleteDayResult{
		Success:       true,
		PointsEarned:  PointsPerDay,
		TotalPoints:   newPoints,
		CurrentStreak: newStreak,
		LongestStreak: newLongest,
	}, nil
}

// alreadyCompleted reports current stats without modifying anything.
func (s *PostgresStore) alreadyCompleted(ctx context.Context, userID string) (*CompleteDayResult, error) {
	stats, err := s.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &CompleteDayResult{
		Success:          true,
		TotalPoints:      stats.TotalPoints,
		CurrentStreak:    stats.CurrentStreak,
		LongestStreak:    stats.LongestStreak,
		AlreadyCompleted: true,
	}, nil
}

// CompletedDays returns the day numbers already completed for an assessment.
func (s *PostgresStore) CompletedDays(ctx context.Context, assessmentID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day_number FROM daily_progress
		WHERE assessment_id = $1
		ORDER BY day_number
	`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed days: %w", err)
	}
	defer rows.Close()

	var days []int
	for rows.Next() {
		var day int
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan day: %w", err)
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

// Stats returns the gamification snapshot for a user.
func (s *PostgresStore) Stats(ctx context.Context, userID string) (*Stats, error) {
	var (
		stats    Stats
		lastDate sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT total_points, current_streak, longest_streak, last_completed_date
		FROM progress_profiles WHERE user_id = $1
	`, userID).Scan(&stats.TotalPoints, &stats.CurrentStreak, &stats.LongestStreak, &lastDate)
	if err == sql.ErrNoRows {
		return &Stats{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	if lastDate.Valid {
		stats.LastCompletedDate = &lastDate.Time
	}
	return &stats, nil
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
