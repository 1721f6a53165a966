package progress

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite progress store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode keeps readers unblocked during completion writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS daily_progress (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		assessment_id TEXT NOT NULL,
		day_number INTEGER NOT NULL,
		pain_level INTEGER,
		notes TEXT DEFAULT '',
		completed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(assessment_id, day_number)
	);

	CREATE TABLE IF NOT EXISTS progress_profiles (
		user_id TEXT PRIMARY KEY,
		total_points INTEGER NOT NULL DEFAULT 0,
		current_streak INTEGER NOT NULL DEFAULT 0,
		longest_streak INTEGER NOT NULL DEFAULT 0,
		last_completed_date TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS points_log (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		points INTEGER NOT NULL,
		source TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_daily_progress_assessment ON daily_progress(assessment_id);
	CREATE INDEX IF NOT EXISTS idx_points_log_user ON points_log(user_id);
	`

	_, err := db.Exec(schema)
	return err
}

// CompleteDay marks a day complete, awarding points and updating the streak.
func (s *SQLiteStore) CompleteDay(ctx context.Context, req *CompleteDayRequest) (*CompleteDayResult, error) {
	// Check if this day is already logged for the assessment
	var existingID string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM daily_progress WHERE assessment_id = ? AND day_number = ?",
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
		VALUES (?, ?, ?, ?, ?, ?, ?)
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
		// our insert; the unique constraint keeps the award single.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return s.alreadyCompleted(ctx, req.UserID)
		}
		return nil, fmt.Errorf("failed to insert daily progress: %w", err)
	}

	var (
		totalPoints   int
		currentStreak int
		longestStreak int
		lastDateStr   sql.NullString
	)
	err = tx.QueryRowContext(ctx, `
		SELECT total_points, current_streak, longest_streak, last_completed_date
		FROM progress_profiles WHERE user_id = ?
	`, req.UserID).Scan(&totalPoints, &currentStreak, &longestStreak, &lastDateStr)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var lastCompleted *time.Time
	if lastDateStr.Valid {
		if parsed, perr := time.Parse(dateLayout, lastDateStr.String); perr == nil {
			lastCompleted = &parsed
		}
	}

	newStreak := computeStreak(currentStreak, lastCompleted, now)
	newLongest := longestStreak
	if newStreak > newLongest {
		newLongest = newStreak
	}
	newPoints := totalPoints + PointsPerDay

	_, err = tx.ExecContext(ctx, `
		INSERT INTO progress_profiles (user_id, total_points, current_streak, longest_streak, last_completed_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_points = excluded.total_points,
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			last_completed_date = excluded.last_completed_date,
			updated_at = excluded.updated_at
	`,
		req.UserID, newPoints, newStreak, newLongest, now.Format(dateLayout), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO points_log (id, user_id, points, source, created_at)
		VALUES (?, ?, ?, ?, ?)
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
func (s *SQLiteStore) alreadyCompleted(ctx context.Context, userID string) (*CompleteDayResult, error) {
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
func (s *SQLiteStore) CompletedDays(ctx context.Context, assessmentID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day_number FROM daily_progress
		WHERE assessment_id = ?
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
func (s *SQLiteStore) Stats(ctx context.Context, userID string) (*Stats, error) {
	var (
		stats       Stats
		lastDateStr sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT total_points, current_streak, longest_streak, last_completed_date
		FROM progress_profiles WHERE user_id = ?
	`, userID).Scan(&stats.TotalPoints, &stats.CurrentStreak, &stats.LongestStreak, &lastDateStr)
	if err == sql.ErrNoRows {
		return &Stats{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	if lastDateStr.Valid {
		if parsed, perr := time.Parse(dateLayout, lastDateStr.String); perr == nil {
			stats.LastCompletedDate = &parsed
		}
	}
	return &stats, nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
