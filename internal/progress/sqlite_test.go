package progress

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "progress-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "nested", "progress.db")

	store, err := NewSQLiteStore(dbPath)

	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_CompleteDay_FirstCompletion(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	pain := 4

	result, err := store.CompleteDay(ctx, &CompleteDayRequest{
		UserID:       "user-1",
		AssessmentID: "assess-1",
		DayNumber:    1,
		PainLevel:    &pain,
		Notes:        "Felt good today",
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.AlreadyCompleted)
	assert.Equal(t, PointsPerDay, result.PointsEarned)
	assert.Equal(t, PointsPerDay, result.TotalPoints)
	assert.Equal(t, 1, result.CurrentStreak)
	assert.Equal(t, 1, result.LongestStreak)
}

func TestSQLiteStore_CompleteDay_Idempotent(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	req := &CompleteDayRequest{
		UserID:       "user-1",
		AssessmentID: "assess-1",
		DayNumber:    2,
	}

	first, err := store.CompleteDay(ctx, req)
	require.NoError(t, err)
	require.Equal(t, PointsPerDay, first.PointsEarned)

	// Repeat earns nothing and reports the unchanged stats.
	second, err := store.CompleteDay(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.AlreadyCompleted)
	assert.Zero(t, second.PointsEarned)
	assert.Equal(t, PointsPerDay, second.TotalPoints)
	assert.Equal(t, 1, second.CurrentStreak)

	stats, err := store.Stats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, PointsPerDay, stats.TotalPoints)
}

func TestSQLiteStore_CompleteDay_SameDayKeepsStreak(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	_, err := store.CompleteDay(ctx, &CompleteDayRequest{
		UserID: "user-1", AssessmentID: "assess-1", DayNumber: 1,
	})
	require.NoError(t, err)

	// A second completion on the same calendar day adds points but does
	// not extend the streak.
	result, err := store.CompleteDay(ctx, &CompleteDayRequest{
		UserID: "user-1", AssessmentID: "assess-1", DayNumber: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2*PointsPerDay, result.TotalPoints)
	assert.Equal(t, 1, result.CurrentStreak)
	assert.Equal(t, 1, result.LongestStreak)
}

func TestSQLiteStore_CompleteDay_ExtendsStreak(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	yesterday := time.Now().AddDate(0, 0, -1)
	seedProfile(t, store, "user-1", 200, 3, 5, yesterday)

	result, err := store.CompleteDay(ctx, &CompleteDayRequest{
		UserID: "user-1", AssessmentID: "assess-1", DayNumber: 4,
	})

	require.NoError(t, err)
	assert.Equal(t, 250, result.TotalPoints)
	assert.Equal(t, 4, result.CurrentStreak)
	assert.Equal(t, 5, result.LongestStreak, "Longest stays until the streak passes it")
}

func TestSQLiteStore_CompleteDay_BrokenStreakRestarts(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	threeDaysAgo := time.Now().AddDate(0, 0, -3)
	seedProfile(t, store, "user-1", 350, 7, 7, threeDaysAgo)

	result, err := store.CompleteDay(ctx, &CompleteDayRequest{
		UserID: "user-1", AssessmentID: "assess-1", DayNumber: 8,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.CurrentStreak)
	assert.Equal(t, 7, result.LongestStreak)
	assert.Equal(t, 400, result.TotalPoints)
}

func TestSQLiteStore_CompleteDay_NewLongestStreak(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	yesterday := time.Now().AddDate(0, 0, -1)
	seedProfile(t, store, "user-1", 250, 5, 5, yesterday)

	result, err := store.CompleteDay(ctx, &CompleteDayRequest{
		UserID: "user-1", AssessmentID: "assess-1", DayNumber: 6,
	})

	require.NoError(t, err)
	assert.Equal(t, 6, result.CurrentStreak)
	assert.Equal(t, 6, result.LongestStreak)
}

func TestSQLiteStore_CompleteDay_WritesPointsLog(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	_, err := store.CompleteDay(ctx, &CompleteDayRequest{
		UserID: "user-1", AssessmentID: "assess-1", DayNumber: 3,
	})
	require.NoError(t, err)

	var (
		id     string
		points int
		source string
	)
	err = store.db.QueryRowContext(ctx,
		"SELECT id, points, source FROM points_log WHERE user_id = ?", "user-1",
	).Scan(&id, &points, &source)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, PointsPerDay, points)
	assert.Equal(t, "completed_day_3", source)
}

func TestSQLiteStore_CompletedDays(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	for _, day := range []int{3, 1, 2} {
		_, err := store.CompleteDay(ctx, &CompleteDayRequest{
			UserID: "user-1", AssessmentID: "assess-1", DayNumber: day,
		})
		require.NoError(t, err)
	}
	// A different assessment must not leak in.
	_, err := store.CompleteDay(ctx, &CompleteDayRequest{
		UserID: "user-1", AssessmentID: "assess-2", DayNumber: 9,
	})
	require.NoError(t, err)

	days, err := store.CompletedDays(ctx, "assess-1")

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, days)

	empty, err := store.CompletedDays(ctx, "assess-none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteStore_Stats(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// No profile yet: zero snapshot, not an error.
	stats, err := store.Stats(ctx, "user-unknown")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalPoints)
	assert.Nil(t, stats.LastCompletedDate)

	_, err = store.CompleteDay(ctx, &CompleteDayRequest{
		UserID: "user-1", AssessmentID: "assess-1", DayNumber: 1,
	})
	require.NoError(t, err)

	stats, err = store.Stats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, PointsPerDay, stats.TotalPoints)
	assert.Equal(t, 1, stats.CurrentStreak)
	require.NotNil(t, stats.LastCompletedDate)
	assert.Equal(t, time.Now().Format(dateLayout), stats.LastCompletedDate.Format(dateLayout))
}

func TestComputeStreak(t *testing.T) {
	today := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	lastWeek := today.AddDate(0, 0, -7)

	tests := []struct {
		name    string
		current int
		last    *time.Time
		want    int
	}{
		{"first ever", 0, nil, 1},
		{"consecutive day", 3, &yesterday, 4},
		{"same day", 3, &today, 3},
		{"gap restarts", 7, &lastWeek, 1},
		{"future date restarts", 2, timePtr(today.AddDate(0, 0, 2)), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeStreak(tt.current, tt.last, today); got != tt.want {
				t.Errorf("computeStreak(%d, %v) = %d, want %d", tt.current, tt.last, got, tt.want)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// seedProfile writes a profile row directly so streak arithmetic can be
// exercised against controlled dates.
func seedProfile(t *testing.T, store *SQLiteStore, userID string, points, current, longest int, lastCompleted time.Time) {
	t.Helper()

	_, err := store.db.Exec(`
		INSERT INTO progress_profiles (user_id, total_points, current_streak, longest_streak, last_completed_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, userID, points, current, longest, lastCompleted.Format(dateLayout), time.Now())
	require.NoError(t, err)
}

// createTestStore creates a store backed by a temp-dir database.
func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "progress-test-*")
	require.NoError(t, err)

	t.Cleanup(func() {
		os.RemoveAll(tmpDir)
	})

	dbPath := filepath.Join(tmpDir, "progress.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	return store
}
