package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const defaultLanguage = "en"

// ProfileRepository reads user presentation preferences.
type ProfileRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *pgxpool.Pool, logger *logrus.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:  db,
		log: logger,
	}
}

// GetLanguage returns the user's preferred language shortcode. A missing
// profile or an unset language falls back to English.
func (r *ProfileRepository) GetLanguage(ctx context.Context, userID string) (string, error) {
	query := `SELECT COALESCE(language, '') FROM profiles WHERE id = $1`

	var language string
	err := r.db.QueryRow(ctx, query, userID).Scan(&language)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return defaultLanguage, nil
		}
		r.log.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Error("Failed to get user language")
		return "", fmt.Errorf("getting user language: %w", err)
	}

	if language == "" {
		return defaultLanguage, nil
	}

	return language, nil
}
