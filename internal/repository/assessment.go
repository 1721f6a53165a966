package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/rehabflow-backend/internal/domain"
)

// AssessmentRepository reads assessment-scoped clinical context. Optional
// columns are coalesced to zero values so callers never see SQL nulls.
type AssessmentRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAssessmentRepository creates a new assessment repository
func NewAssessmentRepository(db *pgxpool.Pool, logger *logrus.Logger) *AssessmentRepository {
	return &AssessmentRepository{
		db:  db,
		log: logger,
	}
}

// GetAssessment retrieves a single assessment by ID
func (r *AssessmentRepository) GetAssessment(ctx context.Context, id string) (*domain.Assessment, error) {
	query := `
		SELECT id, user_id, COALESCE(pain_location, ''), COALESCE(pain_level, 0),
			   COALESCE(pain_cause, ''), COALESCE(additional_notes, ''),
			   visible_swelling, mobility_restriction, pain_started_at, created_at
		FROM injury_assessments
		WHERE id = $1`

	var assessment domain.Assessment

	err := r.db.QueryRow(ctx, query, id).Scan(
		&assessment.ID,
		&assessment.UserID,
		&assessment.PainLocation,
		&assessment.PainLevel,
		&assessment.PainCause,
		&assessment.AdditionalNotes,
		&assessment.VisibleSwelling,
		&assessment.MobilityRestriction,
		&assessment.PainStartedAt,
		&assessment.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("assessment not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"assessment_id": id,
			"error":         err,
		}).Error("Failed to get assessment")
		return nil, fmt.Errorf("getting assessment: %w", err)
	}

	return &assessment, nil
}

// GetBaseline retrieves the lifestyle baseline for a user. A missing row is
// not an error; the analysis simply runs without lifestyle context.
func (r *AssessmentRepository) GetBaseline(ctx context.Context, userID string) (*domain.BaselineProfile, error) {
	query := `
		SELECT user_id, COALESCE(occupation_type, ''), COALESCE(daily_sitting_hours, 0),
			   COALESCE(physical_work_level, ''), COALESCE(gym_frequency, ''),
			   COALESCE(alcohol_usage, ''), COALESCE(smoking_usage, '')
		FROM baseline_profiles
		WHERE user_id = $1`

	var baseline domain.BaselineProfile

	err := r.db.QueryRow(ctx, query, userID).Scan(
		&baseline.UserID,
		&baseline.OccupationType,
		&baseline.DailySittingHours,
		&baseline.PhysicalWorkLevel,
		&baseline.GymFrequency,
		&baseline.AlcoholUsage,
		&baseline.SmokingUsage,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.log.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Error("Failed to get baseline profile")
		return nil, fmt.Errorf("getting baseline profile: %w", err)
	}

	return &baseline, nil
}

// GetConditions retrieves the user's medical conditions with joined names
func (r *AssessmentRepository) GetConditions(ctx context.Context, userID string) ([]domain.MedicalCondition, error) {
	query := `
		SELECT mc.id, mc.name, COALESCE(mc.description, '')
		FROM user_medical_conditions umc
		JOIN medical_conditions mc ON mc.id = umc.condition_id
		WHERE umc.user_id = $1
		ORDER BY mc.name`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Error("Failed to get medical conditions")
		return nil, fmt.Errorf("getting medical conditions: %w", err)
	}
	defer rows.Close()

	var conditions []domain.MedicalCondition
	for rows.Next() {
		var condition domain.MedicalCondition
		if err := rows.Scan(&condition.ID, &condition.Name, &condition.Description); err != nil {
			return nil, fmt.Errorf("scanning medical condition row: %w", err)
		}
		conditions = append(conditions, condition)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating medical condition rows: %w", err)
	}

	return conditions, nil
}

// GetImages retrieves image metadata rows linked to an assessment
func (r *AssessmentRepository) GetImages(ctx context.Context, assessmentID string) ([]domain.InjuryImage, error) {
	query := `
		SELECT id, injury_assessment_id, image_url, COALESCE(ai_description, '')
		FROM injury_images
		WHERE injury_assessment_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, assessmentID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"assessment_id": assessmentID,
			"error":         err,
		}).Error("Failed to get injury images")
		return nil, fmt.Errorf("getting injury images: %w", err)
	}
	defer rows.Close()

	var images []domain.InjuryImage
	for rows.Next() {
		var image domain.InjuryImage
		if err := rows.Scan(&image.ID, &image.AssessmentID, &image.StoragePath, &image.AIDescription); err != nil {
			return nil, fmt.Errorf("scanning injury image row: %w", err)
		}
		images = append(images, image)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating injury image rows: %w", err)
	}

	return images, nil
}
