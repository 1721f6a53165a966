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

// AnalysisRepository persists clinical analysis records. The table is
// append-only; reruns for the same assessment stack up and GetLatest
// picks the newest.
type AnalysisRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAnalysisRepository creates a new analysis repository
func NewAnalysisRepository(db *pgxpool.Pool, logger *logrus.Logger) *AnalysisRepository {
	return &AnalysisRepository{
		db:  db,
		log: logger,
	}
}

// Insert appends a new clinical analysis row and returns the stored record
func (r *AnalysisRepository) Insert(ctx context.Context, assessmentID, probableCondition string, confidenceScore float64, reasoning, modelVersion string) (*domain.ClinicalAnalysis, error) {
	query := `
		INSERT INTO ai_clinical_analysis (
			injury_assessment_id, probable_condition, confidence_score, reasoning, model_version
		) VALUES (
			$1, $2, $3, $4, $5
		)
		RETURNING id, injury_assessment_id, probable_condition, confidence_score,
				  reasoning, model_version, created_at`

	var analysis domain.ClinicalAnalysis

	err := r.db.QueryRow(ctx, query,
		assessmentID,
		probableCondition,
		confidenceScore,
		reasoning,
		modelVersion,
	).Scan(
		&analysis.ID,
		&analysis.AssessmentID,
		&analysis.ProbableCondition,
		&analysis.ConfidenceScore,
		&analysis.Reasoning,
		&analysis.ModelVersion,
		&analysis.CreatedAt,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"assessment_id": assessmentID,
			"error":         err,
		}).Error("Failed to insert clinical analysis")
		return nil, fmt.Errorf("inserting clinical analysis: %v: %w", err, domain.ErrPersistenceFailure)
	}

	r.log.WithFields(logrus.Fields{
		"analysis_id":   analysis.ID,
		"assessment_id": assessmentID,
		"condition":     probableCondition,
	}).Info("Clinical analysis persisted")

	return &analysis, nil
}

// GetLatest retrieves the most recent clinical analysis for an assessment,
// or nil if none exists yet.
func (r *AnalysisRepository) GetLatest(ctx context.Context, assessmentID string) (*domain.ClinicalAnalysis, error) {
	query := `
		SELECT id, injury_assessment_id, probable_condition, confidence_score,
			   reasoning, model_version, created_at
		FROM ai_clinical_analysis
		WHERE injury_assessment_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var analysis domain.ClinicalAnalysis

	err := r.db.QueryRow(ctx, query, assessmentID).Scan(
		&analysis.ID,
		&analysis.AssessmentID,
		&analysis.ProbableCondition,
		&analysis.ConfidenceScore,
		&analysis.Reasoning,
		&analysis.ModelVersion,
		&analysis.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.log.WithFields(logrus.Fields{
			"assessment_id": assessmentID,
			"error":         err,
		}).Error("Failed to get latest clinical analysis")
		return nil, fmt.Errorf("getting latest clinical analysis: %w", err)
	}

	return &analysis, nil
}
