package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rehabflow-backend/internal/domain"
)

// TranslationCache is the distributed cache tier for translated text.
type TranslationCache interface {
	GetTranslation(ctx context.Context, text, targetLang string) (string, bool, error)
	SetTranslation(ctx context.Context, text, targetLang, translated string, ttl time.Duration) error
}

// AnalysisReader serves the analysis read path. The latest row wins, and
// presentation fields are translated into the owner's preferred language
// when it is not English. Translation is best-effort: any failure returns
// the untranslated record.
type AnalysisReader struct {
	assessments domain.AssessmentStore
	analyses    domain.AnalysisStore
	profiles    domain.ProfileStore
	translator  domain.Translator
	cache       TranslationCache
	log         *logrus.Logger
}

// NewAnalysisReader creates a new analysis reader. translator and cache
// may be nil, which disables translation and its cache tier respectively.
func NewAnalysisReader(
	assessments domain.AssessmentStore,
	analyses domain.AnalysisStore,
	profiles domain.ProfileStore,
	translator domain.Translator,
	cache TranslationCache,
	logger *logrus.Logger,
) *AnalysisReader {
	return &AnalysisReader{
		assessments: assessments,
		analyses:    analyses,
		profiles:    profiles,
		translator:  translator,
		cache:       cache,
		log:         logger,
	}
}

// GetLatest returns the most recent analysis for the assessment, or nil
// when none exists. Ownership is enforced with the same uniform denial as
// the pipeline: a missing assessment and a foreign one are
// indistinguishable to the caller.
func (r *AnalysisReader) GetLatest(ctx context.Context, assessmentID, ownerID string) (*domain.ClinicalAnalysis, error) {
	assessment, err := r.assessments.GetAssessment(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("assessment %s: %w", assessmentID, domain.ErrAccessDenied)
		}
		return nil, fmt.Errorf("fetching assessment: %w", err)
	}
	if assessment.UserID != ownerID {
		return nil, fmt.Errorf("assessment %s: %w", assessmentID, domain.ErrAccessDenied)
	}

	analysis, err := r.analyses.GetLatest(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("fetching latest analysis: %w", err)
	}
	if analysis == nil {
		return nil, nil
	}

	return r.translateAnalysis(ctx, analysis, ownerID), nil
}

// translateAnalysis localizes the presentation fields when the owner's
// profile language is not English. The stored row is never mutated.
func (r *AnalysisReader) translateAnalysis(ctx context.Context, analysis *domain.ClinicalAnalysis, ownerID string) *domain.ClinicalAnalysis {
	if r.translator == nil {
		return analysis
	}

	lang, err := r.profiles.GetLanguage(ctx, ownerID)
	if err != nil {
		r.log.WithError(err).Warn("Could not read profile language, serving English")
		return analysis
	}
	if lang == "" || lang == "en" {
		return analysis
	}

	translated := *analysis
	translated.ProbableCondition = r.translateField(ctx, analysis.ProbableCondition, lang)
	translated.Reasoning = r.translateField(ctx, analysis.Reasoning, lang)
	return &translated
}

func (r *AnalysisReader) translateField(ctx context.Context, text, targetLang string) string {
	if text == "" {
		return text
	}

	if r.cache != nil {
		if cached, found, err := r.cache.GetTranslation(ctx, text, targetLang); err == nil && found {
			return cached
		}
	}

	translated, err := r.translator.Translate(ctx, text, "en", targetLang)
	if err != nil {
		r.log.WithError(err).WithField("target_lang", targetLang).
			Warn("Translation failed, serving original text")
		return text
	}

	if r.cache != nil {
		if err := r.cache.SetTranslation(ctx, text, targetLang, translated, 0); err != nil {
			r.log.WithError(err).Debug("Failed to cache translation")
		}
	}
	return translated
}
