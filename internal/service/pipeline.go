package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rehabflow-backend/internal/domain"
)

// defaultModelVersion identifies the captioning+reasoning model pair when
// no override is configured.
const defaultModelVersion = "blip:Salesforce/blip-image-captioning-large+medgemma:google/medgemma-4b-it"

// PipelineService orchestrates one clinical analysis run: aggregate the
// patient context, invoke the inference endpoint, normalize the response,
// persist the analysis row. There are no retries and no partial commits;
// nothing reaches the store unless normalization completed. Typed errors
// from the stages propagate untouched so the transport layer can map them
// to accurate status codes.
type PipelineService struct {
	aggregator   *AggregatorService
	inference    domain.InferenceClient
	normalizer   *NormalizerService
	analyses     domain.AnalysisStore
	modelVersion string
	log          *logrus.Logger
}

// NewPipelineService creates a new pipeline orchestrator
func NewPipelineService(
	aggregator *AggregatorService,
	inference domain.InferenceClient,
	normalizer *NormalizerService,
	analyses domain.AnalysisStore,
	modelVersion string,
	logger *logrus.Logger,
) *PipelineService {
	if modelVersion == "" {
		modelVersion = defaultModelVersion
	}
	return &PipelineService{
		aggregator:   aggregator,
		inference:    inference,
		normalizer:   normalizer,
		analyses:     analyses,
		modelVersion: modelVersion,
		log:          logger,
	}
}

// Run executes the full pipeline for one assessment.
func (p *PipelineService) Run(ctx context.Context, assessmentID, ownerID string) (*domain.ClinicalAnalysis, error) {
	return p.RunObserved(ctx, assessmentID, ownerID, nil)
}

// RunObserved executes the pipeline and reports every stage transition to
// the observer. Observers are invoked synchronously between stages and
// must not block.
func (p *PipelineService) RunObserved(ctx context.Context, assessmentID, ownerID string, observer domain.StageObserver) (*domain.ClinicalAnalysis, error) {
	start := time.Now()
	emit := func(stage domain.PipelineStage) {
		if observer != nil {
			observer(stage)
		}
	}

	runLog := p.log.WithField("assessment_id", assessmentID)
	runLog.Info("Starting clinical analysis pipeline")

	emit(domain.StageValidating)
	if strings.TrimSpace(assessmentID) == "" {
		emit(domain.StageFailed)
		return nil, domain.NewValidationError("assessment_id", "must not be empty", assessmentID)
	}
	if strings.TrimSpace(ownerID) == "" {
		emit(domain.StageFailed)
		return nil, domain.NewValidationError("owner_id", "must not be empty", ownerID)
	}

	emit(domain.StageAggregating)
	agg, err := p.aggregator.Aggregate(ctx, assessmentID, ownerID)
	if err != nil {
		emit(domain.StageFailed)
		runLog.WithError(err).Error("Pipeline failed while aggregating context")
		return nil, err
	}

	emit(domain.StageInvoking)
	raw, err := p.inference.Analyze(ctx, &domain.InferenceRequest{
		ImagesBase64:   agg.ImagesBase64,
		TextComplaint:  agg.Complaint,
		PainLocation:   agg.Assessment.PainLocation,
		PainLevel:      agg.Assessment.PainLevel,
		PatientContext: agg.Patient,
	})
	if err != nil {
		emit(domain.StageFailed)
		runLog.WithError(err).Error("Pipeline failed during inference")
		return nil, err
	}

	emit(domain.StageNormalizing)
	fields := p.normalizer.Normalize(raw)
	reasoning := p.normalizer.Compose(fields)

	emit(domain.StagePersisting)
	analysis, err := p.analyses.Insert(ctx, assessmentID, fields.ProbableCondition, fields.ConfidenceScore, reasoning, p.modelVersion)
	if err != nil {
		emit(domain.StageFailed)
		runLog.WithError(err).Error("Pipeline failed while persisting analysis")
		return nil, err
	}

	emit(domain.StageDone)
	runLog.WithFields(logrus.Fields{
		"analysis_id":        analysis.ID,
		"probable_condition": analysis.ProbableCondition,
		"confidence":         analysis.ConfidenceScore,
		"duration":           time.Since(start).String(),
	}).Info("Clinical analysis pipeline completed")

	return analysis, nil
}
