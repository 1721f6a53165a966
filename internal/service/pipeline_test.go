package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rehabflow-backend/internal/domain"
)

// pipelineFixtures wires a store that owns a single minimal assessment
// with no baseline, conditions, or images, so the complaint falls back
// to the pain location.
func pipelineFixtures() (*MockAssessmentStore, *MockImageDownloader) {
	store := new(MockAssessmentStore)
	downloader := new(MockImageDownloader)
	store.On("GetAssessment", mock.Anything, "assess-1").Return(&domain.Assessment{
		ID:           "assess-1",
		UserID:       "user-1",
		PainLocation: "left knee",
		PainLevel:    6,
	}, nil)
	store.On("GetBaseline", mock.Anything, "user-1").Return(nil, nil)
	store.On("GetConditions", mock.Anything, "user-1").Return(nil, nil)
	store.On("GetImages", mock.Anything, "assess-1").Return(nil, nil)
	return store, downloader
}

func newTestPipeline(
	store *MockAssessmentStore,
	downloader *MockImageDownloader,
	inference *MockInferenceClient,
	analyses *MockAnalysisStore,
	modelVersion string,
) *PipelineService {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewPipelineService(
		NewAggregatorService(store, downloader, logger),
		inference,
		NewNormalizerService(logger),
		analyses,
		modelVersion,
		logger,
	)
}

func recordStages(stages *[]domain.PipelineStage) domain.StageObserver {
	return func(stage domain.PipelineStage) {
		*stages = append(*stages, stage)
	}
}

func TestPipelineService_RunObserved(t *testing.T) {
	ctx := context.Background()

	t.Run("Structured_Response_Full_Run", func(t *testing.T) {
		store, downloader := pipelineFixtures()
		inference := new(MockInferenceClient)
		analyses := new(MockAnalysisStore)

		inference.On("Analyze", mock.Anything, mock.MatchedBy(func(req *domain.InferenceRequest) bool {
			return req.TextComplaint == "Pain in left knee" &&
				req.PainLocation == "left knee" &&
				req.PainLevel == 6 &&
				len(req.ImagesBase64) == 0
		})).Return(rawStructured(domain.StructuredResult{
			ProbableCondition: "ACL Sprain",
			ConfidenceScore:   0.82,
			Reasoning:         "Twisting mechanism with rapid effusion.",
			RehabPlan:         "1. Relative rest for 48 hours.",
			ImageCaptions:     []string{"a swollen knee"},
		}), nil)

		composed := "## Visual Assessment\n- Image 1: a swollen knee\n\n" +
			"Twisting mechanism with rapid effusion.\n\n" +
			"## Rehabilitation Plan\n1. Relative rest for 48 hours."
		analyses.On("Insert", mock.Anything, "assess-1", "ACL Sprain", 0.82, composed, "test-model").
			Return(&domain.ClinicalAnalysis{
				ID:                "analysis-1",
				AssessmentID:      "assess-1",
				ProbableCondition: "ACL Sprain",
				ConfidenceScore:   0.82,
			}, nil)

		pipeline := newTestPipeline(store, downloader, inference, analyses, "test-model")

		var stages []domain.PipelineStage
		analysis, err := pipeline.RunObserved(ctx, "assess-1", "user-1", recordStages(&stages))

		require.NoError(t, err)
		assert.Equal(t, "analysis-1", analysis.ID)
		assert.Equal(t, []domain.PipelineStage{
			domain.StageValidating,
			domain.StageAggregating,
			domain.StageInvoking,
			domain.StageNormalizing,
			domain.StagePersisting,
			domain.StageDone,
		}, stages)
		analyses.AssertNumberOfCalls(t, "Insert", 1)
	})

	t.Run("Transcript_Response_Uses_Default_Model_Version", func(t *testing.T) {
		store, downloader := pipelineFixtures()
		inference := new(MockInferenceClient)
		analyses := new(MockAnalysisStore)

		transcript := "Probable Condition: Sprain\n" +
			"Confidence: 0.6\n" +
			"Clinical Reasoning:\nSwelling pattern fits a ligament strain.\n" +
			"Rehabilitation Plan:\n1. Ice and elevation."
		inference.On("Analyze", mock.Anything, mock.Anything).Return(rawTranscript(transcript), nil)

		composed := "Swelling pattern fits a ligament strain.\n\n## Rehabilitation Plan\n1. Ice and elevation."
		analyses.On("Insert", mock.Anything, "assess-1", "Sprain", 0.6, composed, defaultModelVersion).
			Return(&domain.ClinicalAnalysis{ID: "analysis-2"}, nil)

		// Empty model version falls back to the default pair.
		pipeline := newTestPipeline(store, downloader, inference, analyses, "")
		analysis, err := pipeline.Run(ctx, "assess-1", "user-1")

		require.NoError(t, err)
		assert.Equal(t, "analysis-2", analysis.ID)
		analyses.AssertExpectations(t)
	})

	t.Run("Blank_Assessment_ID_Rejected", func(t *testing.T) {
		store, downloader := pipelineFixtures()
		inference := new(MockInferenceClient)
		analyses := new(MockAnalysisStore)
		pipeline := newTestPipeline(store, downloader, inference, analyses, "test-model")

		var stages []domain.PipelineStage
		_, err := pipeline.RunObserved(ctx, "   ", "user-1", recordStages(&stages))

		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "assessment_id", vErr.Field)
		assert.Equal(t, []domain.PipelineStage{domain.StageValidating, domain.StageFailed}, stages)
		inference.AssertNumberOfCalls(t, "Analyze", 0)
	})

	t.Run("Blank_Owner_ID_Rejected", func(t *testing.T) {
		store, downloader := pipelineFixtures()
		inference := new(MockInferenceClient)
		analyses := new(MockAnalysisStore)
		pipeline := newTestPipeline(store, downloader, inference, analyses, "test-model")

		_, err := pipeline.Run(ctx, "assess-1", "")

		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "owner_id", vErr.Field)
	})

	t.Run("Denial_Stops_Before_Inference", func(t *testing.T) {
		store := new(MockAssessmentStore)
		downloader := new(MockImageDownloader)
		inference := new(MockInferenceClient)
		analyses := new(MockAnalysisStore)
		store.On("GetAssessment", mock.Anything, "assess-1").Return(nil, domain.ErrNotFound)
		pipeline := newTestPipeline(store, downloader, inference, analyses, "test-model")

		var stages []domain.PipelineStage
		_, err := pipeline.RunObserved(ctx, "assess-1", "user-1", recordStages(&stages))

		assert.ErrorIs(t, err, domain.ErrAccessDenied)
		assert.Equal(t, []domain.PipelineStage{
			domain.StageValidating,
			domain.StageAggregating,
			domain.StageFailed,
		}, stages)
		inference.AssertNumberOfCalls(t, "Analyze", 0)
		analyses.AssertNumberOfCalls(t, "Insert", 0)
	})

	t.Run("Inference_Timeout_Propagates", func(t *testing.T) {
		store, downloader := pipelineFixtures()
		inference := new(MockInferenceClient)
		analyses := new(MockAnalysisStore)
		inference.On("Analyze", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("inference: %w", domain.ErrInferenceTimeout))
		pipeline := newTestPipeline(store, downloader, inference, analyses, "test-model")

		var stages []domain.PipelineStage
		_, err := pipeline.RunObserved(ctx, "assess-1", "user-1", recordStages(&stages))

		assert.ErrorIs(t, err, domain.ErrInferenceTimeout)
		assert.Equal(t, domain.StageFailed, stages[len(stages)-1])
		analyses.AssertNumberOfCalls(t, "Insert", 0)
	})

	t.Run("Persistence_Failure_Propagates", func(t *testing.T) {
		store, downloader := pipelineFixtures()
		inference := new(MockInferenceClient)
		analyses := new(MockAnalysisStore)
		inference.On("Analyze", mock.Anything, mock.Anything).
			Return(rawTranscript("plain text"), nil)
		analyses.On("Insert", mock.Anything, "assess-1", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("insert failed: %w", domain.ErrPersistenceFailure))
		pipeline := newTestPipeline(store, downloader, inference, analyses, "test-model")

		var stages []domain.PipelineStage
		_, err := pipeline.RunObserved(ctx, "assess-1", "user-1", recordStages(&stages))

		assert.ErrorIs(t, err, domain.ErrPersistenceFailure)
		assert.Equal(t, []domain.PipelineStage{
			domain.StageValidating,
			domain.StageAggregating,
			domain.StageInvoking,
			domain.StageNormalizing,
			domain.StagePersisting,
			domain.StageFailed,
		}, stages)
	})
}
