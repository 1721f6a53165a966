package domain

import (
	"context"
)

// AssessmentStore provides filtered reads of assessment-scoped clinical
// context. All reads are bounded by explicit predicates; there are no
// global scans.
type AssessmentStore interface {
	GetAssessment(ctx context.Context, id string) (*Assessment, error)
	GetBaseline(ctx context.Context, userID string) (*BaselineProfile, error)
	GetConditions(ctx context.Context, userID string) ([]MedicalCondition, error)
	GetImages(ctx context.Context, assessmentID string) ([]InjuryImage, error)
}

// AnalysisStore persists and reads clinical analysis records. Inserts are
// append-only; GetLatest returns the most recently created row or nil.
type AnalysisStore interface {
	Insert(ctx context.Context, assessmentID, probableCondition string, confidenceScore float64, reasoning, modelVersion string) (*ClinicalAnalysis, error)
	GetLatest(ctx context.Context, assessmentID string) (*ClinicalAnalysis, error)
}

// ProfileStore reads user presentation preferences.
type ProfileStore interface {
	GetLanguage(ctx context.Context, userID string) (string, error)
}

// ImageDownloader fetches image blobs from object storage by path.
// A failed download is reported as ErrUpstreamUnavailable.
type ImageDownloader interface {
	Download(ctx context.Context, storagePath string) ([]byte, error)
}

// InferenceClient invokes the remote captioning+reasoning endpoint.
// One POST per call, redirects followed, no automatic retries; a local
// deadline maps to ErrInferenceTimeout and a non-200 to *UpstreamError.
type InferenceClient interface {
	Analyze(ctx context.Context, req *InferenceRequest) (*RawInferenceResult, error)
}

// AnalysisPipeline runs the full clinical analysis for one assessment and
// returns the persisted record.
type AnalysisPipeline interface {
	Run(ctx context.Context, assessmentID, ownerID string) (*ClinicalAnalysis, error)
	RunObserved(ctx context.Context, assessmentID, ownerID string, observer StageObserver) (*ClinicalAnalysis, error)
}

// VideoResolver finds the best embeddable video for a keyword set.
type VideoResolver interface {
	Resolve(ctx context.Context, keywords []string) (*VideoMatch, error)
}

// Translator converts text between two language shortcodes.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}
