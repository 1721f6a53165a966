package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/rehabflow-backend/internal/domain"
)

// Shared testify mocks for the service tests.

type MockAssessmentStore struct {
	mock.Mock
}

func (m *MockAssessmentStore) GetAssessment(ctx context.Context, id string) (*domain.Assessment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Assessment), args.Error(1)
}

func (m *MockAssessmentStore) GetBaseline(ctx context.Context, userID string) (*domain.BaselineProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BaselineProfile), args.Error(1)
}

func (m *MockAssessmentStore) GetConditions(ctx context.Context, userID string) ([]domain.MedicalCondition, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.MedicalCondition), args.Error(1)
}

func (m *MockAssessmentStore) GetImages(ctx context.Context, assessmentID string) ([]domain.InjuryImage, error) {
	args := m.Called(ctx, assessmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.InjuryImage), args.Error(1)
}

type MockImageDownloader struct {
	mock.Mock
}

func (m *MockImageDownloader) Download(ctx context.Context, storagePath string) ([]byte, error) {
	args := m.Called(ctx, storagePath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockInferenceClient struct {
	mock.Mock
}

func (m *MockInferenceClient) Analyze(ctx context.Context, req *domain.InferenceRequest) (*domain.RawInferenceResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RawInferenceResult), args.Error(1)
}

type MockAnalysisStore struct {
	mock.Mock
}

func (m *MockAnalysisStore) Insert(ctx context.Context, assessmentID, probableCondition string, confidenceScore float64, reasoning, modelVersion string) (*domain.ClinicalAnalysis, error) {
	args := m.Called(ctx, assessmentID, probableCondition, confidenceScore, reasoning, modelVersion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClinicalAnalysis), args.Error(1)
}

func (m *MockAnalysisStore) GetLatest(ctx context.Context, assessmentID string) (*domain.ClinicalAnalysis, error) {
	args := m.Called(ctx, assessmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClinicalAnalysis), args.Error(1)
}

type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) GetLanguage(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

type MockTranslator struct {
	mock.Mock
}

func (m *MockTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	args := m.Called(ctx, text, sourceLang, targetLang)
	return args.String(0), args.Error(1)
}

type MockVideoSearcher struct {
	mock.Mock
}

func (m *MockVideoSearcher) FindBest(ctx context.Context, keywords []string) (*domain.VideoMatch, error) {
	args := m.Called(ctx, keywords)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VideoMatch), args.Error(1)
}

// fakeVideoCache is an in-memory stand-in for the Redis video tier.
type fakeVideoCache struct {
	entries map[string]*domain.VideoMatch
	sets    int
}

func newFakeVideoCache() *fakeVideoCache {
	return &fakeVideoCache{entries: make(map[string]*domain.VideoMatch)}
}

func (f *fakeVideoCache) GetVideoMatch(ctx context.Context, query string) (*domain.VideoMatch, bool, error) {
	match, ok := f.entries[query]
	return match, ok, nil
}

func (f *fakeVideoCache) SetVideoMatch(ctx context.Context, query string, match *domain.VideoMatch, ttl time.Duration) error {
	f.entries[query] = match
	f.sets++
	return nil
}

// fakeTranslationCache is an in-memory stand-in for the Redis translation
// tier.
type fakeTranslationCache struct {
	entries map[string]string
	sets    int
}

func newFakeTranslationCache() *fakeTranslationCache {
	return &fakeTranslationCache{entries: make(map[string]string)}
}

func (f *fakeTranslationCache) key(text, lang string) string {
	return lang + ":" + text
}

func (f *fakeTranslationCache) GetTranslation(ctx context.Context, text, targetLang string) (string, bool, error) {
	translated, ok := f.entries[f.key(text, targetLang)]
	return translated, ok, nil
}

func (f *fakeTranslationCache) SetTranslation(ctx context.Context, text, targetLang, translated string, ttl time.Duration) error {
	f.entries[f.key(text, targetLang)] = translated
	f.sets++
	return nil
}
