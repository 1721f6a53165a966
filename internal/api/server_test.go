package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehabflow-backend/internal/domain"
	"github.com/rehabflow-backend/internal/progress"
)

type fakePipeline struct {
	analysis *domain.ClinicalAnalysis
	err      error
	stages   []domain.PipelineStage

	gotAssessment string
	gotOwner      string
}

func (f *fakePipeline) Run(ctx context.Context, assessmentID, ownerID string) (*domain.ClinicalAnalysis, error) {
	f.gotAssessment, f.gotOwner = assessmentID, ownerID
	return f.analysis, f.err
}

func (f *fakePipeline) RunObserved(ctx context.Context, assessmentID, ownerID string, observer domain.StageObserver) (*domain.ClinicalAnalysis, error) {
	f.gotAssessment, f.gotOwner = assessmentID, ownerID
	for _, stage := range f.stages {
		observer(stage)
	}
	return f.analysis, f.err
}

type fakeAnalyses struct {
	analysis *domain.ClinicalAnalysis
	err      error
}

func (f *fakeAnalyses) GetLatest(ctx context.Context, assessmentID, ownerID string) (*domain.ClinicalAnalysis, error) {
	return f.analysis, f.err
}

type fakeVideos struct {
	match       *domain.VideoMatch
	err         error
	gotKeywords []string
}

func (f *fakeVideos) Resolve(ctx context.Context, keywords []string) (*domain.VideoMatch, error) {
	f.gotKeywords = keywords
	return f.match, f.err
}

type fakeProgress struct {
	result *progress.CompleteDayResult
	days   []int
	err    error

	gotRequest *progress.CompleteDayRequest
}

func (f *fakeProgress) CompleteDay(ctx context.Context, req *progress.CompleteDayRequest) (*progress.CompleteDayResult, error) {
	f.gotRequest = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeProgress) CompletedDays(ctx context.Context, assessmentID string) ([]int, error) {
	return f.days, f.err
}

func (f *fakeProgress) Stats(ctx context.Context, userID string) (*progress.Stats, error) {
	return &progress.Stats{}, f.err
}

func (f *fakeProgress) Close() error { return nil }

// stubAuth stands in for the JWT middleware and injects a fixed user.
func stubAuth(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	}
}

func testConfig() *domain.Config {
	return &domain.Config{
		Environment: "test",
		Server: domain.ServerConfig{
			AllowedOrigins: []string{"*"},
			RequestTimeout: 10 * time.Second,
		},
		Logging: domain.LoggingConfig{Level: "info"},
	}
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()

	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	if deps.Auth == nil {
		deps.Auth = stubAuth("user-1")
	}
	return NewServer(testConfig(), logger, deps)
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, Deps{})

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), `"service":"rehabflow-backend"`)
	assert.Contains(t, w.Body.String(), `"environment":"test"`)
}

func TestHealth_ProbeResults(t *testing.T) {
	server := newTestServer(t, Deps{
		Probes: map[string]HealthProbe{
			"database": func(ctx context.Context) error { return nil },
			"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
		},
	})

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
	assert.Contains(t, w.Body.String(), `"database":"ok"`)
	assert.Contains(t, w.Body.String(), `"redis":"connection refused"`)
}

func TestProtectedRoutes_RequireAuth(t *testing.T) {
	deny := func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, domain.NewAPIError(
			domain.ErrCodeUnauthorized, "Authentication required", "", ""))
	}
	server := newTestServer(t, Deps{Auth: deny})

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/ai/analyze/assess-1"},
		{http.MethodGet, "/ai/analysis/assess-1"},
		{http.MethodPost, "/progress/complete-day"},
		{http.MethodGet, "/progress/completed-days/assess-1"},
	}

	for _, route := range routes {
		w := httptest.NewRecorder()
		server.router.ServeHTTP(w, httptest.NewRequest(route.method, route.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}
}

func TestVideoSearch_IsPublic(t *testing.T) {
	deny := func(c *gin.Context) {
		c.AbortWithStatus(http.StatusUnauthorized)
	}
	videos := &fakeVideos{match: &domain.VideoMatch{EmbedURL: "https://www.youtube.com/embed/abc", Query: "knee rehab"}}
	server := newTestServer(t, Deps{Auth: deny, Videos: videos})

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/videos/search?keywords=knee&keywords=rehab", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", domain.NewValidationError("assessment_id", "assessment id must not be blank", ""), http.StatusBadRequest, domain.ErrCodeInvalidInput},
		{"access denied", domain.ErrAccessDenied, http.StatusForbidden, domain.ErrCodeAccessDenied},
		{"inference timeout", domain.ErrInferenceTimeout, http.StatusGatewayTimeout, domain.ErrCodeTimeout},
		{"upstream status", domain.NewUpstreamError(503, "overloaded"), http.StatusBadGateway, domain.ErrCodeUpstreamError},
		{"storage unavailable", domain.ErrUpstreamUnavailable, http.StatusBadGateway, domain.ErrCodeUpstreamError},
		{"persistence", domain.ErrPersistenceFailure, http.StatusInternalServerError, domain.ErrCodeInternalServer},
	}

	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.name, " ", "_"), func(t *testing.T) {
			pipeline := &fakePipeline{err: tt.err}
			server := newTestServer(t, Deps{Pipeline: pipeline})

			w := httptest.NewRecorder()
			server.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ai/analyze/assess-1", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantCode)
		})
	}
}
