package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rehabflow-backend/internal/domain"
	"github.com/rehabflow-backend/internal/middleware"
	"github.com/rehabflow-backend/internal/progress"
)

// handleAnalyze runs the full clinical analysis pipeline for an
// assessment and returns the persisted result.
func (s *Server) handleAnalyze(c *gin.Context) {
	analysis, err := s.deps.Pipeline.Run(
		c.Request.Context(),
		c.Param("assessmentID"),
		middleware.UserID(c),
	)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// handleGetAnalysis returns the latest analysis for an assessment,
// translated to the owner's preferred language when one is set.
func (s *Server) handleGetAnalysis(c *gin.Context) {
	analysis, err := s.deps.Analyses.GetLatest(
		c.Request.Context(),
		c.Param("assessmentID"),
		middleware.UserID(c),
	)
	if err != nil {
		s.renderError(c, err)
		return
	}
	if analysis == nil {
		c.JSON(http.StatusNotFound, domain.NewAPIError(
			domain.ErrCodeNotFound,
			"No analysis found for this assessment",
			"",
			c.GetString("correlation_id"),
		))
		return
	}

	c.JSON(http.StatusOK, analysis)
}

type completeDayRequest struct {
	AssessmentID string `json:"assessment_id" binding:"required"`
	DayNumber    int    `json:"day_number" binding:"required,min=1"`
	PainLevel    *int   `json:"pain_level" binding:"omitempty,min=0,max=10"`
	Notes        string `json:"notes"`
}

// handleCompleteDay logs a rehab day as completed, awarding points and
// updating the streak. Repeats for the same assessment and day are
// acknowledged without a second award.
func (s *Server) handleCompleteDay(c *gin.Context) {
	var req completeDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(
			domain.ErrCodeInvalidInput,
			"Invalid completion request",
			err.Error(),
			c.GetString("correlation_id"),
		))
		return
	}

	result, err := s.deps.Progress.CompleteDay(c.Request.Context(), &progress.CompleteDayRequest{
		UserID:       middleware.UserID(c),
		AssessmentID: req.AssessmentID,
		DayNumber:    req.DayNumber,
		PainLevel:    req.PainLevel,
		Notes:        req.Notes,
	})
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleCompletedDays lists the day numbers already completed for an
// assessment.
func (s *Server) handleCompletedDays(c *gin.Context) {
	days, err := s.deps.Progress.CompletedDays(c.Request.Context(), c.Param("assessmentID"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	if days == nil {
		days = []int{}
	}

	c.JSON(http.StatusOK, gin.H{"completed_days": days})
}

// handleVideoSearch resolves exercise keywords to an embeddable video.
// Accepts keywords as repeated query parameters or as a JSON body.
func (s *Server) handleVideoSearch(c *gin.Context) {
	var keywords []string
	if c.Request.Method == http.MethodPost {
		var body struct {
			Keywords []string `json:"keywords"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, domain.NewAPIError(
				domain.ErrCodeInvalidInput,
				"Invalid search request",
				err.Error(),
				c.GetString("correlation_id"),
			))
			return
		}
		keywords = body.Keywords
	} else {
		keywords = c.QueryArray("keywords")
	}

	if !hasKeyword(keywords) {
		c.JSON(http.StatusUnprocessableEntity, domain.NewAPIError(
			domain.ErrCodeInvalidInput,
			"At least one non-empty keyword is required",
			"",
			c.GetString("correlation_id"),
		))
		return
	}

	match, err := s.deps.Videos.Resolve(c.Request.Context(), keywords)
	if err != nil {
		s.renderVideoError(c, err)
		return
	}

	c.JSON(http.StatusOK, match)
}

func (s *Server) renderVideoError(c *gin.Context, err error) {
	correlationID := c.GetString("correlation_id")
	switch {
	case errors.Is(err, domain.ErrNoVideoFound):
		c.JSON(http.StatusNotFound, domain.NewAPIError(
			domain.ErrCodeNotFound, "No suitable video found", "", correlationID))
	case errors.Is(err, domain.ErrVideoSearchUnavailable):
		c.JSON(http.StatusBadGateway, domain.NewAPIError(
			domain.ErrCodeUpstreamError, "Video search is temporarily unavailable", "", correlationID))
	default:
		s.renderError(c, err)
	}
}

func hasKeyword(keywords []string) bool {
	for _, keyword := range keywords {
		if strings.TrimSpace(keyword) != "" {
			return true
		}
	}
	return false
}
