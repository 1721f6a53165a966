package api

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rehabflow-backend/internal/domain"
	"github.com/rehabflow-backend/internal/middleware"
)

// stageEvent is one frame on the analysis progress stream.
type stageEvent struct {
	Stage  string `json:"stage"`
	Status string `json:"status"`
}

// finalEvent ends the stream with either the analysis or the failure.
type finalEvent struct {
	Stage    string                   `json:"stage"`
	Analysis *domain.ClinicalAnalysis `json:"analysis,omitempty"`
	Error    string                   `json:"error,omitempty"`
	Code     string                   `json:"code,omitempty"`
}

// handleAnalyzeStream runs the pipeline and pushes a frame per stage
// transition over a websocket, closing with the persisted analysis or the
// failure. A client that disconnects mid-run does not abort the analysis;
// the result still persists.
func (s *Server) handleAnalyzeStream(c *gin.Context) {
	assessmentID := c.Param("assessmentID")
	userID := middleware.UserID(c)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		s.logger.WithFields(logrus.Fields{
			"error":          err.Error(),
			"correlation_id": c.GetString("correlation_id"),
		}).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	analysis, runErr := s.deps.Pipeline.RunObserved(c.Request.Context(), assessmentID, userID,
		func(stage domain.PipelineStage) {
			if stage.Terminal() {
				return
			}
			if err := conn.WriteJSON(stageEvent{Stage: stage.String(), Status: "in_progress"}); err != nil {
				s.logger.WithFields(logrus.Fields{
					"stage": stage.String(),
					"error": err.Error(),
				}).Debug("Dropping stage frame")
			}
		})

	if runErr != nil {
		_, apiErr := s.classifyError(c, runErr)
		_ = conn.WriteJSON(finalEvent{
			Stage: domain.StageFailed.String(),
			Error: apiErr.Message,
			Code:  apiErr.Code,
		})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, apiErr.Code))
		return
	}

	_ = conn.WriteJSON(finalEvent{
		Stage:    domain.StageDone.String(),
		Analysis: analysis,
	})
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
