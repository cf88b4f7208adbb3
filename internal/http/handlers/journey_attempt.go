package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"github.com/yungbote/journey-tutor-backend/internal/http/response"
	"github.com/yungbote/journey-tutor-backend/internal/services"
)

type JourneyAttemptHandler struct {
	attempts services.JourneyAttemptService
}

func NewJourneyAttemptHandler(attempts services.JourneyAttemptService) *JourneyAttemptHandler {
	return &JourneyAttemptHandler{attempts: attempts}
}

// GET /api/journeys/:id/steps
func (h *JourneyAttemptHandler) ListSteps(c *gin.Context) {
	journeyID, ok := parseIDParam(c, "invalid_journey_id")
	if !ok {
		return
	}
	journey, steps, err := h.attempts.ListSteps(c.Request.Context(), journeyID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"journey": journey, "steps": steps})
}

// POST /api/journeys/:id/attempts
func (h *JourneyAttemptHandler) StartAttempt(c *gin.Context) {
	h.start(c, h.attempts.Start)
}

// POST /api/journeys/:id/preview
func (h *JourneyAttemptHandler) StartPreview(c *gin.Context) {
	h.start(c, h.attempts.StartPreview)
}

func (h *JourneyAttemptHandler) start(c *gin.Context, startFn func(ctx context.Context, userID, journeyID uuid.UUID) (*types.JourneyAttempt, error)) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	journeyID, ok := parseIDParam(c, "invalid_journey_id")
	if !ok {
		return
	}
	attempt, err := startFn(c.Request.Context(), userID, journeyID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"attempt": attempt})
}

// GET /api/journey-attempts/:id
func (h *JourneyAttemptHandler) GetAttempt(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	attemptID, ok := parseIDParam(c, "invalid_attempt_id")
	if !ok {
		return
	}
	view, err := h.attempts.Get(c.Request.Context(), userID, attemptID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// POST /api/journey-attempts/:id/abandon
func (h *JourneyAttemptHandler) Abandon(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	attemptID, ok := parseIDParam(c, "invalid_attempt_id")
	if !ok {
		return
	}
	attempt, err := h.attempts.Abandon(c.Request.Context(), userID, attemptID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"attempt": attempt})
}

// POST /api/journey-attempts/:id/report
func (h *JourneyAttemptHandler) Report(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	attemptID, ok := parseIDParam(c, "invalid_attempt_id")
	if !ok {
		return
	}
	report, err := h.attempts.Report(c.Request.Context(), userID, attemptID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"report": report})
}

type putVariablesReq struct {
	Variables map[string]string `json:"variables" binding:"required"`
}

// PUT /api/me/variables
func (h *JourneyAttemptHandler) PutVariables(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req putVariablesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.attempts.PutVariables(c.Request.Context(), userID, req.Variables); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"variables": req.Variables})
}
