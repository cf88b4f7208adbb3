package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/journey-tutor-backend/internal/http/response"
	"github.com/yungbote/journey-tutor-backend/internal/platform/ctxutil"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
	"github.com/yungbote/journey-tutor-backend/internal/realtime"
	"github.com/yungbote/journey-tutor-backend/internal/services"
)

type JourneyChatHandler struct {
	log    *logger.Logger
	chat   services.JourneyChatService
	stream realtime.StreamConfig
}

func NewJourneyChatHandler(log *logger.Logger, chat services.JourneyChatService, stream realtime.StreamConfig) *JourneyChatHandler {
	return &JourneyChatHandler{log: log.With("handler", "JourneyChatHandler"), chat: chat, stream: stream}
}

type chatReq struct {
	UserInput *string `json:"user_input"`
}

// POST /api/journey-attempts/:id/chat
// An empty body or missing user_input opens the current step; otherwise the input is submitted.
func (h *JourneyChatHandler) Chat(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_attempt_id", err)
		return
	}
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	ctx := c.Request.Context()
	turn, err := h.chat.BeginTurn(ctx, userID, attemptID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	stream, err := realtime.NewTurnStream(ctx, c.Writer, h.stream)
	if err != nil {
		turn.Release()
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", err)
		return
	}
	if err := h.chat.RunTurn(ctx, turn, req.UserInput, stream); err != nil {
		_ = c.Error(err)
	}
}

func requireUser(c *gin.Context) (uuid.UUID, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return uuid.Nil, false
	}
	return rd.UserID, true
}

func parseIDParam(c *gin.Context, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, code, err)
		return uuid.Nil, false
	}
	return id, true
}
