package handlers

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/journey-tutor-backend/internal/http/response"
	"github.com/yungbote/journey-tutor-backend/internal/platform/ctxutil"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
	"github.com/yungbote/journey-tutor-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub

	mu      sync.Mutex
	clients map[uuid.UUID]*realtime.SSEClient // key: session id from the token
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{
		log:     log.With("handler", "RealtimeHandler"),
		hub:     hub,
		clients: make(map[uuid.UUID]*realtime.SSEClient),
	}
}

// GET /api/sse/stream
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return
	}
	sessionID := rd.SessionID
	if sessionID == uuid.Nil {
		sessionID = uuid.New()
	}

	client := h.hub.NewSSEClient(rd.UserID)
	h.mu.Lock()
	// A reconnect from the same session replaces the old stream.
	if existing, ok := h.clients[sessionID]; ok {
		h.hub.CloseClient(existing)
	}
	h.clients[sessionID] = client
	h.mu.Unlock()

	h.hub.AddChannel(client, realtime.UserChannel(rd.UserID))
	h.log.Debug("sse stream open", "user_id", rd.UserID, "session_id", sessionID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.mu.Lock()
	if h.clients[sessionID] == client {
		delete(h.clients, sessionID)
	}
	h.mu.Unlock()
	h.hub.CloseClient(client)
}
