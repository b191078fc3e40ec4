package webhook

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chat-monitor/internal/engine"
	"chat-monitor/internal/logger"
	"chat-monitor/pkg/models"
)

// Handler receives message-arrival callbacks from the chat-platform
// collaborator and feeds them to the engine.
type Handler struct {
	Engine *engine.Engine
}

func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{Engine: eng}
}

// HandleMessage ingests one incoming group message. The decision pipeline
// runs asynchronously on the message's (group, account) stream, so this
// returns as soon as the message is queued.
func (h *Handler) HandleMessage(c *gin.Context) {
	var payload models.IncomingMessage
	if err := c.ShouldBindJSON(&payload); err != nil {
		logger.Sugar.Warnw("rejected malformed message payload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}

	h.Engine.HandleMessage(engine.MessageContext{
		GroupID:         payload.GroupID,
		SenderAccountID: payload.SenderAccountID,
		SenderUserID:    payload.SenderUserID,
		Username:        payload.Username,
		FirstName:       payload.FirstName,
		Text:            payload.Text,
		IsSenderAdmin:   payload.IsSenderAdmin,
		Timestamp:       payload.Timestamp,
	})

	c.Status(http.StatusAccepted)
}
