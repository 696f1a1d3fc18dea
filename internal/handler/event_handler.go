package handler

import (
	"github.com/gin-gonic/gin"

	"reactor/slackbridge/internal/model"
	"reactor/slackbridge/internal/service"
	"reactor/slackbridge/pkg/response"
)

type EventHandler struct {
	relayService service.RelayService
}

func NewEventHandler(relayService service.RelayService) *EventHandler {
	return &EventHandler{relayService: relayService}
}

// Capture receives Events API deliveries. URL verification is answered
// first; everything else is acknowledged immediately and forwarded in the
// background, so Slack never waits on the reactor or sees its failures.
func (h *EventHandler) Capture(c *gin.Context) {
	var env model.EventEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		response.BadRequest(c, "invalid event body")
		return
	}

	if env.Challenge != "" {
		response.Text(c, env.Challenge)
		return
	}

	h.relayService.CaptureEvent(c.Request.Context(), &env)
	response.OK(c)
}
