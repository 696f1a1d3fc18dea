package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"reactor/slackbridge/internal/service"
)

type AuthHandler struct {
	relayService service.RelayService
	installURL   string
}

func NewAuthHandler(relayService service.RelayService, installURL string) *AuthHandler {
	return &AuthHandler{relayService: relayService, installURL: installURL}
}

// Install sends the user to Slack's authorize page.
func (h *AuthHandler) Install(c *gin.Context) {
	c.Redirect(http.StatusFound, h.installURL)
}

// Callback handles Slack's OAuth redirect and hands the sealed token to
// the reactor through another redirect.
func (h *AuthHandler) Callback(c *gin.Context) {
	location, err := h.relayService.Connect(c.Request.Context(), c.Query("code"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, location)
}
