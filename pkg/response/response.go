package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// The bridge answers with short plain-text bodies; callers (Slack, the
// reactor) only look at the status code.

func OK(c *gin.Context) {
	c.Status(http.StatusOK)
}

func Text(c *gin.Context, body string) {
	c.String(http.StatusOK, body)
}

func Error(c *gin.Context, httpStatus int, message string) {
	c.String(httpStatus, message)
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

func TooLarge(c *gin.Context, message string) {
	Error(c, http.StatusRequestEntityTooLarge, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}
