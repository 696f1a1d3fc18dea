package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"reactor/slackbridge/pkg/response"
)

// BodyLimit rejects requests whose declared length exceeds limit and caps
// the body reader for the rest, so an oversized upload is never fully
// buffered.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			response.TooLarge(c, "request body too large")
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
