package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reactor/slackbridge/internal/service"
	"reactor/slackbridge/pkg/response"
)

// fail writes the caller-safe form of err. Internal detail is attached to
// the gin context so the request logger can record it.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)

	msg := service.PublicMessage(err)
	switch service.KindOf(err) {
	case service.KindBadRequest:
		response.BadRequest(c, msg)
	case service.KindUpstream:
		response.InternalError(c, msg)
	default:
		response.InternalError(c, "internal error")
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
