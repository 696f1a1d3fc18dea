package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"reactor/slackbridge/internal/model"
	"reactor/slackbridge/internal/service"
	"reactor/slackbridge/pkg/response"
)

var errBadMultipart = errors.New("invalid multipart body")

type PostHandler struct {
	relayService service.RelayService
}

func NewPostHandler(relayService service.RelayService) *PostHandler {
	return &PostHandler{relayService: relayService}
}

// Post sends a text message from the reactor to a Slack user.
func (h *PostHandler) Post(c *gin.Context) {
	var req model.PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	if err := h.relayService.Post(c.Request.Context(), req); err != nil {
		fail(c, err)
		return
	}
	response.OK(c)
}

// Upload sends files, then optional text, from the reactor to a Slack user.
// The body must already be size-limited by middleware.BodyLimit.
func (h *PostHandler) Upload(c *gin.Context) {
	req, err := readUploadForm(c.Request)
	if err != nil {
		if isTooLarge(err) {
			response.TooLarge(c, "request body too large")
			return
		}
		_ = c.Error(err)
		response.BadRequest(c, errBadMultipart.Error())
		return
	}

	if err := h.relayService.Upload(c.Request.Context(), req); err != nil {
		fail(c, err)
		return
	}
	response.OK(c)
}

// readUploadForm streams the multipart body part by part. Unknown fields
// are skipped.
func readUploadForm(r *http.Request) (model.UploadRequest, error) {
	var req model.UploadRequest

	mr, err := r.MultipartReader()
	if err != nil {
		return req, err
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return req, nil
		}
		if err != nil {
			return req, err
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return req, err
		}

		switch part.FormName() {
		case "file":
			req.Files = append(req.Files, model.Attachment{
				Name:     part.FileName(),
				MimeType: part.Header.Get("Content-Type"),
				Data:     data,
			})
		case "user":
			req.User = string(data)
		case "text":
			req.Text = string(data)
		case "state":
			req.State = string(data)
		}
	}
}
