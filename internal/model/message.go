package model

import (
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// PostRequest is the JSON body of POST /post, sent by the reactor.
type PostRequest struct {
	User  string `json:"user"`
	Text  string `json:"text"`
	State string `json:"state"`
}

// Attachment is file content held in memory on its way between the
// reactor and Slack.
type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// WritePart adds the attachment to w as a file part carrying its own
// content type, unlike multipart.Writer.CreateFormFile.
func (a Attachment) WritePart(w *multipart.Writer, field string) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(a.Name)))
	contentType := a.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(a.Data)
	return err
}

// UploadRequest is the parsed multipart body of PUT /post.
type UploadRequest struct {
	User  string
	Text  string
	State string
	Files []Attachment
}

// Connection is what the reactor learns about a newly authorized author.
type Connection struct {
	AuthorID   string
	AuthorName string
	State      string
}
