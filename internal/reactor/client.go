// Package reactor relays Slack activity to the reactor backend's function
// endpoints.
package reactor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"reactor/slackbridge/internal/model"
)

const (
	postPath        = "/api/_funcs/_post"
	uploadPath      = "/api/_funcs/_upload"
	authorStatePath = "/api/_funcs/_author_state"

	// DefaultTimeout bounds every call to the reactor.
	DefaultTimeout = 120 * time.Second

	maxStateBytes = 64 << 10
)

var (
	ErrRelayFailed = errors.New("reactor relay failed")
	ErrNoState     = errors.New("no author state available")
)

type Options struct {
	APIPrefix string
	// AuthToken is sent verbatim as the Authorization header.
	AuthToken  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	prefix     string
	authToken  string
	httpClient *http.Client
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := &http.Client{}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		hc = &copied
	}
	hc.Timeout = timeout

	return &Client{
		prefix:     strings.TrimRight(opts.APIPrefix, "/"),
		authToken:  opts.AuthToken,
		httpClient: hc,
	}
}

// ConnectedURL is where an author lands after authorizing the app.
func (c *Client) ConnectedURL() string {
	return c.prefix + "/api/connected"
}

// PostEvent forwards a plain text message from a Slack user.
func (c *Client) PostEvent(ctx context.Context, user, text string) error {
	body, err := json.Marshal(map[string]string{
		"user": user,
		"text": text,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}

	resp, err := c.do(ctx, postPath, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// UploadEvent forwards a message with files as multipart form data, one
// "file" part per attachment.
func (c *Client) UploadEvent(ctx context.Context, user, text string, files []model.Attachment) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("user", user); err != nil {
		return fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	if err := w.WriteField("text", text); err != nil {
		return fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	for _, f := range files {
		if err := f.WritePart(w, "file"); err != nil {
			return fmt.Errorf("%w: %v", ErrRelayFailed, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}

	resp, err := c.do(ctx, uploadPath, w.FormDataContentType(), &buf)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// GetAuthorState asks the reactor for the encrypted token it stored for
// user. Any failure is ErrNoState: the reactor decides whether a session
// exists.
func (c *Client) GetAuthorState(ctx context.Context, user string) (string, error) {
	body, err := json.Marshal(map[string]string{"author": user})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoState, err)
	}

	resp, err := c.do(ctx, authorStatePath, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoState, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxStateBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoState, err)
	}

	// Some reactor deployments reply with a JSON string instead of raw text.
	state := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if state == "" {
		return "", ErrNoState
	}
	return state, nil
}

// do posts to the reactor and returns the response only for 2xx replies.
func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.prefix+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %d", ErrRelayFailed, path, resp.StatusCode)
	}
	return resp, nil
}
