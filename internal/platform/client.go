// Package platform talks to the Slack Web API on behalf of authorized
// authors.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"reactor/slackbridge/internal/model"
)

// DefaultTimeout bounds every call to Slack.
const DefaultTimeout = 120 * time.Second

// DefaultFileHosts serve url_private downloads.
var DefaultFileHosts = []string{"files.slack.com"}

var (
	ErrExchangeFailed     = errors.New("failed to get access token")
	ErrInvalidCode        = errors.New("invalid code")
	ErrProfileUnavailable = errors.New("failed to get user's profile")
	ErrPostFailed         = errors.New("failed to post message to slack")
	ErrFetchFailed        = errors.New("failed to fetch file from slack")
	ErrUploadFailed       = errors.New("failed to upload file to slack")
	ErrUntrustedFile      = errors.New("file url is not on a slack file host")
)

// APIError is a well-formed Slack reply with "ok": false.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Code)
}

// Exchange is the result of a successful OAuth v2 code exchange.
// AccessToken is the app-level token and becomes the author's state;
// UserAccessToken belongs to the authorizing user.
type Exchange struct {
	UserID          string
	AccessToken     string
	UserAccessToken string
}

type Options struct {
	APIBase      string
	AuthorizeURL string
	ClientID     string
	ClientSecret string
	Scopes       []string
	UserScopes   []string
	Timeout      time.Duration

	// FileHosts may serve files the author's token is sent to, over https.
	// The API host itself is always allowed.
	FileHosts []string

	// HTTPClient is copied, never mutated.
	HTTPClient *http.Client
}

type Client struct {
	apiBase    string
	oauth      *oauth2.Config
	scopes     []string
	userScopes []string
	apiURL     *url.URL
	fileHosts  []string
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

	fileHosts := opts.FileHosts
	if len(fileHosts) == 0 {
		fileHosts = DefaultFileHosts
	}

	apiBase := strings.TrimRight(opts.APIBase, "/")
	apiURL, _ := url.Parse(apiBase)
	return &Client{
		apiBase: apiBase,
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthorizeURL,
				TokenURL:  apiBase + "/oauth.v2.access",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		scopes:     opts.Scopes,
		userScopes: opts.UserScopes,
		apiURL:     apiURL,
		fileHosts:  fileHosts,
		httpClient: hc,
	}
}

// InstallURL is the Slack authorize page that eventually redirects back
// to the auth callback with a code. Slack wants comma separated scopes.
func (c *Client) InstallURL() string {
	var opts []oauth2.AuthCodeOption
	if len(c.scopes) > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("scope", strings.Join(c.scopes, ",")))
	}
	if len(c.userScopes) > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("user_scope", strings.Join(c.userScopes, ",")))
	}
	return c.oauth.AuthCodeURL("", opts...)
}

// authed returns a client that sends token as a bearer credential.
func (c *Client) authed(ctx context.Context, token string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	hc.Timeout = c.httpClient.Timeout
	hc.CheckRedirect = sameOriginRedirect
	return hc
}

// sameOriginRedirect keeps the bearer token on the host it was meant for.
func sameOriginRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	orig := via[0].URL
	if req.URL.Scheme != orig.Scheme || req.URL.Host != orig.Host {
		return fmt.Errorf("redirect to %s refused", req.URL.Host)
	}
	return nil
}

// trustedFileURL reports whether the author's token may be sent to raw.
func (c *Client) trustedFileURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.User != nil || u.Host == "" {
		return false
	}
	if c.apiURL != nil && u.Scheme == c.apiURL.Scheme && u.Host == c.apiURL.Host {
		return true
	}
	if u.Scheme != "https" || (u.Port() != "" && u.Port() != "443") {
		return false
	}
	return slices.Contains(c.fileHosts, strings.ToLower(u.Hostname()))
}

// ExchangeCode trades an OAuth code for tokens. A well-formed refusal from
// Slack is ErrInvalidCode; every other failure is ErrExchangeFailed.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Exchange, error) {
	params := url.Values{
		"client_id":     {c.oauth.ClientID},
		"client_secret": {c.oauth.ClientSecret},
		"code":          {code},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauth.Endpoint.TokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, ErrExchangeFailed
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrExchangeFailed, resp.StatusCode)
	}

	var body struct {
		OK          bool   `json:"ok"`
		Error       string `json:"error"`
		AccessToken string `json:"access_token"`
		AuthedUser  *struct {
			ID          string `json:"id"`
			AccessToken string `json:"access_token"`
		} `json:"authed_user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	if !body.OK {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCode, body.Error)
	}
	if body.AuthedUser == nil || body.AuthedUser.ID == "" {
		return nil, fmt.Errorf("%w: missing authed_user", ErrExchangeFailed)
	}

	ex := &Exchange{
		UserID:          body.AuthedUser.ID,
		AccessToken:     body.AccessToken,
		UserAccessToken: body.AuthedUser.AccessToken,
	}
	if ex.AccessToken == "" {
		ex.AccessToken = ex.UserAccessToken
	}
	if ex.UserAccessToken == "" {
		ex.UserAccessToken = ex.AccessToken
	}
	if ex.AccessToken == "" {
		return nil, fmt.Errorf("%w: no token issued", ErrExchangeFailed)
	}
	return ex, nil
}

// FetchProfile returns the user's real name, falling back to the display
// name.
func (c *Client) FetchProfile(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/users.profile.get", nil)
	if err != nil {
		return "", ErrProfileUnavailable
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.authed(ctx, token).Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrProfileUnavailable, resp.StatusCode)
	}

	var body struct {
		OK      bool   `json:"ok"`
		Error   string `json:"error"`
		Profile *struct {
			RealName    string `json:"real_name"`
			DisplayName string `json:"display_name"`
		} `json:"profile"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}
	if body.Profile == nil {
		return "", fmt.Errorf("%w: no profile in response", ErrProfileUnavailable)
	}

	name := body.Profile.RealName
	if name == "" {
		name = body.Profile.DisplayName
	}
	if name == "" {
		return "", fmt.Errorf("%w: profile has no name", ErrProfileUnavailable)
	}
	return name, nil
}

// PostMessage sends text to channel (a user id opens the app DM). It is
// not retried. A Slack-side refusal comes back as *APIError.
func (c *Client) PostMessage(ctx context.Context, token, channel, text string) error {
	payload, err := json.Marshal(map[string]string{
		"channel": channel,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPostFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/chat.postMessage", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPostFailed, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.authed(ctx, token).Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPostFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrPostFailed, resp.StatusCode)
	}
	return checkOK("chat.postMessage", resp.Body)
}

// FetchFile downloads a private file with the author's token. URLs outside
// the API host and the configured file hosts are refused before any request.
func (c *Client) FetchFile(ctx context.Context, token, fileURL string) ([]byte, error) {
	if !c.trustedFileURL(fileURL) {
		return nil, ErrUntrustedFile
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	resp, err := c.authed(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return data, nil
}

// UploadFile shares one file into channel.
func (c *Client) UploadFile(ctx context.Context, token, channel string, file model.Attachment) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("channels", channel); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := file.WritePart(w, "file"); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/files.upload", &buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.authed(ctx, token).Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrUploadFailed, resp.StatusCode)
	}
	return checkOK("files.upload", resp.Body)
}

func checkOK(method string, r io.Reader) error {
	var body struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		// Non-JSON success bodies are tolerated; the status already said 2xx.
		return nil
	}
	if !body.OK {
		return &APIError{Method: method, Code: body.Error}
	}
	return nil
}
