package platform

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reactor/slackbridge/internal/model"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		APIBase:      srv.URL + "/api/",
		AuthorizeURL: "https://slack.example.com/oauth/v2/authorize",
		ClientID:     "cid",
		ClientSecret: "csecret",
		Timeout:      5 * time.Second,
	})
}

func TestExchangeCode(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		wantToken string
		wantUser  string
	}{
		{
			name:      "app and user tokens",
			status:    http.StatusOK,
			body:      `{"ok":true,"access_token":"xoxb-app","authed_user":{"id":"U1","access_token":"xoxp-user"}}`,
			wantToken: "xoxb-app",
			wantUser:  "xoxp-user",
		},
		{
			name:      "user token only",
			status:    http.StatusOK,
			body:      `{"ok":true,"authed_user":{"id":"U1","access_token":"xoxp-user"}}`,
			wantToken: "xoxp-user",
			wantUser:  "xoxp-user",
		},
		{
			name:    "slack refuses code",
			status:  http.StatusOK,
			body:    `{"ok":false,"error":"invalid_code"}`,
			wantErr: ErrInvalidCode,
		},
		{
			name:    "non json",
			status:  http.StatusOK,
			body:    `<html>oops</html>`,
			wantErr: ErrExchangeFailed,
		},
		{
			name:    "upstream error status",
			status:  http.StatusBadGateway,
			body:    `{"ok":true}`,
			wantErr: ErrExchangeFailed,
		},
		{
			name:    "missing authed user",
			status:  http.StatusOK,
			body:    `{"ok":true,"access_token":"xoxb-app"}`,
			wantErr: ErrExchangeFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/oauth.v2.access", r.URL.Path)
				assert.Equal(t, http.MethodPost, r.Method)
				assert.NoError(t, r.ParseForm())
				assert.Equal(t, "cid", r.PostForm.Get("client_id"))
				assert.Equal(t, "csecret", r.PostForm.Get("client_secret"))
				assert.Equal(t, "the-code", r.PostForm.Get("code"))
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))

			ex, err := c.ExchangeCode(context.Background(), "the-code")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, ex)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "U1", ex.UserID)
			assert.Equal(t, tt.wantToken, ex.AccessToken)
			assert.Equal(t, tt.wantUser, ex.UserAccessToken)
		})
	}
}

func TestFetchProfile(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"real name", `{"ok":true,"profile":{"real_name":"Ada Lovelace","display_name":"ada"}}`, "Ada Lovelace", false},
		{"display name fallback", `{"ok":true,"profile":{"display_name":"ada"}}`, "ada", false},
		{"profile absent", `{"ok":false,"error":"invalid_auth"}`, "", true},
		{"malformed", `{"profile":`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/users.profile.get", r.URL.Path)
				assert.Equal(t, "Bearer xoxp-user", r.Header.Get("Authorization"))
				_, _ = io.WriteString(w, tt.body)
			}))

			name, err := c.FetchProfile(context.Background(), "xoxp-user")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrProfileUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, name)
		})
	}
}

func TestPostMessage(t *testing.T) {
	var got map[string]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat.postMessage", r.URL.Path)
		assert.Equal(t, "Bearer xoxb-app", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))

	require.NoError(t, c.PostMessage(context.Background(), "xoxb-app", "U1", "hello"))
	assert.Equal(t, map[string]string{"channel": "U1", "text": "hello"}, got)
}

func TestPostMessage_Failures(t *testing.T) {
	t.Run("api refusal", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"ok":false,"error":"channel_not_found"}`)
		}))
		err := c.PostMessage(context.Background(), "tok", "U1", "hello")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "channel_not_found", apiErr.Code)
	})

	t.Run("http error", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		err := c.PostMessage(context.Background(), "tok", "U1", "hello")
		assert.ErrorIs(t, err, ErrPostFailed)
	})
}

func TestFetchFile(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer xoxp-user" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = io.WriteString(w, "file-bytes")
	}))

	data, err := c.FetchFile(context.Background(), "xoxp-user", c.apiBase+"/files/F1/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("file-bytes"), data)

	_, err = c.FetchFile(context.Background(), "wrong", c.apiBase+"/files/F1/a.txt")
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestFetchFile_UntrustedURLs(t *testing.T) {
	var hits int
	elsewhere := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = io.WriteString(w, "stolen")
	}))
	defer elsewhere.Close()

	c := newTestClient(t, http.NotFoundHandler())

	for _, raw := range []string{
		elsewhere.URL + "/files/a.png",
		"https://evil.example.com/files/a.png",
		"http://files.slack.com/files-pri/T1-F1/a.png",
		"https://files.slack.com:8443/files-pri/T1-F1/a.png",
		"https://user:pw@files.slack.com/files-pri/T1-F1/a.png",
		"/files/a.png",
	} {
		_, err := c.FetchFile(context.Background(), "xoxp-user", raw)
		assert.ErrorIs(t, err, ErrUntrustedFile, raw)
	}
	assert.Zero(t, hits)
}

func TestTrustedFileURL(t *testing.T) {
	c := NewClient(Options{
		APIBase:   "https://slack.com/api",
		FileHosts: []string{"files.slack.com", "files.example-gov.com"},
	})

	tests := []struct {
		url  string
		want bool
	}{
		{"https://files.slack.com/files-pri/T1-F1/a.png", true},
		{"https://FILES.slack.com/files-pri/T1-F1/a.png", true},
		{"https://files.slack.com:443/files-pri/T1-F1/a.png", true},
		{"https://files.example-gov.com/files-pri/T1-F1/a.png", true},
		{"https://slack.com/api/files.info", true},
		{"http://slack.com/api/files.info", false},
		{"https://files.slack.com.evil.example/a.png", false},
		{"https://evil.example/files.slack.com/a.png", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.trustedFileURL(tt.url), tt.url)
	}
}

func TestFetchFile_RefusesCrossHostRedirect(t *testing.T) {
	var leaked string
	elsewhere := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		leaked = r.Header.Get("Authorization")
	}))
	defer elsewhere.Close()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, elsewhere.URL+"/loot", http.StatusFound)
	}))

	_, err := c.FetchFile(context.Background(), "xoxp-user", c.apiBase+"/files/F1/a.txt")
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Empty(t, leaked)
}

func TestNewClient_DoesNotMutateSharedHTTPClient(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}

	c := NewClient(Options{APIBase: "https://slack.com/api", Timeout: time.Second, HTTPClient: shared})

	assert.Equal(t, time.Minute, shared.Timeout)
	assert.Equal(t, time.Second, c.httpClient.Timeout)
	assert.NotSame(t, shared, c.httpClient)
}

func TestUploadFile(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files.upload", r.URL.Path)
		assert.Equal(t, "Bearer xoxb-app", r.Header.Get("Authorization"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "U1", r.FormValue("channels"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "report.csv", hdr.Filename)
		assert.Equal(t, "text/csv", hdr.Header.Get("Content-Type"))
		assert.Equal(t, "a,b\n", string(data))
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))

	err := c.UploadFile(context.Background(), "xoxb-app", "U1", model.Attachment{
		Name: "report.csv", MimeType: "text/csv", Data: []byte("a,b\n"),
	})
	require.NoError(t, err)
}

func TestInstallURL(t *testing.T) {
	c := NewClient(Options{
		APIBase:      "https://slack.com/api",
		AuthorizeURL: "https://slack.com/oauth/v2/authorize",
		ClientID:     "cid",
		Scopes:       []string{"chat:write", "im:history"},
		UserScopes:   []string{"files:read"},
	})

	u, err := url.Parse(c.InstallURL())
	require.NoError(t, err)
	assert.Equal(t, "slack.com", u.Host)
	assert.Equal(t, "/oauth/v2/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "chat:write,im:history", q.Get("scope"))
	assert.Equal(t, "files:read", q.Get("user_scope"))
	assert.Empty(t, q.Get("state"))
}

func TestClientTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(Options{APIBase: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.FetchProfile(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrProfileUnavailable)
}
