package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"reactor/slackbridge/internal/model"
	"reactor/slackbridge/internal/platform"
)

type postedMessage struct {
	Token, Channel, Text string
}

type uploadedFile struct {
	Token, Channel string
	File           model.Attachment
}

type fakePlatform struct {
	mu sync.Mutex

	exchange    *platform.Exchange
	exchangeErr error
	profile     string
	profileErr  error
	postErr     error
	uploadErr   error
	files       map[string][]byte

	exchanged []string
	posted    []postedMessage
	uploaded  []uploadedFile
	fetched   []string
}

func (f *fakePlatform) ExchangeCode(_ context.Context, code string) (*platform.Exchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanged = append(f.exchanged, code)
	return f.exchange, f.exchangeErr
}

func (f *fakePlatform) FetchProfile(context.Context, string) (string, error) {
	return f.profile, f.profileErr
}

func (f *fakePlatform) PostMessage(_ context.Context, token, channel, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, postedMessage{token, channel, text})
	return f.postErr
}

func (f *fakePlatform) FetchFile(_ context.Context, token, fileURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, token+" "+fileURL)
	data, ok := f.files[fileURL]
	if !ok {
		return nil, platform.ErrFetchFailed
	}
	return data, nil
}

func (f *fakePlatform) UploadFile(_ context.Context, token, channel string, file model.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, uploadedFile{token, channel, file})
	return f.uploadErr
}

func (f *fakePlatform) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.exchanged) + len(f.posted) + len(f.uploaded) + len(f.fetched)
}

type forwardedEvent struct {
	User, Text string
	Files      []model.Attachment
}

type fakeReactor struct {
	mu sync.Mutex

	state    string
	stateErr error
	postErr  error
	// gate, when set, blocks PostEvent until closed.
	gate chan struct{}

	posts   []forwardedEvent
	uploads []forwardedEvent
	lookups []string
}

func (r *fakeReactor) PostEvent(_ context.Context, user, text string) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, forwardedEvent{User: user, Text: text})
	return r.postErr
}

func (r *fakeReactor) UploadEvent(_ context.Context, user, text string, files []model.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, forwardedEvent{User: user, Text: text, Files: files})
	return nil
}

func (r *fakeReactor) GetAuthorState(_ context.Context, user string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups = append(r.lookups, user)
	return r.state, r.stateErr
}

func (r *fakeReactor) ConnectedURL() string {
	return "https://reactor.example.com/api/connected"
}

func (r *fakeReactor) snapshot() (posts, uploads []forwardedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]forwardedEvent(nil), r.posts...), append([]forwardedEvent(nil), r.uploads...)
}

var errBadState = errors.New("bad state")

// prefixCipher is a reversible stand-in for the RSA cipher.
type prefixCipher struct{}

func (prefixCipher) Encrypt(token string) (string, error) { return "sealed:" + token, nil }

func (prefixCipher) Decrypt(state string) (string, error) {
	token, ok := strings.CutPrefix(state, "sealed:")
	if !ok {
		return "", errBadState
	}
	return token, nil
}
