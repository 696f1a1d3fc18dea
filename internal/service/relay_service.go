package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reactor/slackbridge/internal/model"
	"reactor/slackbridge/internal/platform"
	"reactor/slackbridge/internal/repository"
)

const eventKeyPrefix = "slack_event:"

// Platform is the Slack side of the bridge.
type Platform interface {
	ExchangeCode(ctx context.Context, code string) (*platform.Exchange, error)
	FetchProfile(ctx context.Context, token string) (string, error)
	PostMessage(ctx context.Context, token, channel, text string) error
	FetchFile(ctx context.Context, token, fileURL string) ([]byte, error)
	UploadFile(ctx context.Context, token, channel string, file model.Attachment) error
}

// Reactor is the backend side of the bridge.
type Reactor interface {
	PostEvent(ctx context.Context, user, text string) error
	UploadEvent(ctx context.Context, user, text string, files []model.Attachment) error
	GetAuthorState(ctx context.Context, user string) (string, error)
	ConnectedURL() string
}

// Cipher seals access tokens into opaque state strings.
type Cipher interface {
	Encrypt(token string) (string, error)
	Decrypt(state string) (string, error)
}

type RelayService interface {
	// Connect completes the OAuth callback and returns the reactor URL to
	// redirect the author to.
	Connect(ctx context.Context, code string) (string, error)
	// CaptureEvent schedules forwarding of a webhook event and reports
	// whether anything was dispatched. It never waits for delivery.
	CaptureEvent(ctx context.Context, env *model.EventEnvelope) bool
	// ForwardEvent delivers one Slack message to the reactor.
	ForwardEvent(ctx context.Context, evt *model.Event) error
	Post(ctx context.Context, req model.PostRequest) error
	Upload(ctx context.Context, req model.UploadRequest) error
}

type RelayOptions struct {
	DedupTTL         time.Duration
	FetchConcurrency int
}

type relayService struct {
	platform   Platform
	reactor    Reactor
	cipher     Cipher
	stateStore repository.StateStore
	dispatcher *Dispatcher
	logger     *zap.Logger
	opts       RelayOptions
}

func NewRelayService(
	slack Platform,
	backend Reactor,
	cipher Cipher,
	stateStore repository.StateStore,
	dispatcher *Dispatcher,
	logger *zap.Logger,
	opts RelayOptions,
) RelayService {
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 4
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = time.Hour
	}
	return &relayService{
		platform:   slack,
		reactor:    backend,
		cipher:     cipher,
		stateStore: stateStore,
		dispatcher: dispatcher,
		logger:     logger,
		opts:       opts,
	}
}

func (s *relayService) Connect(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", badRequest("No code", ErrMissingCode)
	}

	ex, err := s.platform.ExchangeCode(ctx, code)
	if err != nil {
		if errors.Is(err, platform.ErrInvalidCode) {
			return "", badRequest("Invalid code", err)
		}
		return "", upstream("Failed to get access token", err)
	}

	name, err := s.platform.FetchProfile(ctx, ex.UserAccessToken)
	if err != nil {
		return "", upstream("Failed to get user's profile", err)
	}

	state, err := s.cipher.Encrypt(ex.AccessToken)
	if err != nil {
		return "", internal("Failed to seal access token", err)
	}

	conn := model.Connection{AuthorID: ex.UserID, AuthorName: name, State: state}
	s.logger.Info("author connected", zap.String("author_id", conn.AuthorID))
	return s.connectedURL(conn), nil
}

func (s *relayService) connectedURL(conn model.Connection) string {
	q := url.Values{
		"authorId":    {conn.AuthorID},
		"authorName":  {conn.AuthorName},
		"authorState": {conn.State},
	}
	return s.reactor.ConnectedURL() + "?" + q.Encode()
}

func (s *relayService) CaptureEvent(ctx context.Context, env *model.EventEnvelope) bool {
	evt := env.Event
	if evt == nil || !evt.FromHuman() {
		return false
	}

	if env.EventID != "" {
		fresh, err := s.stateStore.SetNX(ctx, eventKeyPrefix+env.EventID, []byte("1"), s.opts.DedupTTL)
		if err != nil {
			// Fail open: a duplicate beats a lost message.
			s.logger.Warn("event de-duplication unavailable", zap.String("event_id", env.EventID), zap.Error(err))
		} else if !fresh {
			s.logger.Debug("duplicate event ignored", zap.String("event_id", env.EventID))
			return false
		}
	}

	copied := *evt
	s.dispatcher.Go("forward_event", func(ctx context.Context) error {
		return s.ForwardEvent(ctx, &copied)
	})
	return true
}

func (s *relayService) ForwardEvent(ctx context.Context, evt *model.Event) error {
	if len(evt.Files) == 0 {
		if err := s.reactor.PostEvent(ctx, evt.User, evt.Text); err != nil {
			return fmt.Errorf("forward text from %s: %w", evt.User, err)
		}
		return nil
	}

	state, err := s.reactor.GetAuthorState(ctx, evt.User)
	if err != nil {
		s.logger.Warn("dropping files: no author state", zap.String("user", evt.User), zap.Error(err))
		return nil
	}
	token, err := s.cipher.Decrypt(state)
	if err != nil {
		s.logger.Warn("dropping files: author state rejected", zap.String("user", evt.User), zap.Error(err))
		return nil
	}

	attachments := s.fetchFiles(ctx, token, evt.User, evt.Files)
	if err := s.reactor.UploadEvent(ctx, evt.User, evt.Text, attachments); err != nil {
		return fmt.Errorf("forward files from %s: %w", evt.User, err)
	}
	return nil
}

// fetchFiles downloads every file it can. A failed file is skipped without
// affecting its siblings; order follows the event.
func (s *relayService) fetchFiles(ctx context.Context, token, user string, files []model.File) []model.Attachment {
	fetched := make([]*model.Attachment, len(files))

	var g errgroup.Group
	g.SetLimit(s.opts.FetchConcurrency)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			data, err := s.platform.FetchFile(ctx, token, f.URLPrivate)
			if err != nil {
				s.logger.Warn("skipping file", zap.String("user", user), zap.String("file", f.Name), zap.Error(err))
				return nil
			}
			fetched[i] = &model.Attachment{Name: f.Name, MimeType: f.MimeType, Data: data}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.Attachment, 0, len(files))
	for _, a := range fetched {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out
}

func (s *relayService) Post(ctx context.Context, req model.PostRequest) error {
	if req.User == "" || req.State == "" {
		return badRequest("user and state are required", ErrMissingField)
	}
	token, err := s.cipher.Decrypt(req.State)
	if err != nil {
		return badRequest("Invalid state", err)
	}

	if err := s.platform.PostMessage(ctx, token, req.User, req.Text); err != nil {
		var apiErr *platform.APIError
		if errors.As(err, &apiErr) {
			s.logger.Warn("slack refused message", zap.String("user", req.User), zap.String("error", apiErr.Code))
			return nil
		}
		return upstream("Failed to post message to slack", err)
	}
	return nil
}

func (s *relayService) Upload(ctx context.Context, req model.UploadRequest) error {
	if req.User == "" || req.State == "" {
		return badRequest("user and state are required", ErrMissingField)
	}
	token, err := s.cipher.Decrypt(req.State)
	if err != nil {
		return badRequest("Invalid state", err)
	}

	for _, f := range req.Files {
		if err := s.platform.UploadFile(ctx, token, req.User, f); err != nil {
			s.logger.Warn("file upload failed", zap.String("user", req.User), zap.String("file", f.Name), zap.Error(err))
		}
	}

	if req.Text != "" {
		if err := s.platform.PostMessage(ctx, token, req.User, req.Text); err != nil {
			s.logger.Warn("message after upload failed", zap.String("user", req.User), zap.Error(err))
		}
	}
	return nil
}
