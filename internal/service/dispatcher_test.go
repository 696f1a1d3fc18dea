package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDispatcher_RunsAndLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := NewDispatcher(zap.New(core))

	var ran atomic.Int32
	d.Go("ok", func(context.Context) error { ran.Add(1); return nil })
	d.Go("fails", func(context.Context) error { ran.Add(1); return errors.New("reactor down") })
	d.Go("panics", func(context.Context) error { ran.Add(1); panic("boom") })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))

	assert.Equal(t, int32(3), ran.Load())
	assert.Equal(t, 1, logs.FilterMessage("background task failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("background task panicked").Len())
}

func TestDispatcher_WaitHonorsContext(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	release := make(chan struct{})
	defer close(release)

	d.Go("stuck", func(context.Context) error { <-release; return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)
}

func TestDispatcher_ContextOutlivesCaller(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	reqCtx, cancel := context.WithCancel(context.Background())

	got := make(chan error, 1)
	d.Go("detached", func(ctx context.Context) error {
		cancel()
		got <- ctx.Err()
		return nil
	})
	require.NoError(t, d.Wait(context.Background()))
	assert.NoError(t, <-got)
	assert.Error(t, reqCtx.Err())
}

func TestErrorKinds(t *testing.T) {
	err := badRequest("No code", ErrMissingCode)
	assert.Equal(t, KindBadRequest, KindOf(err))
	assert.ErrorIs(t, err, ErrMissingCode)
	assert.Equal(t, "No code", PublicMessage(err))

	plain := errors.New("boom")
	assert.Equal(t, KindInternal, KindOf(plain))
	assert.Equal(t, "internal error", PublicMessage(plain))
	assert.Equal(t, "upstream_failure", KindUpstream.String())
}
