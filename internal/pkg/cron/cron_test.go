package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/pos_billing_server/internal/worker"
)

type fakeRunner struct {
	calls   atomic.Int32
	block   chan struct{}
	started chan struct{}
	err     error
}

func (f *fakeRunner) RunAll(ctx context.Context) (*worker.ProcessingResult, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &worker.ProcessingResult{RunID: "run-1"}, nil
}

func TestNewService_DefaultInterval(t *testing.T) {
	svc := NewService(&fakeRunner{}, 0)

	assert.Equal(t, time.Hour, svc.interval)
	assert.False(t, svc.Running())
}

func TestService_RunNow(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewService(runner, time.Hour)

	require.NoError(t, svc.RunNow(context.Background()))
	require.NoError(t, svc.RunNow(context.Background()))

	assert.Equal(t, int32(2), runner.calls.Load())
	assert.False(t, svc.Running())
}

func TestService_RunNow_PropagatesError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("list due subscriptions: db down")}
	svc := NewService(runner, time.Hour)

	err := svc.RunNow(context.Background())
	assert.ErrorContains(t, err, "db down")
	assert.False(t, svc.Running())
}

func TestService_RunNow_NoOverlap(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	svc := NewService(runner, time.Hour)

	done := make(chan error, 1)
	go func() { done <- svc.RunNow(context.Background()) }()
	<-runner.started

	assert.True(t, svc.Running())
	assert.ErrorIs(t, svc.RunNow(context.Background()), ErrPassInProgress)

	close(runner.block)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestService_StartTicks(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewService(runner, 10*time.Millisecond)

	svc.Start()
	require.Eventually(t, func() bool { return runner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	svc.Stop()

	calls := runner.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, runner.calls.Load())
}

func TestService_StopCancelsRunningPass(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	svc := NewService(runner, 10*time.Millisecond)

	svc.Start()
	<-runner.started

	stopped := make(chan struct{})
	go func() {
		svc.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	// 重复 Stop 不应 panic
	svc.Stop()
}
