package runtime

import (
	"context"
	"huddle/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	loop := NewLoop(testLogger(), 16)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		loop.Close()
	})
	return loop, cancel
}

func TestLoop_SurvivesPanickingTask(t *testing.T) {
	req := require.New(t)
	loop, _ := startLoop(t)

	// When a task panics
	req.True(loop.Post(func() { panic("boom") }))

	// Then the next one still runs
	ran := false
	req.NoError(loop.Do(context.Background(), func() error {
		ran = true
		return nil
	}))
	req.True(ran)

	// And a panic inside Do is reported
	err := loop.Do(context.Background(), func() error { panic("again") })
	req.ErrorIs(err, errors.ErrWorkerPanic)
}

func TestLoop_AsyncCompletesOnLoop(t *testing.T) {
	req := require.New(t)
	loop, _ := startLoop(t)

	// Given a job picked up by a runner outside the loop
	done := make(chan int, 1)
	loop.Async(func(_ context.Context) (any, error) {
		return 21, nil
	}, func(result any, err error) {
		req.NoError(err)
		done <- result.(int) * 2
	})
	job := <-loop.Jobs()

	// When it runs
	loop.RunJob(context.Background(), job)

	// Then its completion is delivered through the loop
	select {
	case v := <-done:
		req.Equal(42, v)
	case <-time.After(time.Second):
		req.Fail("completion never ran")
	}
}

func TestLoop_JobPanicBecomesError(t *testing.T) {
	req := require.New(t)
	loop, _ := startLoop(t)

	done := make(chan error, 1)
	loop.Async(func(_ context.Context) (any, error) {
		panic("boom")
	}, func(_ any, err error) {
		done <- err
	})
	loop.RunJob(context.Background(), <-loop.Jobs())

	select {
	case err := <-done:
		req.ErrorIs(err, errors.ErrWorkerPanic)
	case <-time.After(time.Second):
		req.Fail("completion never ran")
	}
}

func TestLoop_AfterCanBeCanceled(t *testing.T) {
	req := require.New(t)
	loop, _ := startLoop(t)

	fired := make(chan string, 2)
	cancel := loop.After(10*time.Millisecond, func() { fired <- "canceled" })
	loop.After(20*time.Millisecond, func() { fired <- "kept" })
	cancel()

	select {
	case v := <-fired:
		req.Equal("kept", v)
	case <-time.After(time.Second):
		req.Fail("timer never fired")
	}
}

func TestLoop_ClosedLoopRejectsWork(t *testing.T) {
	req := require.New(t)
	loop := NewLoop(testLogger(), 1)

	// When the loop is closed
	loop.Close()
	loop.Close()

	// Then nothing is accepted
	req.False(loop.Post(func() {}))
	req.ErrorIs(loop.Do(context.Background(), func() error { return nil }), errors.ErrLoopStopped)
}

func TestLoop_Backlog(t *testing.T) {
	req := require.New(t)

	// Given a loop nobody drains
	loop := NewLoop(testLogger(), 4)
	loop.Post(func() {})
	loop.Async(func(context.Context) (any, error) { return nil, nil }, func(any, error) {})
	loop.Async(func(context.Context) (any, error) { return nil, nil }, func(any, error) {})

	// Then both queues report their fill ratio
	tasks, jobs := loop.Backlog()
	req.InDelta(0.25, tasks, 0.001)
	req.InDelta(0.5, jobs, 0.001)
}
