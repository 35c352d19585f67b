package workers

import (
	"context"
	"huddle/contract"
	"huddle/mocks"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPoolUnitWorker_RunsEveryJob(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockJobRunner(ctrl)

	// Given a queue holding two jobs
	jobs := make(chan contract.Job, 2)
	jobs <- contract.Job{}
	jobs <- contract.Job{}
	close(jobs)

	runner.EXPECT().Jobs().Return((<-chan contract.Job)(jobs))
	runner.EXPECT().RunJob(gomock.Any(), gomock.Any()).Times(2)

	// When the worker drains it
	err := NewPoolUnitWorker(runner, slog.Default()).Run(context.Background())

	// Then it returns once the queue is closed
	req.NoError(err)
}

func TestPoolUnitWorker_StopsWithContext(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockJobRunner(ctrl)
	runner.EXPECT().Jobs().Return(make(<-chan contract.Job))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewPoolUnitWorker(runner, slog.Default()).Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(500 * time.Millisecond):
		req.Fail("worker should stop when its context is canceled")
	}
}
