package workers

import (
	"context"
	"huddle/contract"
	"log/slog"
)

var _ contract.Worker = (*PoolUnitWorker)(nil)

// PoolUnitWorker executes slow jobs handed over by the dispatch loop.
// Several of them drain the same queue.
type PoolUnitWorker struct {
	runner contract.JobRunner
	log    *slog.Logger
}

func NewPoolUnitWorker(runner contract.JobRunner, log *slog.Logger) *PoolUnitWorker {
	return &PoolUnitWorker{runner: runner, log: log}
}

func (w *PoolUnitWorker) Run(ctx context.Context) error {
	jobs := w.runner.Jobs()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping pool worker")
			return nil
		case job, ok := <-jobs:
			if !ok {
				w.log.Debug("Job queue closed")
				return nil
			}
			w.runner.RunJob(ctx, job)
		}
	}
}
