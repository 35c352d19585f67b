package workers

import (
	"context"
	"huddle/contract"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*HealthMonitoringWorker)(nil)

// HealthMonitoringWorker triggers a liveness sweep on the dispatch loop at a
// fixed period and samples the resource usage of the server process.
type HealthMonitoringWorker struct {
	log      *slog.Logger
	loop     contract.ILoop
	sweep    func() int
	interval time.Duration
	self     *process.Process
}

// NewHealthMonitoringWorker builds the worker. sweep runs on the loop and
// returns the number of pruned connections.
func NewHealthMonitoringWorker(log *slog.Logger, loop contract.ILoop, sweep func() int, interval time.Duration) *HealthMonitoringWorker {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Debug("Process sampling disabled", "error", err)
	}
	return &HealthMonitoringWorker{log: log, loop: loop, sweep: sweep, interval: interval, self: self}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *HealthMonitoringWorker) tick() {
	posted := w.loop.Post(func() {
		if pruned := w.sweep(); pruned > 0 {
			w.log.Info("Liveness sweep", "pruned", pruned)
		}
	})
	if !posted {
		w.log.Debug("Dispatch loop closed, skipping liveness sweep")
		return
	}
	if usage, ok := SampleProcess(w.self); ok {
		w.log.Debug("Process usage", "cpu_percent", usage.CPUPercent, "ram_percent", usage.RAMPercent, "threads", usage.Threads)
	}
}

// ProcessUsage is a point-in-time sample of the server process.
type ProcessUsage struct {
	CPUPercent float64 `json:"cpuPercent"`
	RAMPercent float32 `json:"ramPercent"`
	Threads    int32   `json:"threads"`
}

// SampleProcess reads the resource usage of p. It reports false when p is nil
// or when the platform refuses to answer.
func SampleProcess(p *process.Process) (ProcessUsage, bool) {
	if p == nil {
		return ProcessUsage{}, false
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return ProcessUsage{}, false
	}
	ram, err := p.MemoryPercent()
	if err != nil {
		return ProcessUsage{}, false
	}
	threads, err := p.NumThreads()
	if err != nil {
		return ProcessUsage{}, false
	}
	return ProcessUsage{CPUPercent: cpu, RAMPercent: ram, Threads: threads}, true
}
