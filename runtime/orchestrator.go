package runtime

import (
	"context"
	"huddle/contract"
	"huddle/domain"
	"huddle/domain/envelope"
	"huddle/moderation"
	"huddle/runtime/workers"
	"log/slog"
	"sync"
	"time"
)

var _ contract.ConnHandler = (*Orchestrator)(nil)

// Settings tunes the real-time core.
type Settings struct {
	BufferSize       int
	NumberOfWorkers  int
	ProbeInterval    time.Duration
	RingTimeout      time.Duration
	HandshakeTimeout time.Duration
	MaxContentLength int
}

// Collaborators are the slow, storage-backed dependencies of the core.
// Statuses, Calls, Index and Moderator are optional.
type Collaborators struct {
	Verifier  contract.IdentityVerifier
	Messages  contract.IMessageRepository
	Members   contract.IMembershipRepository
	Statuses  contract.IStatusRepository
	Calls     contract.ICallRepository
	Index     contract.IMessageIndex
	Moderator *moderation.Moderator
}

// Stats is a snapshot of the live state, taken on the loop.
type Stats struct {
	Connections int     `json:"connections"`
	UsersOnline int     `json:"usersOnline"`
	LiveCalls   int     `json:"liveCalls"`
	TaskBacklog float64 `json:"taskBacklog"`
	JobBacklog  float64 `json:"jobBacklog"`
}

// Orchestrator wires the core components around one dispatch loop and runs
// the loop, the pool workers and the health monitor under a supervisor.
// Transports talk to it through contract.ConnHandler.
type Orchestrator struct {
	log         *slog.Logger
	settings    Settings
	supervisor  contract.ISupervisor
	loop        *Loop
	registry    *Registry
	coordinator *Coordinator
	liveness    *Liveness
	dispatcher  *Dispatcher

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, deps Collaborators, settings Settings) *Orchestrator {
	loop := NewLoop(log, settings.BufferSize)
	registry := NewRegistry()
	fanout := NewFanout(registry, log)

	presence := NewPresenceTracker(registry, fanout, loop, deps.Statuses, log)
	coordinator := NewCoordinator(registry, fanout, loop, deps.Calls, settings.RingTimeout, log)
	registry.OnChange(presence.OnRegistryChange)
	registry.OnChange(coordinator.OnRegistryChange)

	router := NewRouter(registry, fanout, loop, deps.Messages, deps.Members, settings.MaxContentLength, log)
	if deps.Moderator != nil {
		router.WithModerator(deps.Moderator)
	}
	if deps.Index != nil {
		router.WithIndex(deps.Index)
	}

	liveness := NewLiveness(registry, log)
	return &Orchestrator{
		log:         log,
		settings:    settings,
		supervisor:  supervisor,
		loop:        loop,
		registry:    registry,
		coordinator: coordinator,
		liveness:    liveness,
		dispatcher: NewDispatcher(registry, fanout, router, coordinator, liveness, deps.Verifier, loop, log).
			WithHandshakeTimeout(settings.HandshakeTimeout),
	}
}

// Start hands the loop and its workers to the supervisor and returns immediately.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped != nil {
		return
	}

	o.supervisor.Add(o.loop)
	for i := 0; i < max(o.settings.NumberOfWorkers, 1); i++ {
		o.supervisor.Add(workers.NewPoolUnitWorker(o.loop, o.log))
	}
	if o.settings.ProbeInterval > 0 {
		o.supervisor.Add(workers.NewHealthMonitoringWorker(o.log, o.loop, o.liveness.ProbeAll, o.settings.ProbeInterval))
	}

	ctx, o.cancel = context.WithCancel(ctx)
	o.stopped = make(chan struct{})
	stopped := o.stopped
	o.log.Info("Starting dispatch loop", "workers", o.settings.NumberOfWorkers, "probe_interval", o.settings.ProbeInterval)
	go func() {
		defer close(stopped)
		o.supervisor.Run(ctx)
	}()
}

// Stop cancels every supervised worker and waits for them.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, stopped := o.cancel, o.stopped
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	o.log.Info("Requesting orchestrator shutdown")
	cancel()
	o.loop.Close()
	<-stopped
}

// Receive posts an inbound envelope onto the loop.
func (o *Orchestrator) Receive(conn contract.Conn, env envelope.Envelope) {
	if !o.loop.Post(func() { o.dispatcher.Dispatch(conn, env) }) {
		o.log.Debug("Dispatch loop closed, dropping envelope", "conn_id", conn.ID(), "type", env.Type)
	}
}

func (o *Orchestrator) Connect(conn contract.Conn) {
	o.loop.Post(func() { o.dispatcher.Connect(conn) })
}

func (o *Orchestrator) Disconnect(conn contract.Conn) {
	o.loop.Post(func() { o.dispatcher.Disconnect(conn) })
}

func (o *Orchestrator) Acknowledge(id domain.ConnID) {
	o.loop.Post(func() { o.dispatcher.Acknowledge(id) })
}

// Loop is the entry point of synchronous callers such as the REST handlers.
func (o *Orchestrator) Loop() contract.ILoop {
	return o.loop
}

// Coordinator must only be used from inside Loop().Do.
func (o *Orchestrator) Coordinator() *Coordinator {
	return o.coordinator
}

func (o *Orchestrator) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := o.loop.Do(ctx, func() error {
		stats = Stats{
			Connections: o.registry.Len(),
			UsersOnline: len(o.registry.AllUsersOnline()),
			LiveCalls:   len(o.coordinator.sessions),
		}
		stats.TaskBacklog, stats.JobBacklog = o.loop.Backlog()
		return nil
	})
	return stats, err
}
