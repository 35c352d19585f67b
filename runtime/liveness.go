package runtime

import (
	"huddle/domain"
	"log/slog"
)

// Liveness probes registered connections and prunes the ones that stopped answering.
// Its methods run on the dispatch loop; the periodic trigger lives in workers.HealthMonitoringWorker.
type Liveness struct {
	registry *Registry
	log      *slog.Logger
}

func NewLiveness(registry *Registry, log *slog.Logger) *Liveness {
	return &Liveness{registry: registry, log: log}
}

// ProbeAll prunes every connection whose previous probe went unacknowledged,
// then probes the survivors. It returns the number of pruned connections.
func (l *Liveness) ProbeAll() int {
	pruned := 0
	for _, entry := range l.registry.Entries() {
		if entry.awaitingAck {
			l.log.Info("Pruning unresponsive connection", "user_id", entry.UserID, "conn_id", entry.Conn.ID())
			l.prune(entry)
			pruned++
			continue
		}
		entry.awaitingAck = true
		if err := entry.Conn.Ping(); err != nil {
			l.log.Info("Pruning connection after failed probe", "user_id", entry.UserID, "conn_id", entry.Conn.ID(), "error", err)
			l.prune(entry)
			pruned++
		}
	}
	return pruned
}

// Acknowledge records the answer to the last probe.
func (l *Liveness) Acknowledge(id domain.ConnID) {
	if entry, ok := l.registry.Entry(id); ok {
		entry.awaitingAck = false
		entry.lastAckAt = l.registry.now()
	}
}

func (l *Liveness) prune(entry *ConnectionEntry) {
	l.registry.Remove(entry.Conn.ID())
	if err := entry.Conn.Close(); err != nil {
		l.log.Debug("Error closing pruned connection", "conn_id", entry.Conn.ID(), "error", err)
	}
}
