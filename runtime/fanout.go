package runtime

import (
	"huddle/contract"
	"huddle/domain"
	"huddle/domain/envelope"
	"log/slog"
)

// Fanout pushes envelopes to every open connection of a set of users.
//
// Delivery is best-effort: a failed send is logged and skipped and never
// aborts delivery to the remaining connections. Nothing is queued for
// users without connections; they recover through history.
type Fanout struct {
	registry *Registry
	log      *slog.Logger
}

func NewFanout(registry *Registry, log *slog.Logger) *Fanout {
	return &Fanout{registry: registry, log: log}
}

// ToUser delivers env to every connection of userID except skip and returns
// the number of successful sends.
func (f *Fanout) ToUser(userID domain.UserID, env envelope.Envelope, skip domain.ConnID) int {
	delivered := 0
	for _, conn := range f.registry.ConnectionsOf(userID) {
		if skip != "" && conn.ID() == skip {
			continue
		}
		if err := conn.Send(env); err != nil {
			f.log.Warn("Failed to push envelope",
				"user_id", userID,
				"conn_id", conn.ID(),
				"type", env.Type,
				"error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// ToUsers delivers env to every listed user, skipping one connection.
func (f *Fanout) ToUsers(userIDs []domain.UserID, env envelope.Envelope, skip domain.ConnID) int {
	delivered := 0
	for _, userID := range userIDs {
		delivered += f.ToUser(userID, env, skip)
	}
	return delivered
}

// Reply answers the originating connection only.
func (f *Fanout) Reply(conn contract.Conn, env envelope.Envelope) {
	if conn == nil {
		return
	}
	if err := conn.Send(env); err != nil {
		f.log.Warn("Failed to reply", "conn_id", conn.ID(), "type", env.Type, "error", err)
	}
}
