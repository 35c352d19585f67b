package runtime

import (
	"context"
	"huddle/contract"
	"huddle/domain"
	"huddle/domain/envelope"
	"log/slog"
	"time"
)

// PresenceTracker turns registry occupancy changes into status broadcasts
// and a persisted coarse status. It never holds connection state itself.
type PresenceTracker struct {
	registry  *Registry
	fanout    *Fanout
	scheduler contract.Scheduler
	statuses  contract.IStatusRepository
	log       *slog.Logger
	now       func() time.Time
}

func NewPresenceTracker(registry *Registry, fanout *Fanout, scheduler contract.Scheduler,
	statuses contract.IStatusRepository, log *slog.Logger) *PresenceTracker {
	return &PresenceTracker{
		registry:  registry,
		fanout:    fanout,
		scheduler: scheduler,
		statuses:  statuses,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OnRegistryChange is registered as a registry observer.
func (p *PresenceTracker) OnRegistryChange(userID domain.UserID, isNowOnline bool) {
	record := domain.StatusRecord{
		UserID:    userID,
		Status:    domain.StatusOf(isNowOnline),
		UpdatedAt: p.now(),
	}
	p.log.Debug("Presence changed", "user_id", userID, "status", record.Status)

	env := envelope.New(envelope.UserStatus, envelope.UserStatusPayload{
		UserID: userID,
		Status: record.Status,
		At:     record.UpdatedAt,
	})
	for _, other := range p.registry.AllUsersOnline() {
		if other == userID {
			continue
		}
		p.fanout.ToUser(other, env, "")
	}

	if p.statuses == nil {
		return
	}
	p.scheduler.Async(func(ctx context.Context) (any, error) {
		return nil, p.statuses.SetStatus(ctx, record)
	}, func(_ any, err error) {
		if err != nil {
			p.log.Error("Failed to persist status", "user_id", userID, "error", err)
		}
	})
}
