package runtime

import (
	"context"
	"huddle/domain"
	"huddle/domain/envelope"
	"huddle/mocks"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPresenceTracker_BroadcastsTransitions(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := testLogger()

	// Given a tracker observing the registry
	registry := NewRegistry()
	statuses := mocks.NewMockIStatusRepository(ctrl)
	presence := NewPresenceTracker(registry, NewFanout(registry, log), &manualScheduler{inline: true}, statuses, log)
	registry.OnChange(presence.OnRegistryChange)

	var persisted []domain.StatusRecord
	statuses.EXPECT().
		SetStatus(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, record domain.StatusRecord) error {
			persisted = append(persisted, record)
			return nil
		}).
		AnyTimes()

	watcher := newFakeConn("watcher")
	registry.Register(1, watcher)

	// When user 2 comes online on two devices
	first, second := newFakeConn("b1"), newFakeConn("b2")
	registry.Register(2, first)
	registry.Register(2, second)

	// Then the watcher is told once and user 2 is not told about itself
	req.Len(watcher.Sent(), 1)
	status := payloadOf[envelope.UserStatusPayload](t, watcher.Last(t))
	req.Equal(domain.UserID(2), status.UserID)
	req.Equal(domain.StatusOnline, status.Status)
	req.Empty(first.Sent())

	// When both devices leave
	registry.Remove("b1")
	registry.Remove("b2")

	// Then the watcher is told user 2 went offline
	req.Len(watcher.Sent(), 2)
	status = payloadOf[envelope.UserStatusPayload](t, watcher.Last(t))
	req.Equal(domain.StatusOffline, status.Status)

	// And every transition was persisted
	req.Len(persisted, 3)
	req.Equal(domain.StatusOffline, persisted[2].Status)
}
