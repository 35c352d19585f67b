package runtime

import (
	"context"
	"huddle/domain"
	"huddle/domain/envelope"
	"huddle/errors"
	"huddle/mocks"
	"huddle/moderation"
	"strings"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type routerFixture struct {
	registry  *Registry
	scheduler *manualScheduler
	messages  *mocks.MockIMessageRepository
	members   *mocks.MockIMembershipRepository
	router    *Router
}

func newRouterFixture(t *testing.T, inline bool) routerFixture {
	ctrl := gomock.NewController(t)
	log := testLogger()
	registry := NewRegistry()
	scheduler := &manualScheduler{inline: inline}
	messages := mocks.NewMockIMessageRepository(ctrl)
	members := mocks.NewMockIMembershipRepository(ctrl)
	router := NewRouter(registry, NewFanout(registry, log), scheduler, messages, members, 100, log)
	return routerFixture{registry: registry, scheduler: scheduler, messages: messages, members: members, router: router}
}

func TestRouter_ChannelMessageReachesEveryOtherConnection(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, true)
	channel := domain.ChannelTarget(10)

	// Given user 1 on two devices, user 2 on one and user 3 on a broken connection
	a1, a2, b1, c1 := newFakeConn("a1"), newFakeConn("a2"), newFakeConn("b1"), newFakeConn("c1")
	c1.failSend = true
	f.registry.Register(1, a1)
	f.registry.Register(1, a2)
	f.registry.Register(2, b1)
	f.registry.Register(3, c1)

	f.members.EXPECT().IsMember(gomock.Any(), domain.UserID(1), channel).Return(true, nil)
	f.members.EXPECT().Members(gomock.Any(), channel).Return([]domain.UserID{1, 2, 3}, nil)
	f.messages.EXPECT().
		PersistMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, m domain.PersistedMessage) (domain.MessageID, error) {
			req.Equal("hello team", m.Content)
			req.Equal(channel, m.Target)
			req.Equal(domain.UserID(1), m.AuthorID)
			return 42, nil
		})

	// When user 1 sends a message from a1
	err := f.router.Handle(a1, 1, mustEnvelope(t, envelope.Message, envelope.MessagePayload{
		Content:   "  hello team ",
		ChannelID: lo.ToPtr(int64(10)),
		ClientID:  "tmp-1",
	}))

	// Then every other connection receives it, including the sender's second device
	req.NoError(err)
	for _, conn := range []*fakeConn{a2, b1} {
		event := payloadOf[envelope.MessageEvent](t, conn.Last(t))
		req.Equal(domain.MessageID(42), event.ID)
		req.Equal("hello team", event.Content)
		req.Equal(int64(10), *event.ChannelID)
		req.Nil(event.DMID)
	}
	// And the broken connection does not prevent delivery
	req.Empty(c1.Sent())
	// And the origin gets the acknowledgement with the client id echoed
	req.Equal([]envelope.Type{envelope.MessageSent}, a1.Types())
	ack := payloadOf[envelope.MessageSentPayload](t, a1.Last(t))
	req.Equal(domain.MessageID(42), ack.MessageID)
	req.Equal("tmp-1", ack.ClientID)
}

func TestRouter_NonMemberGetsErrorOnly(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, true)
	dm := domain.DMTarget(7)

	// Given two online users, the sender not being part of the DM
	origin, other := newFakeConn("origin"), newFakeConn("other")
	f.registry.Register(1, origin)
	f.registry.Register(2, other)
	f.members.EXPECT().IsMember(gomock.Any(), domain.UserID(1), dm).Return(false, nil)

	// When the sender writes to the DM
	err := f.router.Handle(origin, 1, mustEnvelope(t, envelope.Message, envelope.MessagePayload{
		Content: "psst",
		DMID:    lo.ToPtr(int64(7)),
	}))

	// Then the origin receives a not_member error and nothing is persisted or delivered
	req.NoError(err)
	refusal := payloadOf[envelope.ErrorPayload](t, origin.Last(t))
	req.Equal("not_member", refusal.Code)
	req.Empty(other.Sent())
}

func TestRouter_TypingIsNotPersistedNorEchoed(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, true)
	channel := domain.ChannelTarget(3)

	// Given the typer on two devices and a colleague
	a1, a2, b1 := newFakeConn("a1"), newFakeConn("a2"), newFakeConn("b1")
	f.registry.Register(1, a1)
	f.registry.Register(1, a2)
	f.registry.Register(2, b1)
	f.members.EXPECT().IsMember(gomock.Any(), domain.UserID(1), channel).Return(true, nil)
	f.members.EXPECT().Members(gomock.Any(), channel).Return([]domain.UserID{1, 2}, nil)

	// When user 1 starts typing
	err := f.router.Handle(a1, 1, mustEnvelope(t, envelope.Typing, envelope.TypingPayload{
		ChannelID: lo.ToPtr(int64(3)),
		IsTyping:  true,
	}))

	// Then only the colleague is told
	req.NoError(err)
	event := payloadOf[envelope.TypingEvent](t, b1.Last(t))
	req.Equal(domain.UserID(1), event.UserID)
	req.True(event.IsTyping)
	req.Empty(a1.Sent())
	req.Empty(a2.Sent())
}

func TestRouter_RejectsInvalidEnvelopes(t *testing.T) {
	f := newRouterFixture(t, true)
	conn := newFakeConn("a1")
	f.registry.Register(1, conn)

	cases := map[string]envelope.MessagePayload{
		"blank content":    {Content: "   ", ChannelID: lo.ToPtr(int64(1))},
		"both targets":     {Content: "hi", ChannelID: lo.ToPtr(int64(1)), DMID: lo.ToPtr(int64(2))},
		"no target":        {Content: "hi"},
		"content too long": {Content: strings.Repeat("a", 101), ChannelID: lo.ToPtr(int64(1))},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.router.Handle(conn, 1, mustEnvelope(t, envelope.Message, payload))
			require.ErrorIs(t, err, errors.ErrInvalidEnvelope)
		})
	}
}

func TestRouter_UnregisteredSenderIsRefused(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, true)

	// When a user without any registered connection sends a message
	err := f.router.Handle(newFakeConn("x"), 9, mustEnvelope(t, envelope.Message, envelope.MessagePayload{
		Content:   "hi",
		ChannelID: lo.ToPtr(int64(1)),
	}))

	// Then it is refused as unauthenticated
	req.ErrorIs(err, errors.ErrAuthentication)
}

func TestRouter_KeepsOneOperationInFlightPerTarget(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	channel := domain.ChannelTarget(1)

	// Given a sender and a reader of the same channel
	sender, reader := newFakeConn("sender"), newFakeConn("reader")
	f.registry.Register(1, sender)
	f.registry.Register(2, reader)
	f.members.EXPECT().IsMember(gomock.Any(), domain.UserID(1), channel).Return(true, nil).Times(2)
	f.members.EXPECT().Members(gomock.Any(), channel).Return([]domain.UserID{1, 2}, nil).Times(2)
	gomock.InOrder(
		f.messages.EXPECT().PersistMessage(gomock.Any(), gomock.Any()).Return(domain.MessageID(1), nil),
		f.messages.EXPECT().PersistMessage(gomock.Any(), gomock.Any()).Return(domain.MessageID(2), nil),
	)

	// When two messages arrive back to back
	for _, content := range []string{"first", "second"} {
		req.NoError(f.router.Handle(sender, 1, mustEnvelope(t, envelope.Message, envelope.MessagePayload{
			Content:   content,
			ChannelID: lo.ToPtr(int64(1)),
		})))
	}

	// Then only the first one is being processed
	req.Len(f.scheduler.jobs, 1)

	// When the first completes, the second starts
	f.scheduler.RunNext(t)
	req.Len(f.scheduler.jobs, 1)
	f.scheduler.RunNext(t)

	// Then the reader sees them in order
	sent := reader.Sent()
	req.Len(sent, 2)
	req.Equal("first", payloadOf[envelope.MessageEvent](t, sent[0]).Content)
	req.Equal("second", payloadOf[envelope.MessageEvent](t, sent[1]).Content)
	req.Empty(f.router.pipelines)
}

func TestRouter_PanicInCompletionDoesNotStallTarget(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	channel := domain.ChannelTarget(1)

	// Given a sender whose connection panics when acknowledged
	sender, reader := newFakeConn("sender"), newFakeConn("reader")
	sender.panicSend = true
	f.registry.Register(1, sender)
	f.registry.Register(2, reader)
	f.members.EXPECT().IsMember(gomock.Any(), domain.UserID(1), channel).Return(true, nil).Times(2)
	f.members.EXPECT().Members(gomock.Any(), channel).Return([]domain.UserID{1, 2}, nil).Times(2)
	f.messages.EXPECT().PersistMessage(gomock.Any(), gomock.Any()).Return(domain.MessageID(1), nil)
	f.messages.EXPECT().PersistMessage(gomock.Any(), gomock.Any()).Return(domain.MessageID(2), nil)
	for _, content := range []string{"first", "second"} {
		req.NoError(f.router.Handle(sender, 1, mustEnvelope(t, envelope.Message, envelope.MessagePayload{
			Content:   content,
			ChannelID: lo.ToPtr(int64(1)),
		})))
	}

	// When the first completion panics and the loop recovers it
	req.Panics(func() { f.scheduler.RunNext(t) })

	// Then the second message is still processed
	req.Len(f.scheduler.jobs, 1)
	sender.panicSend = false
	f.scheduler.RunNext(t)
	sent := reader.Sent()
	req.Len(sent, 2)
	req.Equal("second", payloadOf[envelope.MessageEvent](t, sent[1]).Content)
	req.Empty(f.router.pipelines)
}

func TestRouter_CensorsBeforePersisting(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, true)
	moderator, err := moderation.NewModerator([]string{"darn"}, '*')
	req.NoError(err)
	f.router.WithModerator(moderator)
	channel := domain.ChannelTarget(1)

	// Given a sender in a channel
	sender := newFakeConn("sender")
	f.registry.Register(1, sender)
	f.members.EXPECT().IsMember(gomock.Any(), domain.UserID(1), channel).Return(true, nil)
	f.members.EXPECT().Members(gomock.Any(), channel).Return([]domain.UserID{1}, nil)

	// Then the stored content is masked
	f.messages.EXPECT().
		PersistMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, m domain.PersistedMessage) (domain.MessageID, error) {
			req.Equal("oh **** it", m.Content)
			return 5, nil
		})

	// When the message contains a forbidden word
	req.NoError(f.router.Handle(sender, 1, mustEnvelope(t, envelope.Message, envelope.MessagePayload{
		Content:   "oh darn it",
		ChannelID: lo.ToPtr(int64(1)),
	})))
	req.Equal([]envelope.Type{envelope.MessageSent}, sender.Types())
}
