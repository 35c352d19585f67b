package repositories

import (
	"context"
	"huddle/domain"
	"huddle/errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newMessageRepository(t *testing.T, db *badger.DB, limit *int) *MessageRepository {
	t.Helper()
	repo, err := NewMessageRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug), limit)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Release() })
	return repo
}

func TestMessageRepository_PersistAssignsIncreasingIDs(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := newMessageRepository(t, openDB(t), nil)
	at := time.Now().UTC()

	// Given messages written to two different targets
	var ids []domain.MessageID
	for i, target := range []domain.Target{domain.ChannelTarget(1), domain.DMTarget(1), domain.ChannelTarget(1)} {
		id, err := repo.PersistMessage(ctx, domain.PersistedMessage{
			Content:   "hello",
			AuthorID:  domain.UserID(i + 1),
			Target:    target,
			CreatedAt: at,
		})
		req.NoError(err)
		ids = append(ids, id)
	}

	// Then ids start at 1 and are strictly increasing across targets
	req.Equal([]domain.MessageID{1, 2, 3}, ids)
}

func TestMessageRepository_FetchHistory(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := newMessageRepository(t, openDB(t), nil)
	channel := domain.ChannelTarget(7)
	at := time.Now().UTC().Truncate(time.Millisecond)

	// Given five messages in a channel and one in another channel
	var stored []domain.PersistedMessage
	for i := 0; i < 5; i++ {
		message := domain.PersistedMessage{
			Content:   "message",
			AuthorID:  42,
			Target:    channel,
			Lang:      "en",
			CreatedAt: at.Add(time.Duration(i) * time.Second),
		}
		id, err := repo.PersistMessage(ctx, message)
		req.NoError(err)
		message.ID = id
		stored = append(stored, message)
	}
	_, err := repo.PersistMessage(ctx, domain.PersistedMessage{Content: "elsewhere", Target: domain.ChannelTarget(70), CreatedAt: at})
	req.NoError(err)

	// When the latest page is fetched
	latest, err := repo.FetchHistory(ctx, channel, nil, 3)
	req.NoError(err)

	// Then the three newest messages are returned oldest first
	req.Equal(stored[2:], latest)

	// When the next page is fetched before the oldest returned id
	older, err := repo.FetchHistory(ctx, channel, &latest[0].ID, 3)
	req.NoError(err)

	// Then the remaining messages are returned
	req.Equal(stored[:2], older)
}

func TestMessageRepository_FetchHistoryIsCapped(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := newMessageRepository(t, openDB(t), lo.ToPtr(2))
	channel := domain.ChannelTarget(1)

	for i := 0; i < 4; i++ {
		_, err := repo.PersistMessage(ctx, domain.PersistedMessage{Content: "m", AuthorID: 1, Target: channel, CreatedAt: time.Now().UTC()})
		req.NoError(err)
	}

	messages, err := repo.FetchHistory(ctx, channel, nil, 100)

	req.NoError(err)
	req.Len(messages, 2)
}

func TestMessageRepository_FetchMessages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := newMessageRepository(t, openDB(t), nil)
	channel := domain.ChannelTarget(1)

	first, err := repo.PersistMessage(ctx, domain.PersistedMessage{Content: "first", AuthorID: 1, Target: channel, CreatedAt: time.Now().UTC()})
	req.NoError(err)
	second, err := repo.PersistMessage(ctx, domain.PersistedMessage{Content: "second", AuthorID: 1, Target: channel, CreatedAt: time.Now().UTC()})
	req.NoError(err)

	// When ids are fetched in a given order, with one unknown id
	messages, err := repo.FetchMessages(ctx, channel, []domain.MessageID{second, 999, first})

	// Then known messages come back in that order
	req.NoError(err)
	req.Len(messages, 2)
	req.Equal("second", messages[0].Content)
	req.Equal("first", messages[1].Content)
}

func TestMembershipRepository(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewMembershipRepository(openDB(t), logs.GetLoggerFromLevel(slog.LevelDebug))

	// Given a channel with two members and a dm
	req.NoError(repo.CreateChannel(ctx, 1, "general", 3, 1, 3))
	req.NoError(repo.AddChannelMembers(ctx, 1, 2))
	req.NoError(repo.CreateDM(ctx, 1, 1, 4))

	// Then membership is scoped per target
	members, err := repo.Members(ctx, domain.ChannelTarget(1))
	req.NoError(err)
	req.Equal([]domain.UserID{1, 2, 3}, members)

	isMember, err := repo.IsMember(ctx, 4, domain.ChannelTarget(1))
	req.NoError(err)
	req.False(isMember)

	isMember, err = repo.IsMember(ctx, 4, domain.DMTarget(1))
	req.NoError(err)
	req.True(isMember)

	// And invalid changes are refused
	req.ErrorIs(repo.AddChannelMembers(ctx, 99, 1), errors.ErrTargetNotFound)
	req.ErrorIs(repo.CreateDM(ctx, 1, 2, 3), errors.ErrInvalidState)
	req.ErrorIs(repo.CreateDM(ctx, 2, 5, 5), errors.ErrInvalidEnvelope)
}

func TestStatusRepository_KeepsNewest(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewStatusRepository(openDB(t))
	now := time.Now().UTC().Truncate(time.Millisecond)

	// Given an unknown user
	status, err := repo.GetStatus(ctx, 1)
	req.NoError(err)
	req.Equal(domain.StatusOffline, status.Status)

	// When a newer then an older record are written
	req.NoError(repo.SetStatus(ctx, domain.StatusRecord{UserID: 1, Status: domain.StatusOnline, UpdatedAt: now}))
	req.NoError(repo.SetStatus(ctx, domain.StatusRecord{UserID: 1, Status: domain.StatusOffline, UpdatedAt: now.Add(-time.Second)}))

	// Then the newest one wins
	status, err = repo.GetStatus(ctx, 1)
	req.NoError(err)
	req.Equal(domain.StatusRecord{UserID: 1, Status: domain.StatusOnline, UpdatedAt: now}, status)
}

func TestStatusRepository_ConcurrentWritesKeepNewest(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewStatusRepository(openDB(t))
	now := time.Now().UTC().Truncate(time.Millisecond)
	const writers = 8

	// Given online and offline records for the same user written at the same time
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- repo.SetStatus(ctx, domain.StatusRecord{
				UserID:    1,
				Status:    domain.StatusOf(i%2 == 0),
				UpdatedAt: now.Add(time.Duration(i) * time.Second),
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	// Then no write is lost to a transaction conflict
	for err := range errs {
		req.NoError(err)
	}
	// And the newest record is the one stored
	status, err := repo.GetStatus(ctx, 1)
	req.NoError(err)
	req.Equal(domain.StatusOffline, status.Status)
	req.Equal(now.Add((writers-1)*time.Second), status.UpdatedAt)
}

func TestCallRepository_ArchiveAndList(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewCallRepository(openDB(t), logs.GetLoggerFromLevel(slog.LevelDebug))
	start := time.Now().UTC().Truncate(time.Millisecond)

	older := domain.CallSession{
		CallID:    "older",
		CallerID:  1,
		CalleeID:  2,
		CallType:  domain.CallAudio,
		State:     domain.StateEnded,
		CreatedAt: start,
		EndedAt:   lo.ToPtr(start.Add(time.Minute)),
		EndedBy:   0,
		EndReason: domain.ReasonNoAnswer,
	}
	newer := domain.CallSession{
		CallID:     "newer",
		CallerID:   3,
		CalleeID:   1,
		CallType:   domain.CallVideo,
		State:      domain.StateEnded,
		CreatedAt:  start.Add(time.Hour),
		AnsweredAt: lo.ToPtr(start.Add(time.Hour + time.Second)),
		EndedAt:    lo.ToPtr(start.Add(2 * time.Hour)),
		EndedBy:    3,
		EndReason:  domain.ReasonHangup,
	}
	req.NoError(repo.Archive(ctx, older))
	req.NoError(repo.Archive(ctx, newer))

	// When user 1's log is listed
	calls, err := repo.CallsOf(ctx, 1, 10)

	// Then both calls are returned newest first
	req.NoError(err)
	req.Equal([]domain.CallSession{newer, older}, calls)

	// And user 2 only sees its own call
	calls, err = repo.CallsOf(ctx, 2, 10)
	req.NoError(err)
	req.Equal([]domain.CallSession{older}, calls)
}

func TestMessageIndex_SearchIsScopedToTarget(t *testing.T) {
	req := require.New(t)
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	defer writer.Close()
	index := NewMessageIndex(writer, logs.GetLoggerFromLevel(slog.LevelDebug))

	// Given messages about deployments in two channels
	req.NoError(index.Index(domain.PersistedMessage{ID: 1, Content: "deployment is done", AuthorID: 1, Target: domain.ChannelTarget(1)}))
	req.NoError(index.Index(domain.PersistedMessage{ID: 2, Content: "lunch anyone?", AuthorID: 2, Target: domain.ChannelTarget(1)}))
	req.NoError(index.Index(domain.PersistedMessage{ID: 3, Content: "deployment failed", AuthorID: 3, Target: domain.ChannelTarget(2)}))

	// When channel 1 is searched
	ids, err := index.Search(context.Background(), domain.ChannelTarget(1), "deployment", 10)

	// Then only its matching message is found
	req.NoError(err)
	req.Equal([]domain.MessageID{1}, ids)
}
