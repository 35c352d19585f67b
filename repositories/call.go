package repositories

import (
	"context"
	"fmt"
	"huddle/contract"
	"huddle/domain"
	"log/slog"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"google.golang.org/protobuf/encoding/protowire"
)

var _ contract.ICallRepository = (*CallRepository)(nil)

const (
	fieldCallID protowire.Number = iota + 1
	fieldCallCaller
	fieldCallCallee
	fieldCallType
	fieldCallCreatedAt
	fieldCallAnsweredAt
	fieldCallEndedAt
	fieldCallEndedBy
	fieldCallEndReason
)

// CallRepository is the call log. Ended sessions are stored once per
// participant under "call:{user}:{created_at}:{call_id}" so that a user's
// log is one prefix scan.
type CallRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewCallRepository(db *badger.DB, log *slog.Logger) *CallRepository {
	return &CallRepository{db: db, log: log}
}

func (c *CallRepository) Archive(_ context.Context, session domain.CallSession) error {
	value := encodeCall(session)
	return c.db.Update(func(txn *badger.Txn) error {
		for _, userID := range []domain.UserID{session.CallerID, session.CalleeID} {
			if err := txn.Set(callKey(userID, session), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// CallsOf returns the latest archived calls of userID, newest first.
func (c *CallRepository) CallsOf(_ context.Context, userID domain.UserID, limit int) ([]domain.CallSession, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	prefix := []byte(fmt.Sprintf("call:%d:", userID))
	var calls []domain.CallSession
	err := c.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(append(slices.Clone(prefix), '~')); it.ValidForPrefix(prefix) && len(calls) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				session, err := decodeCall(val)
				if err != nil {
					return err
				}
				calls = append(calls, session)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return calls, err
}

func callKey(userID domain.UserID, session domain.CallSession) []byte {
	return []byte(fmt.Sprintf("call:%d:%019d:%s", userID, session.CreatedAt.UnixNano(), session.CallID))
}

func encodeCall(session domain.CallSession) []byte {
	var r record
	r.putString(fieldCallID, session.CallID)
	r.putInt(fieldCallCaller, int64(session.CallerID))
	r.putInt(fieldCallCallee, int64(session.CalleeID))
	r.putString(fieldCallType, string(session.CallType))
	r.putTime(fieldCallCreatedAt, session.CreatedAt)
	if session.AnsweredAt != nil {
		r.putTime(fieldCallAnsweredAt, *session.AnsweredAt)
	}
	if session.EndedAt != nil {
		r.putTime(fieldCallEndedAt, *session.EndedAt)
	}
	r.putInt(fieldCallEndedBy, int64(session.EndedBy))
	r.putString(fieldCallEndReason, string(session.EndReason))
	return r.buf
}

func decodeCall(b []byte) (domain.CallSession, error) {
	session := domain.CallSession{State: domain.StateEnded}
	err := decodeRecord(b, func(num protowire.Number, f field) {
		switch num {
		case fieldCallID:
			session.CallID = f.asString()
		case fieldCallCaller:
			session.CallerID = domain.UserID(f.asInt())
		case fieldCallCallee:
			session.CalleeID = domain.UserID(f.asInt())
		case fieldCallType:
			session.CallType = domain.CallType(f.asString())
		case fieldCallCreatedAt:
			session.CreatedAt = f.asTime()
		case fieldCallAnsweredAt:
			session.AnsweredAt = lo.ToPtr(f.asTime())
		case fieldCallEndedAt:
			session.EndedAt = lo.ToPtr(f.asTime())
		case fieldCallEndedBy:
			session.EndedBy = domain.UserID(f.asInt())
		case fieldCallEndReason:
			session.EndReason = domain.EndReason(f.asString())
		}
	})
	return session, err
}
