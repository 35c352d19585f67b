package repositories

import (
	"context"
	"fmt"
	"huddle/contract"
	"huddle/domain"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/encoding/protowire"
)

var _ contract.IStatusRepository = (*StatusRepository)(nil)

const (
	fieldStatusUser protowire.Number = iota + 1
	fieldStatusValue
	fieldStatusUpdatedAt
)

// StatusRepository mirrors the coarse presence of each user under "status:{user}".
type StatusRepository struct {
	db *badger.DB
}

func NewStatusRepository(db *badger.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

// maxStatusAttempts bounds the retries of a status write that lost a transaction conflict.
const maxStatusAttempts = 16

// SetStatus overwrites the stored status unless it is newer than record.
// Writes for the same user may race on different workers; a conflicting
// transaction is retried so the newest record always lands.
func (s *StatusRepository) SetStatus(ctx context.Context, rec domain.StatusRecord) error {
	var err error
	for attempt := 0; attempt < maxStatusAttempts; attempt++ {
		if err = s.setStatus(rec); err != badger.ErrConflict {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("storing status of user %d: %w", rec.UserID, err)
}

func (s *StatusRepository) setStatus(rec domain.StatusRecord) error {
	return s.db.Update(func(txn *badger.Txn) error {
		current, err := getStatus(txn, rec.UserID)
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err == nil && current.UpdatedAt.After(rec.UpdatedAt) {
			return nil
		}
		var r record
		r.putInt(fieldStatusUser, int64(rec.UserID))
		r.putString(fieldStatusValue, string(rec.Status))
		r.putTime(fieldStatusUpdatedAt, rec.UpdatedAt)
		return txn.Set(statusKey(rec.UserID), r.buf)
	})
}

// GetStatus returns the last stored status. Unknown users are reported offline.
func (s *StatusRepository) GetStatus(_ context.Context, userID domain.UserID) (domain.StatusRecord, error) {
	var res domain.StatusRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		res, err = getStatus(txn, userID)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return domain.StatusRecord{UserID: userID, Status: domain.StatusOffline}, nil
	}
	return res, err
}

func getStatus(txn *badger.Txn, userID domain.UserID) (domain.StatusRecord, error) {
	item, err := txn.Get(statusKey(userID))
	if err != nil {
		return domain.StatusRecord{}, err
	}
	var res domain.StatusRecord
	err = item.Value(func(val []byte) error {
		return decodeRecord(val, func(num protowire.Number, f field) {
			switch num {
			case fieldStatusUser:
				res.UserID = domain.UserID(f.asInt())
			case fieldStatusValue:
				res.Status = domain.Status(f.asString())
			case fieldStatusUpdatedAt:
				res.UpdatedAt = f.asTime()
			}
		})
	})
	return res, err
}

func statusKey(userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("status:%d", userID))
}
