package repositories

import (
	"context"
	"fmt"
	"huddle/contract"
	"huddle/domain"
	"huddle/errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

var _ contract.IMembershipRepository = (*MembershipRepository)(nil)

// MembershipRepository stores who belongs to which channel or DM.
//
//	target:{kind}:{id}              -> name
//	member:{kind}:{id}:{user}       -> empty
type MembershipRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMembershipRepository(db *badger.DB, log *slog.Logger) *MembershipRepository {
	return &MembershipRepository{db: db, log: log}
}

// CreateChannel declares a channel and adds its first members.
// Creating an existing channel only adds the members.
func (m *MembershipRepository) CreateChannel(_ context.Context, channelID int64, name string, members ...domain.UserID) error {
	target := domain.ChannelTarget(channelID)
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(targetKey(target), []byte(name)); err != nil {
			return err
		}
		return setMembers(txn, target, members)
	})
}

// AddChannelMembers adds users to an existing channel.
func (m *MembershipRepository) AddChannelMembers(_ context.Context, channelID int64, members ...domain.UserID) error {
	target := domain.ChannelTarget(channelID)
	return m.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(targetKey(target)); err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %s", errors.ErrTargetNotFound, target)
		} else if err != nil {
			return err
		}
		return setMembers(txn, target, members)
	})
}

// CreateDM opens a direct conversation between exactly two distinct users.
func (m *MembershipRepository) CreateDM(_ context.Context, dmID int64, first, second domain.UserID) error {
	if first == second {
		return fmt.Errorf("%w: a dm needs two distinct users", errors.ErrInvalidEnvelope)
	}
	target := domain.DMTarget(dmID)
	return m.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(targetKey(target)); err == nil {
			return fmt.Errorf("%w: %s already exists", errors.ErrInvalidState, target)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		name := fmt.Sprintf("%d,%d", first, second)
		if err := txn.Set(targetKey(target), []byte(name)); err != nil {
			return err
		}
		return setMembers(txn, target, []domain.UserID{first, second})
	})
}

func (m *MembershipRepository) IsMember(_ context.Context, userID domain.UserID, target domain.Target) (bool, error) {
	found := false
	err := m.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(memberKey(target, userID))
		switch err {
		case nil:
			found = true
			return nil
		case badger.ErrKeyNotFound:
			return nil
		default:
			return err
		}
	})
	return found, err
}

// Members lists the users of target in ascending id order.
func (m *MembershipRepository) Members(_ context.Context, target domain.Target) ([]domain.UserID, error) {
	prefix := memberPrefix(target)
	var members []domain.UserID
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			raw := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				m.log.Warn("Skipping malformed member key", "key", string(it.Item().Key()), "error", err)
				continue
			}
			members = append(members, domain.UserID(id))
		}
		return nil
	})
	return members, err
}

func setMembers(txn *badger.Txn, target domain.Target, members []domain.UserID) error {
	for _, userID := range lo.Uniq(members) {
		if err := txn.Set(memberKey(target, userID), []byte{}); err != nil {
			return err
		}
	}
	return nil
}

func targetKey(target domain.Target) []byte {
	return []byte(fmt.Sprintf("target:%s", target))
}

func memberPrefix(target domain.Target) []byte {
	return []byte(fmt.Sprintf("member:%s:", target))
}

func memberKey(target domain.Target, userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("member:%s:%020d", target, userID))
}
