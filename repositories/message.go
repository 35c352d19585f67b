package repositories

import (
	"context"
	"fmt"
	"huddle/contract"
	"huddle/domain"
	"log/slog"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/encoding/protowire"
)

var _ contract.IMessageRepository = (*MessageRepository)(nil)

const (
	messageSequenceKey = "seq:message"
	sequenceBandwidth  = 128
	defaultPageSize    = 50
)

// Message record fields.
const (
	fieldMessageID protowire.Number = iota + 1
	fieldMessageContent
	fieldMessageAuthor
	fieldMessageTargetKind
	fieldMessageTargetID
	fieldMessageLang
	fieldMessageCreatedAt
)

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	seq           *badger.Sequence
	limitMessages *int
}

// NewMessageRepository leases ids from a badger sequence. Release must be
// called before the database is closed.
func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(messageSequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("leasing message sequence: %w", err)
	}
	return &MessageRepository{db: db, log: log, seq: seq, limitMessages: limitMessages}, nil
}

// Release returns the unused part of the leased id range.
func (m *MessageRepository) Release() error {
	return m.seq.Release()
}

// PersistMessage assigns the next id and stores the message under
// "msg:{target}:{id}". Ids are zero padded so that keys sort by id.
func (m *MessageRepository) PersistMessage(_ context.Context, message domain.PersistedMessage) (domain.MessageID, error) {
	next, err := m.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next message id: %w", err)
	}
	// Sequences start at 0; ids start at 1.
	message.ID = domain.MessageID(next + 1)

	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message.Target, message.ID), encodeMessage(message))
	})
	if err != nil {
		return 0, err
	}
	return message.ID, nil
}

// FetchHistory returns up to limit messages of target older than before
// (or the latest ones when before is nil), oldest first.
func (m *MessageRepository) FetchHistory(_ context.Context, target domain.Target, before *domain.MessageID, limit int) ([]domain.PersistedMessage, error) {
	limit = m.pageSize(limit)
	prefix := messagePrefix(target)

	var messages []domain.PersistedMessage
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		seek := append(slices.Clone(prefix), '~')
		if before != nil {
			seek = messageKey(target, *before)
		}
		it.Seek(seek)
		if before != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == string(seek) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				message, err := decodeMessage(val)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Reverse(messages)
	return messages, nil
}

// FetchMessages loads the listed messages of target in the given order.
// Ids that do not exist are skipped.
func (m *MessageRepository) FetchMessages(_ context.Context, target domain.Target, ids []domain.MessageID) ([]domain.PersistedMessage, error) {
	messages := make([]domain.PersistedMessage, 0, len(ids))
	err := m.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(messageKey(target, id))
			if err == badger.ErrKeyNotFound {
				m.log.Debug("Indexed message not found", "message_id", id, "target", target.String())
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				message, err := decodeMessage(val)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

func (m *MessageRepository) pageSize(limit int) int {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if m.limitMessages != nil && limit > *m.limitMessages {
		m.log.Debug("Page size capped", "requested", limit, "max", *m.limitMessages)
		limit = *m.limitMessages
	}
	return limit
}

func messagePrefix(target domain.Target) []byte {
	return []byte(fmt.Sprintf("msg:%s:", target))
}

func messageKey(target domain.Target, id domain.MessageID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d", target, id))
}

func encodeMessage(message domain.PersistedMessage) []byte {
	var r record
	r.putUint(fieldMessageID, uint64(message.ID))
	r.putString(fieldMessageContent, message.Content)
	r.putInt(fieldMessageAuthor, int64(message.AuthorID))
	r.putString(fieldMessageTargetKind, string(message.Target.Kind))
	r.putInt(fieldMessageTargetID, message.Target.ID)
	r.putString(fieldMessageLang, message.Lang)
	r.putTime(fieldMessageCreatedAt, message.CreatedAt)
	return r.buf
}

func decodeMessage(b []byte) (domain.PersistedMessage, error) {
	var message domain.PersistedMessage
	err := decodeRecord(b, func(num protowire.Number, f field) {
		switch num {
		case fieldMessageID:
			message.ID = domain.MessageID(f.varint)
		case fieldMessageContent:
			message.Content = f.asString()
		case fieldMessageAuthor:
			message.AuthorID = domain.UserID(f.asInt())
		case fieldMessageTargetKind:
			message.Target.Kind = domain.TargetKind(f.asString())
		case fieldMessageTargetID:
			message.Target.ID = f.asInt()
		case fieldMessageLang:
			message.Lang = f.asString()
		case fieldMessageCreatedAt:
			message.CreatedAt = f.asTime()
		}
	})
	return message, err
}
