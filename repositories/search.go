package repositories

import (
	"context"
	"fmt"
	"huddle/contract"
	"huddle/domain"
	"log/slog"
	"strconv"

	"github.com/blugelabs/bluge"
)

var _ contract.IMessageIndex = (*MessageIndex)(nil)

const (
	indexFieldContent = "content"
	indexFieldTarget  = "target"
	indexFieldAuthor  = "author"
	indexFieldLang    = "lang"
)

// MessageIndex keeps a full-text index of persisted messages.
// Documents are keyed by message id and scoped by target.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

func (i *MessageIndex) Index(message domain.PersistedMessage) error {
	doc := bluge.NewDocument(strconv.FormatUint(uint64(message.ID), 10)).
		AddField(bluge.NewTextField(indexFieldContent, message.Content)).
		AddField(bluge.NewKeywordField(indexFieldTarget, message.Target.String())).
		AddField(bluge.NewKeywordField(indexFieldAuthor, message.AuthorID.String()))
	if message.Lang != "" {
		doc.AddField(bluge.NewKeywordField(indexFieldLang, message.Lang))
	}
	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("indexing message %d: %w", message.ID, err)
	}
	return nil
}

// Search returns the ids of the best matching messages of target, best first.
func (i *MessageIndex) Search(ctx context.Context, target domain.Target, terms string, limit int) ([]domain.MessageID, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("opening index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Debug("Error closing index reader", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField(indexFieldContent)).
		AddMust(bluge.NewTermQuery(target.String()).SetField(indexFieldTarget))
	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", target, err)
	}

	var ids []domain.MessageID
	match, err := matches.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field != "_id" {
				return true
			}
			id, parseErr := strconv.ParseUint(string(value), 10, 64)
			if parseErr != nil {
				i.log.Warn("Skipping malformed index id", "id", string(value), "error", parseErr)
				return false
			}
			ids = append(ids, domain.MessageID(id))
			return false
		})
		if err != nil {
			break
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("reading matches: %w", err)
	}
	return ids, nil
}
