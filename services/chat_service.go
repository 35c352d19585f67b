//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"huddle/contract"
	"huddle/domain"
	"huddle/errors"
	"log/slog"
	"strings"
)

type IChatService interface {
	History(ctx context.Context, userID domain.UserID, target domain.Target, before *domain.MessageID, limit int) ([]domain.PersistedMessage, error)
	Search(ctx context.Context, userID domain.UserID, target domain.Target, terms string, limit int) ([]domain.PersistedMessage, error)
}

// ChatService serves the read side of conversations: the history clients
// fetch on reconnect and full-text search. Writes go through the router.
type ChatService struct {
	messages contract.IMessageRepository
	members  contract.IMembershipRepository
	index    contract.IMessageIndex
	log      *slog.Logger
}

func NewChatService(messages contract.IMessageRepository, members contract.IMembershipRepository,
	index contract.IMessageIndex, log *slog.Logger) *ChatService {
	return &ChatService{messages: messages, members: members, index: index, log: log}
}

func (s *ChatService) History(ctx context.Context, userID domain.UserID, target domain.Target,
	before *domain.MessageID, limit int) ([]domain.PersistedMessage, error) {
	if err := s.checkMember(ctx, userID, target); err != nil {
		return nil, err
	}
	return s.messages.FetchHistory(ctx, target, before, limit)
}

func (s *ChatService) Search(ctx context.Context, userID domain.UserID, target domain.Target,
	terms string, limit int) ([]domain.PersistedMessage, error) {
	terms = strings.TrimSpace(terms)
	if terms == "" {
		return nil, fmt.Errorf("%w: empty search", errors.ErrInvalidEnvelope)
	}
	if err := s.checkMember(ctx, userID, target); err != nil {
		return nil, err
	}
	ids, err := s.index.Search(ctx, target, terms, limit)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Search", "user_id", userID, "target", target.String(), "hits", len(ids))
	if len(ids) == 0 {
		return nil, nil
	}
	return s.messages.FetchMessages(ctx, target, ids)
}

func (s *ChatService) checkMember(ctx context.Context, userID domain.UserID, target domain.Target) error {
	member, err := s.members.IsMember(ctx, userID, target)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("%w: user %d is not in %s", errors.ErrNotMember, userID, target)
	}
	return nil
}
