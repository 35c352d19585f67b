package runtime

import (
	"context"
	"fmt"
	"huddle/contract"
	"huddle/domain"
	"huddle/domain/envelope"
	"huddle/errors"
	"huddle/moderation"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
)

// routedOp is one validated message or typing event waiting for its target pipeline.
type routedOp struct {
	origin     contract.Conn
	senderID   domain.UserID
	kind       envelope.Type
	target     domain.Target
	content    string
	clientID   string
	isTyping   bool
	receivedAt time.Time
}

type routedResult struct {
	recipients []domain.UserID
	message    domain.PersistedMessage
}

// pipeline keeps at most one async operation in flight per target so that
// delivery order per target equals processing order.
type pipeline struct {
	queue []routedOp
	busy  bool
}

// Router validates, persists and fans out message and typing envelopes.
type Router struct {
	registry         *Registry
	fanout           *Fanout
	scheduler        contract.Scheduler
	messages         contract.IMessageRepository
	members          contract.IMembershipRepository
	index            contract.IMessageIndex
	moderator        *moderation.Moderator
	maxContentLength int
	log              *slog.Logger
	pipelines        map[domain.Target]*pipeline
	now              func() time.Time
}

func NewRouter(registry *Registry, fanout *Fanout, scheduler contract.Scheduler,
	messages contract.IMessageRepository, members contract.IMembershipRepository,
	maxContentLength int, log *slog.Logger) *Router {
	return &Router{
		registry:         registry,
		fanout:           fanout,
		scheduler:        scheduler,
		messages:         messages,
		members:          members,
		maxContentLength: maxContentLength,
		log:              log,
		pipelines:        make(map[domain.Target]*pipeline),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// WithModerator censors message content before it is persisted.
func (r *Router) WithModerator(moderator *moderation.Moderator) *Router {
	r.moderator = moderator
	return r
}

// WithIndex feeds persisted messages to the search index.
func (r *Router) WithIndex(index contract.IMessageIndex) *Router {
	r.index = index
	return r
}

// Handle accepts a message or typing envelope from senderID.
// Synchronous validation failures are returned; failures found later
// (membership, persistence) are answered on the origin connection only.
func (r *Router) Handle(origin contract.Conn, senderID domain.UserID, env envelope.Envelope) error {
	if !r.registry.IsOnline(senderID) {
		return fmt.Errorf("%w: user %d has no registered connection", errors.ErrAuthentication, senderID)
	}
	op, err := r.parse(origin, senderID, env)
	if err != nil {
		return err
	}
	r.enqueue(op)
	return nil
}

func (r *Router) parse(origin contract.Conn, senderID domain.UserID, env envelope.Envelope) (routedOp, error) {
	op := routedOp{origin: origin, senderID: senderID, kind: env.Type, receivedAt: r.now()}
	switch env.Type {
	case envelope.Message:
		var payload envelope.MessagePayload
		if err := env.Decode(&payload); err != nil {
			return routedOp{}, err
		}
		content := strings.TrimSpace(payload.Content)
		if content == "" {
			return routedOp{}, fmt.Errorf("%w: empty content", errors.ErrInvalidEnvelope)
		}
		if r.maxContentLength > 0 && utf8.RuneCountInString(content) > r.maxContentLength {
			return routedOp{}, fmt.Errorf("%w: content exceeds %d characters", errors.ErrInvalidEnvelope, r.maxContentLength)
		}
		target, err := domain.TargetFrom(payload.ChannelID, payload.DMID)
		if err != nil {
			return routedOp{}, err
		}
		op.target, op.content, op.clientID = target, content, payload.ClientID
	case envelope.Typing:
		var payload envelope.TypingPayload
		if err := env.Decode(&payload); err != nil {
			return routedOp{}, err
		}
		target, err := domain.TargetFrom(payload.ChannelID, payload.DMID)
		if err != nil {
			return routedOp{}, err
		}
		op.target, op.isTyping = target, payload.IsTyping
	default:
		return routedOp{}, fmt.Errorf("%w: router cannot handle %q", errors.ErrUnknownEnvelope, env.Type)
	}
	return op, nil
}

func (r *Router) enqueue(op routedOp) {
	p, ok := r.pipelines[op.target]
	if !ok {
		p = &pipeline{}
		r.pipelines[op.target] = p
	}
	p.queue = append(p.queue, op)
	if !p.busy {
		r.next(op.target)
	}
}

func (r *Router) next(target domain.Target) {
	p := r.pipelines[target]
	if len(p.queue) == 0 {
		delete(r.pipelines, target)
		return
	}
	op := p.queue[0]
	p.queue = p.queue[1:]
	p.busy = true
	r.scheduler.Async(func(ctx context.Context) (any, error) {
		return r.process(ctx, op)
	}, func(result any, err error) {
		defer func() {
			p.busy = false
			r.next(target)
		}()
		r.complete(op, result, err)
	})
}

// process runs off the loop: membership, moderation, persistence and indexing.
func (r *Router) process(ctx context.Context, op routedOp) (any, error) {
	member, err := r.members.IsMember(ctx, op.senderID, op.target)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, fmt.Errorf("%w: user %d is not in %s", errors.ErrNotMember, op.senderID, op.target)
	}
	recipients, err := r.members.Members(ctx, op.target)
	if err != nil {
		return nil, err
	}
	result := routedResult{recipients: recipients}
	if op.kind != envelope.Message {
		return result, nil
	}

	content := op.content
	if r.moderator != nil {
		var found []string
		if content, found = r.moderator.Censor(content); len(found) > 0 {
			r.log.Info("Message censored", "user_id", op.senderID, "target", op.target.String(), "words", len(found))
		}
	}
	message := domain.PersistedMessage{
		Content:   content,
		AuthorID:  op.senderID,
		Target:    op.target,
		Lang:      moderation.DetectLanguage(op.content),
		CreatedAt: op.receivedAt,
	}
	id, err := r.messages.PersistMessage(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("persisting message: %w", err)
	}
	message.ID = id
	if r.index != nil {
		if err := r.index.Index(message); err != nil {
			r.log.Warn("Failed to index message", "message_id", id, "error", err)
		}
	}
	result.message = message
	return result, nil
}

// complete runs back on the loop.
func (r *Router) complete(op routedOp, result any, err error) {
	if err != nil {
		r.log.Warn("Envelope refused", "user_id", op.senderID, "target", op.target.String(), "type", op.kind, "error", err)
		r.fanout.Reply(op.origin, envelope.NewError(err))
		return
	}
	res := result.(routedResult)

	switch op.kind {
	case envelope.Message:
		env := envelope.New(envelope.Message, envelope.NewMessageEvent(res.message))
		delivered := r.fanout.ToUsers(res.recipients, env, op.origin.ID())
		r.fanout.Reply(op.origin, envelope.New(envelope.MessageSent, envelope.MessageSentPayload{
			MessageID: res.message.ID,
			ClientID:  op.clientID,
		}))
		r.log.Debug("Message routed", "message_id", res.message.ID, "target", op.target.String(), "delivered", delivered)
	case envelope.Typing:
		channelID, dmID := op.target.Refs()
		env := envelope.New(envelope.Typing, envelope.TypingEvent{
			UserID:    op.senderID,
			ChannelID: channelID,
			DMID:      dmID,
			IsTyping:  op.isTyping,
		})
		r.fanout.ToUsers(lo.Without(res.recipients, op.senderID), env, "")
	}
}
