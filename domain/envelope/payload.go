package envelope

import (
	"encoding/json"
	"huddle/domain"
	"time"
)

// Inbound payloads.

type AuthPayload struct {
	Token string `json:"token" validate:"required"`
}

type MessagePayload struct {
	Content   string `json:"content" validate:"required"`
	ChannelID *int64 `json:"channelId,omitempty" validate:"required_without=DMID,excluded_with=DMID"`
	DMID      *int64 `json:"dmId,omitempty" validate:"required_without=ChannelID,excluded_with=ChannelID"`
	ClientID  string `json:"clientId,omitempty" validate:"max=64"`
}

type TypingPayload struct {
	ChannelID *int64 `json:"channelId,omitempty" validate:"required_without=DMID,excluded_with=DMID"`
	DMID      *int64 `json:"dmId,omitempty" validate:"required_without=ChannelID,excluded_with=ChannelID"`
	IsTyping  bool   `json:"isTyping"`
}

type CallInitiatePayload struct {
	TargetUserID domain.UserID   `json:"targetUserId" validate:"required"`
	CallType     domain.CallType `json:"callType" validate:"required,oneof=audio video"`
	CallID       string          `json:"callId,omitempty" validate:"omitempty,max=64"`
	Offer        json.RawMessage `json:"offer" validate:"required"`
}

type CallAnswerPayload struct {
	CallID   string          `json:"callId" validate:"required"`
	Accepted bool            `json:"accepted"`
	Answer   json.RawMessage `json:"answer,omitempty"`
}

type CallRefPayload struct {
	CallID string `json:"callId" validate:"required"`
}

type SignalPayload struct {
	CallID       string          `json:"callId" validate:"required"`
	TargetUserID domain.UserID   `json:"targetUserId" validate:"required"`
	Offer        json.RawMessage `json:"offer,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

// Descriptor returns the field matching the relay type.
func (p SignalPayload) Descriptor(t Type) json.RawMessage {
	switch t {
	case WebRTCOffer:
		return p.Offer
	case WebRTCAnswer:
		return p.Answer
	default:
		return p.Candidate
	}
}

type MediaStatePayload struct {
	CallID string `json:"callId" validate:"required"`
	State  string `json:"state" validate:"required"`
}

// Outbound payloads.

type AuthenticatedPayload struct {
	UserID domain.UserID `json:"userId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type MessageEvent struct {
	ID        domain.MessageID `json:"id"`
	Content   string           `json:"content"`
	AuthorID  domain.UserID    `json:"authorId"`
	ChannelID *int64           `json:"channelId,omitempty"`
	DMID      *int64           `json:"dmId,omitempty"`
	Lang      string           `json:"lang,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

func NewMessageEvent(m domain.PersistedMessage) MessageEvent {
	channelID, dmID := m.Target.Refs()
	return MessageEvent{
		ID:        m.ID,
		Content:   m.Content,
		AuthorID:  m.AuthorID,
		ChannelID: channelID,
		DMID:      dmID,
		Lang:      m.Lang,
		CreatedAt: m.CreatedAt,
	}
}

type TypingEvent struct {
	UserID    domain.UserID `json:"userId"`
	ChannelID *int64        `json:"channelId,omitempty"`
	DMID      *int64        `json:"dmId,omitempty"`
	IsTyping  bool          `json:"isTyping"`
}

type MessageSentPayload struct {
	MessageID domain.MessageID `json:"messageId"`
	ClientID  string           `json:"clientId,omitempty"`
}

type UserStatusPayload struct {
	UserID domain.UserID `json:"userId"`
	Status domain.Status `json:"status"`
	At     time.Time     `json:"at"`
}

type IncomingCallPayload struct {
	CallID     string          `json:"callId"`
	CallType   domain.CallType `json:"callType"`
	FromUserID domain.UserID   `json:"fromUserId"`
	Offer      json.RawMessage `json:"offer"`
}

type CallAnsweredPayload struct {
	CallID     string          `json:"callId"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	FromUserID domain.UserID   `json:"fromUserId"`
}

type CallRejectedPayload struct {
	CallID     string           `json:"callId"`
	FromUserID domain.UserID    `json:"fromUserId"`
	Reason     domain.EndReason `json:"reason"`
}

type CallEndedPayload struct {
	CallID  string           `json:"callId"`
	EndedBy domain.UserID    `json:"endedBy"`
	Reason  domain.EndReason `json:"reason"`
}

type SignalEvent struct {
	CallID       string          `json:"callId"`
	TargetUserID domain.UserID   `json:"targetUserId"`
	Offer        json.RawMessage `json:"offer,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
	FromUserID   domain.UserID   `json:"fromUserId"`
}

type ScreenShareEvent struct {
	CallID     string        `json:"callId"`
	FromUserID domain.UserID `json:"fromUserId"`
}
