// Package envelope defines the typed wrapper exchanged over the real-time channel.
package envelope

import (
	"encoding/json"
	"fmt"
	"huddle/errors"
	"time"

	"github.com/go-playground/validator/v10"
)

type Type string

const (
	Auth          Type = "auth"
	Authenticated Type = "authenticated"
	Message       Type = "message"
	Typing        Type = "typing"
	MessageSent   Type = "message_sent"
	Error         Type = "error"
	UserStatus    Type = "user_status"

	CallInitiate Type = "call_initiate"
	CallAnswer   Type = "call_answer"
	CallHangup   Type = "call_hangup"
	MediaState   Type = "media_state"

	IncomingCall Type = "incoming_call"
	CallAnswered Type = "call_answered"
	CallRejected Type = "call_rejected"
	CallEnded    Type = "call_ended"

	WebRTCOffer     Type = "webrtc_offer"
	WebRTCAnswer    Type = "webrtc_answer"
	WebRTCCandidate Type = "webrtc_candidate"

	ScreenShareStarted Type = "screen_share_started"
	ScreenShareStopped Type = "screen_share_stopped"
)

var validate = validator.New()

// Envelope is immutable once sent.
type Envelope struct {
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// New wraps payload into an envelope stamped with the current time.
func New(t Type, payload any) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		return NewError(fmt.Errorf("encoding %s payload: %w", t, err))
	}
	return Envelope{Type: t, Payload: raw, Timestamp: time.Now().UTC()}
}

// NewError builds the error envelope returned to the originating connection.
func NewError(err error) Envelope {
	raw, _ := json.Marshal(ErrorPayload{Message: err.Error(), Code: errors.Code(err)})
	return Envelope{Type: Error, Payload: raw, Timestamp: time.Now().UTC()}
}

// Parse decodes a raw frame read from a connection.
func Parse(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errors.ErrInvalidEnvelope, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", errors.ErrInvalidEnvelope)
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	return env, nil
}

// Decode unmarshals the payload into v and runs its validate tags.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", errors.ErrInvalidEnvelope, e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", errors.ErrInvalidEnvelope, e.Type, err)
	}
	return Validate(v)
}

// Validate runs the validate tags of a payload struct.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidEnvelope, err)
	}
	return nil
}
