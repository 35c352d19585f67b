package domain

import (
	"fmt"
	"huddle/errors"
)

type TargetKind string

const (
	TargetChannel TargetKind = "channel"
	TargetDM      TargetKind = "dm"
)

// Target is the conversation a message or typing event is addressed to.
type Target struct {
	Kind TargetKind
	ID   int64
}

func ChannelTarget(id int64) Target { return Target{Kind: TargetChannel, ID: id} }

func DMTarget(id int64) Target { return Target{Kind: TargetDM, ID: id} }

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Kind, t.ID)
}

// Refs splits the target back into the wire fields channelId/dmId.
func (t Target) Refs() (channelID, dmID *int64) {
	id := t.ID
	if t.Kind == TargetChannel {
		return &id, nil
	}
	return nil, &id
}

// TargetFrom builds a target from the wire fields. Exactly one must be set.
func TargetFrom(channelID, dmID *int64) (Target, error) {
	switch {
	case channelID != nil && dmID != nil:
		return Target{}, fmt.Errorf("%w: both channelId and dmId set", errors.ErrInvalidEnvelope)
	case channelID != nil:
		return ChannelTarget(*channelID), nil
	case dmID != nil:
		return DMTarget(*dmID), nil
	default:
		return Target{}, fmt.Errorf("%w: channelId or dmId required", errors.ErrInvalidEnvelope)
	}
}
