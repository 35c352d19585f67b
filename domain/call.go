package domain

import "time"

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

func (c CallType) Valid() bool {
	return c == CallAudio || c == CallVideo
}

// CallState is either the lifecycle state of a session (RINGING, ACTIVE, ENDED)
// or the state of one participant as returned by CallSession.StateFor.
type CallState string

const (
	StateIdle          CallState = "IDLE"
	StateRinging       CallState = "RINGING"
	StateRingingOut    CallState = "RINGING_OUT"
	StateRingingIn     CallState = "RINGING_IN"
	StateActive        CallState = "ACTIVE"
	StateScreenSharing CallState = "SCREEN_SHARING"
	StateEnded         CallState = "ENDED"
)

type EndReason string

const (
	ReasonHangup       EndReason = "hangup"
	ReasonRejected     EndReason = "rejected"
	ReasonNoAnswer     EndReason = "no_answer"
	ReasonMediaFailed  EndReason = "media_failed"
	ReasonDisconnected EndReason = "disconnected"
)

// CallSession is one call attempt between exactly two users.
// Only the call coordinator mutates it.
type CallSession struct {
	CallID              string
	CallerID            UserID
	CalleeID            UserID
	CallType            CallType
	State               CallState
	ScreenSharingUserID *UserID
	CreatedAt           time.Time
	AnsweredAt          *time.Time
	EndedAt             *time.Time
	EndedBy             UserID
	EndReason           EndReason
}

func (s *CallSession) IsTerminal() bool {
	return s.State == StateEnded
}

func (s *CallSession) IsParticipant(userID UserID) bool {
	return userID == s.CallerID || userID == s.CalleeID
}

// Other returns the peer of userID. userID must be a participant.
func (s *CallSession) Other(userID UserID) UserID {
	if userID == s.CallerID {
		return s.CalleeID
	}
	return s.CallerID
}

// StateFor projects the session state onto one participant.
func (s *CallSession) StateFor(userID UserID) CallState {
	if !s.IsParticipant(userID) {
		return StateIdle
	}
	switch s.State {
	case StateRinging:
		if userID == s.CallerID {
			return StateRingingOut
		}
		return StateRingingIn
	case StateActive:
		if s.ScreenSharingUserID != nil {
			return StateScreenSharing
		}
		return StateActive
	default:
		return s.State
	}
}
