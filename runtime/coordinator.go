package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"huddle/contract"
	"huddle/domain"
	"huddle/domain/envelope"
	"huddle/errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Coordinator owns the live call table.
// Every method runs on the dispatch loop; REST callers reach it through Loop.Do.
type Coordinator struct {
	registry     *Registry
	fanout       *Fanout
	scheduler    contract.Scheduler
	calls        contract.ICallRepository
	log          *slog.Logger
	ringTimeout  time.Duration
	sessions     map[string]*domain.CallSession
	activeByUser map[domain.UserID]string
	timers       map[string]func()
	now          func() time.Time
	newID        func() string
}

func NewCoordinator(registry *Registry, fanout *Fanout, scheduler contract.Scheduler,
	calls contract.ICallRepository, ringTimeout time.Duration, log *slog.Logger) *Coordinator {
	return &Coordinator{
		registry:     registry,
		fanout:       fanout,
		scheduler:    scheduler,
		calls:        calls,
		log:          log,
		ringTimeout:  ringTimeout,
		sessions:     make(map[string]*domain.CallSession),
		activeByUser: make(map[domain.UserID]string),
		timers:       make(map[string]func()),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
}

// Initiate opens a ringing session and rings every connection of the callee.
func (c *Coordinator) Initiate(callerID, calleeID domain.UserID, callType domain.CallType,
	offer json.RawMessage, callID string) (domain.CallSession, error) {
	if !callType.Valid() {
		return domain.CallSession{}, fmt.Errorf("%w: call type %q", errors.ErrInvalidEnvelope, callType)
	}
	if callerID == calleeID {
		return domain.CallSession{}, fmt.Errorf("%w: user %d cannot call itself", errors.ErrInvalidEnvelope, callerID)
	}
	if err := checkDescriptor(envelope.CallInitiate, offer); err != nil {
		return domain.CallSession{}, err
	}
	for _, userID := range []domain.UserID{callerID, calleeID} {
		if existing, busy := c.activeByUser[userID]; busy {
			return domain.CallSession{}, fmt.Errorf("%w: user %d is in call %s", errors.ErrAlreadyInCall, userID, existing)
		}
	}
	if callID == "" {
		callID = c.newID()
	} else if _, live := c.sessions[callID]; live {
		return domain.CallSession{}, fmt.Errorf("%w: call %s already exists", errors.ErrInvalidState, callID)
	}
	if !c.registry.IsOnline(calleeID) {
		return domain.CallSession{}, fmt.Errorf("%w: user %d", errors.ErrUserOffline, calleeID)
	}

	session := &domain.CallSession{
		CallID:    callID,
		CallerID:  callerID,
		CalleeID:  calleeID,
		CallType:  callType,
		State:     domain.StateRinging,
		CreatedAt: c.now(),
	}
	c.sessions[callID] = session
	c.activeByUser[callerID] = callID
	c.activeByUser[calleeID] = callID
	if c.ringTimeout > 0 {
		c.timers[callID] = c.scheduler.After(c.ringTimeout, func() { c.expire(callID) })
	}

	rung := c.fanout.ToUser(calleeID, envelope.New(envelope.IncomingCall, envelope.IncomingCallPayload{
		CallID:     callID,
		CallType:   callType,
		FromUserID: callerID,
		Offer:      offer,
	}), "")
	c.log.Info("Call initiated", "call_id", callID, "caller_id", callerID, "callee_id", calleeID, "type", callType, "rung", rung)
	return *session, nil
}

// Answer lets the callee accept or reject a ringing session.
func (c *Coordinator) Answer(callID string, responderID domain.UserID, accepted bool, answer json.RawMessage) (domain.CallSession, error) {
	session, ok := c.sessions[callID]
	if !ok {
		return domain.CallSession{}, fmt.Errorf("%w: call %s is not live", errors.ErrInvalidState, callID)
	}
	if session.StateFor(responderID) != domain.StateRingingIn {
		return domain.CallSession{}, fmt.Errorf("%w: user %d cannot answer call %s in state %s",
			errors.ErrInvalidState, responderID, callID, session.StateFor(responderID))
	}

	if !accepted {
		c.finish(session, responderID, domain.ReasonRejected)
		c.fanout.ToUser(session.CallerID, envelope.New(envelope.CallRejected, envelope.CallRejectedPayload{
			CallID:     callID,
			FromUserID: responderID,
			Reason:     domain.ReasonRejected,
		}), "")
		return *session, nil
	}

	if len(answer) > 0 {
		if err := checkDescriptor(envelope.CallAnswer, answer); err != nil {
			return domain.CallSession{}, err
		}
	}
	answeredAt := c.now()
	session.State = domain.StateActive
	session.AnsweredAt = &answeredAt
	c.stopTimer(callID)

	c.fanout.ToUser(session.CallerID, envelope.New(envelope.CallAnswered, envelope.CallAnsweredPayload{
		CallID:     callID,
		Answer:     answer,
		FromUserID: responderID,
	}), "")
	c.log.Info("Call answered", "call_id", callID, "callee_id", responderID)
	return *session, nil
}

// Relay forwards one negotiation blob between the two participants.
// Blobs for unknown or ended sessions are dropped.
func (c *Coordinator) Relay(callID string, fromUserID, targetUserID domain.UserID, kind envelope.Type, descriptor json.RawMessage) error {
	session, ok := c.sessions[callID]
	if !ok {
		c.log.Debug("Dropping negotiation for unknown call", "call_id", callID, "type", kind, "from", fromUserID)
		return nil
	}
	if fromUserID == targetUserID || !session.IsParticipant(fromUserID) || !session.IsParticipant(targetUserID) {
		return fmt.Errorf("%w: %d -> %d is not a leg of call %s", errors.ErrInvalidState, fromUserID, targetUserID, callID)
	}
	if err := checkDescriptor(kind, descriptor); err != nil {
		return err
	}

	event := envelope.SignalEvent{CallID: callID, TargetUserID: targetUserID, FromUserID: fromUserID}
	switch kind {
	case envelope.WebRTCOffer:
		event.Offer = descriptor
	case envelope.WebRTCAnswer:
		event.Answer = descriptor
	default:
		event.Candidate = descriptor
	}
	c.fanout.ToUser(targetUserID, envelope.New(kind, event), "")
	return nil
}

// SetScreenShare toggles the screen-sharing sub-state of an active session.
func (c *Coordinator) SetScreenShare(callID string, userID domain.UserID, starting bool) error {
	session, ok := c.sessions[callID]
	if !ok || !session.IsParticipant(userID) || session.State != domain.StateActive {
		return fmt.Errorf("%w: user %d cannot share screen in call %s", errors.ErrInvalidState, userID, callID)
	}

	kind := envelope.ScreenShareStarted
	if starting {
		if session.ScreenSharingUserID != nil {
			return fmt.Errorf("%w: user %d is already sharing", errors.ErrInvalidState, *session.ScreenSharingUserID)
		}
		sharer := userID
		session.ScreenSharingUserID = &sharer
	} else {
		if session.ScreenSharingUserID == nil || *session.ScreenSharingUserID != userID {
			return fmt.Errorf("%w: user %d is not sharing", errors.ErrInvalidState, userID)
		}
		session.ScreenSharingUserID = nil
		kind = envelope.ScreenShareStopped
	}

	c.fanout.ToUser(session.Other(userID), envelope.New(kind, envelope.ScreenShareEvent{
		CallID:     callID,
		FromUserID: userID,
	}), "")
	return nil
}

// Hangup ends a live session. Unknown or already ended sessions are ignored.
func (c *Coordinator) Hangup(callID string, byUserID domain.UserID) error {
	return c.hangup(callID, byUserID, domain.ReasonHangup)
}

// MediaState treats a failed or disconnected peer connection as a hangup by the reporter.
func (c *Coordinator) MediaState(callID string, reporterID domain.UserID, state string) error {
	peerState, err := parsePeerState(state)
	if err != nil {
		return err
	}
	if !mediaLost(peerState) {
		c.log.Debug("Media state", "call_id", callID, "user_id", reporterID, "state", peerState.String())
		return nil
	}
	return c.hangup(callID, reporterID, domain.ReasonMediaFailed)
}

// OnRegistryChange hangs up the live call of a user whose last connection left.
func (c *Coordinator) OnRegistryChange(userID domain.UserID, online bool) {
	if online {
		return
	}
	callID, ok := c.activeByUser[userID]
	if !ok {
		return
	}
	if err := c.hangup(callID, userID, domain.ReasonDisconnected); err != nil {
		c.log.Warn("Failed to end call of disconnected user", "call_id", callID, "user_id", userID, "error", err)
	}
}

// Session returns a copy of a live session.
func (c *Coordinator) Session(callID string) (domain.CallSession, bool) {
	session, ok := c.sessions[callID]
	if !ok {
		return domain.CallSession{}, false
	}
	return *session, true
}

// ActiveCallOf returns the id of the non-terminal session userID belongs to.
func (c *Coordinator) ActiveCallOf(userID domain.UserID) (string, bool) {
	callID, ok := c.activeByUser[userID]
	return callID, ok
}

func (c *Coordinator) hangup(callID string, byUserID domain.UserID, reason domain.EndReason) error {
	session, ok := c.sessions[callID]
	if !ok {
		c.log.Debug("Ignoring hangup of unknown call", "call_id", callID, "user_id", byUserID)
		return nil
	}
	if !session.IsParticipant(byUserID) {
		return fmt.Errorf("%w: user %d is not part of call %s", errors.ErrInvalidState, byUserID, callID)
	}
	c.finish(session, byUserID, reason)
	c.fanout.ToUser(session.Other(byUserID), envelope.New(envelope.CallEnded, envelope.CallEndedPayload{
		CallID:  callID,
		EndedBy: byUserID,
		Reason:  reason,
	}), "")
	return nil
}

// expire fires when the ring timeout elapses. A session answered or ended
// in the meantime is left alone.
func (c *Coordinator) expire(callID string) {
	delete(c.timers, callID)
	session, ok := c.sessions[callID]
	if !ok || session.State != domain.StateRinging {
		return
	}
	c.log.Info("Call not answered in time", "call_id", callID, "timeout", c.ringTimeout)
	c.finish(session, 0, domain.ReasonNoAnswer)
	env := envelope.New(envelope.CallEnded, envelope.CallEndedPayload{CallID: callID, Reason: domain.ReasonNoAnswer})
	c.fanout.ToUsers([]domain.UserID{session.CallerID, session.CalleeID}, env, "")
}

// finish moves a session to ENDED, frees both participants and archives it.
func (c *Coordinator) finish(session *domain.CallSession, byUserID domain.UserID, reason domain.EndReason) {
	endedAt := c.now()
	session.State = domain.StateEnded
	session.EndedAt = &endedAt
	session.EndedBy = byUserID
	session.EndReason = reason

	c.stopTimer(session.CallID)
	delete(c.sessions, session.CallID)
	for _, userID := range []domain.UserID{session.CallerID, session.CalleeID} {
		if c.activeByUser[userID] == session.CallID {
			delete(c.activeByUser, userID)
		}
	}
	c.log.Info("Call ended", "call_id", session.CallID, "ended_by", byUserID, "reason", reason)

	if c.calls == nil {
		return
	}
	archived := *session
	c.scheduler.Async(func(ctx context.Context) (any, error) {
		return nil, c.calls.Archive(ctx, archived)
	}, func(_ any, err error) {
		if err != nil {
			c.log.Error("Failed to archive call", "call_id", archived.CallID, "error", err)
		}
	})
}

func (c *Coordinator) stopTimer(callID string) {
	if cancel, ok := c.timers[callID]; ok {
		cancel()
		delete(c.timers, callID)
	}
}
