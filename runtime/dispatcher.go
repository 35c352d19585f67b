package runtime

import (
	"context"
	"fmt"
	"huddle/contract"
	"huddle/domain"
	"huddle/domain/envelope"
	"huddle/errors"
	"log/slog"
	"time"
)

// Dispatcher routes inbound envelopes by type onto the Router or the Coordinator.
// It runs on the dispatch loop.
type Dispatcher struct {
	registry    *Registry
	fanout      *Fanout
	router      *Router
	coordinator *Coordinator
	liveness    *Liveness
	verifier    contract.IdentityVerifier
	scheduler   contract.Scheduler
	log         *slog.Logger
	// handshakes holds connections with an identity check in flight.
	handshakes map[domain.ConnID]contract.Conn
	// deadlines cancels the handshake timer of connections not yet authenticated.
	deadlines        map[domain.ConnID]func()
	handshakeTimeout time.Duration
}

func NewDispatcher(registry *Registry, fanout *Fanout, router *Router, coordinator *Coordinator,
	liveness *Liveness, verifier contract.IdentityVerifier, scheduler contract.Scheduler, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:    registry,
		fanout:      fanout,
		router:      router,
		coordinator: coordinator,
		liveness:    liveness,
		verifier:    verifier,
		scheduler:   scheduler,
		log:         log,
		handshakes:  make(map[domain.ConnID]contract.Conn),
		deadlines:   make(map[domain.ConnID]func()),
	}
}

// WithHandshakeTimeout closes connections that are still anonymous after timeout.
func (d *Dispatcher) WithHandshakeTimeout(timeout time.Duration) *Dispatcher {
	d.handshakeTimeout = timeout
	return d
}

// Connect arms the handshake deadline of a freshly accepted connection.
func (d *Dispatcher) Connect(conn contract.Conn) {
	if d.handshakeTimeout <= 0 {
		return
	}
	id := conn.ID()
	d.deadlines[id] = d.scheduler.After(d.handshakeTimeout, func() {
		if _, armed := d.deadlines[id]; !armed {
			return
		}
		delete(d.deadlines, id)
		if _, ok := d.registry.UserOf(id); ok {
			return
		}
		delete(d.handshakes, id)
		d.log.Info("Closing connection that never authenticated", "conn_id", id, "timeout", d.handshakeTimeout)
		d.fanout.Reply(conn, envelope.NewError(fmt.Errorf("%w: handshake timed out", errors.ErrAuthentication)))
		if err := conn.Close(); err != nil {
			d.log.Debug("Error closing anonymous connection", "conn_id", id, "error", err)
		}
	})
}

func (d *Dispatcher) disarm(id domain.ConnID) {
	if cancel, ok := d.deadlines[id]; ok {
		cancel()
		delete(d.deadlines, id)
	}
}

// Dispatch handles one envelope read from conn. Errors are answered on conn only;
// the connection stays open.
func (d *Dispatcher) Dispatch(conn contract.Conn, env envelope.Envelope) {
	if err := d.dispatch(conn, env); err != nil {
		d.log.Debug("Envelope rejected", "conn_id", conn.ID(), "type", env.Type, "error", err)
		d.fanout.Reply(conn, envelope.NewError(err))
	}
}

func (d *Dispatcher) dispatch(conn contract.Conn, env envelope.Envelope) error {
	if env.Type == envelope.Auth {
		return d.authenticate(conn, env)
	}
	userID, ok := d.registry.UserOf(conn.ID())
	if !ok {
		return fmt.Errorf("%w: authenticate before sending %s", errors.ErrAuthentication, env.Type)
	}

	switch env.Type {
	case envelope.Message, envelope.Typing:
		return d.router.Handle(conn, userID, env)

	case envelope.CallInitiate:
		var p envelope.CallInitiatePayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		session, err := d.coordinator.Initiate(userID, p.TargetUserID, p.CallType, p.Offer, p.CallID)
		if err != nil {
			return err
		}
		d.log.Debug("Call initiated from push channel", "call_id", session.CallID, "conn_id", conn.ID())
		return nil

	case envelope.CallAnswer:
		var p envelope.CallAnswerPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		_, err := d.coordinator.Answer(p.CallID, userID, p.Accepted, p.Answer)
		return err

	case envelope.CallHangup:
		var p envelope.CallRefPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		return d.coordinator.Hangup(p.CallID, userID)

	case envelope.WebRTCOffer, envelope.WebRTCAnswer, envelope.WebRTCCandidate:
		var p envelope.SignalPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		return d.coordinator.Relay(p.CallID, userID, p.TargetUserID, env.Type, p.Descriptor(env.Type))

	case envelope.ScreenShareStarted, envelope.ScreenShareStopped:
		var p envelope.CallRefPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		return d.coordinator.SetScreenShare(p.CallID, userID, env.Type == envelope.ScreenShareStarted)

	case envelope.MediaState:
		var p envelope.MediaStatePayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		return d.coordinator.MediaState(p.CallID, userID, p.State)

	default:
		return fmt.Errorf("%w: %q", errors.ErrUnknownEnvelope, env.Type)
	}
}

// authenticate verifies the token off the loop, then registers conn
// unless it disconnected in the meantime.
func (d *Dispatcher) authenticate(conn contract.Conn, env envelope.Envelope) error {
	var p envelope.AuthPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	d.handshakes[conn.ID()] = conn
	d.scheduler.Async(func(_ context.Context) (any, error) {
		return d.verifier.VerifyIdentity(p.Token)
	}, func(result any, err error) {
		if _, pending := d.handshakes[conn.ID()]; !pending {
			d.log.Debug("Connection left during handshake", "conn_id", conn.ID())
			return
		}
		delete(d.handshakes, conn.ID())
		if err != nil {
			d.log.Info("Authentication failed", "conn_id", conn.ID(), "error", err)
			d.fanout.Reply(conn, envelope.NewError(fmt.Errorf("%w: %v", errors.ErrAuthentication, err)))
			return
		}
		userID := result.(domain.UserID)
		d.disarm(conn.ID())
		d.registry.Register(userID, conn)
		d.log.Info("Connection authenticated", "conn_id", conn.ID(), "user_id", userID)
		d.fanout.Reply(conn, envelope.New(envelope.Authenticated, envelope.AuthenticatedPayload{UserID: userID}))
	})
	return nil
}

// Disconnect forgets conn. The last connection of a user going away flips presence
// and ends the user's live call through the registry observers.
func (d *Dispatcher) Disconnect(conn contract.Conn) {
	delete(d.handshakes, conn.ID())
	d.disarm(conn.ID())
	if entry, ok := d.registry.Remove(conn.ID()); ok {
		d.log.Debug("Connection removed", "conn_id", conn.ID(), "user_id", entry.UserID)
	}
}

// Acknowledge records a liveness answer from conn.
func (d *Dispatcher) Acknowledge(id domain.ConnID) {
	d.liveness.Acknowledge(id)
}
