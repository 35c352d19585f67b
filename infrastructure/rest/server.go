// Package rest exposes the call triggers, history and search over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"huddle/auth"
	"huddle/contract"
	"huddle/domain"
	"huddle/domain/envelope"
	"huddle/errors"
	"huddle/services"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"
)

// HealthFunc reports the live state of the core for /healthz.
type HealthFunc func(ctx context.Context) (any, error)

type Server struct {
	calls  services.ICallService
	chat   services.IChatService
	health HealthFunc
	log    *slog.Logger
}

// NewHandler builds the routes, all behind the bearer token middleware
// except the public ones. ws, when not nil, is mounted on GET /ws.
func NewHandler(calls services.ICallService, chat services.IChatService, verifier contract.IdentityVerifier,
	health HealthFunc, ws http.Handler, log *slog.Logger) http.Handler {
	s := &Server{calls: calls, chat: chat, health: health, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/call/initiate", s.initiate)
	mux.HandleFunc("POST /api/call/answer", s.answer)
	mux.HandleFunc("POST /api/call/hangup", s.hangup)
	mux.HandleFunc("GET /api/calls", s.callLog)
	mux.HandleFunc("GET /api/history", s.history)
	mux.HandleFunc("GET /api/search", s.search)
	mux.HandleFunc("GET /healthz", s.healthz)
	if ws != nil {
		mux.Handle("GET /ws", ws)
	}
	return auth.Middleware(verifier)(mux)
}

type callResponse struct {
	CallID    string           `json:"callId"`
	CallType  domain.CallType  `json:"callType"`
	CallerID  domain.UserID    `json:"callerId"`
	CalleeID  domain.UserID    `json:"calleeId"`
	State     domain.CallState `json:"state"`
	CreatedAt time.Time        `json:"createdAt"`
}

type callLogEntry struct {
	callResponse
	AnsweredAt *time.Time       `json:"answeredAt,omitempty"`
	EndedAt    *time.Time       `json:"endedAt,omitempty"`
	EndedBy    domain.UserID    `json:"endedBy"`
	Reason     domain.EndReason `json:"reason"`
}

type messagesResponse struct {
	Messages []envelope.MessageEvent `json:"messages"`
}

func toCallResponse(session domain.CallSession, viewer domain.UserID) callResponse {
	return callResponse{
		CallID:    session.CallID,
		CallType:  session.CallType,
		CallerID:  session.CallerID,
		CalleeID:  session.CalleeID,
		State:     session.StateFor(viewer),
		CreatedAt: session.CreatedAt,
	}
}

func (s *Server) initiate(w http.ResponseWriter, r *http.Request) {
	var body envelope.CallInitiatePayload
	if !s.decode(w, r, &body) {
		return
	}
	userID := mustUser(r)
	session, err := s.calls.Initiate(r.Context(), userID, body.TargetUserID, body.CallType, body.Offer, body.CallID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toCallResponse(session, userID))
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request) {
	var body envelope.CallAnswerPayload
	if !s.decode(w, r, &body) {
		return
	}
	userID := mustUser(r)
	session, err := s.calls.Answer(r.Context(), body.CallID, userID, body.Accepted, body.Answer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toCallResponse(session, userID))
}

func (s *Server) hangup(w http.ResponseWriter, r *http.Request) {
	var body envelope.CallRefPayload
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.calls.Hangup(r.Context(), body.CallID, mustUser(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) callLog(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	userID := mustUser(r)
	calls, err := s.calls.CallLog(r.Context(), userID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries := lo.Map(calls, func(session domain.CallSession, _ int) callLogEntry {
		return callLogEntry{
			callResponse: toCallResponse(session, userID),
			AnsweredAt:   session.AnsweredAt,
			EndedAt:      session.EndedAt,
			EndedBy:      session.EndedBy,
			Reason:       session.EndReason,
		}
	})
	s.writeJSON(w, http.StatusOK, map[string]any{"calls": entries})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	target, err := targetParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var before *domain.MessageID
	if raw := r.URL.Query().Get("before"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: before: %v", errors.ErrInvalidEnvelope, err))
			return
		}
		before = lo.ToPtr(domain.MessageID(id))
	}

	messages, err := s.chat.History(r.Context(), mustUser(r), target, before, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toMessagesResponse(messages))
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	target, err := targetParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	messages, err := s.chat.Search(r.Context(), mustUser(r), target, r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toMessagesResponse(messages))
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	details, err := s.health(ctx)
	if err != nil {
		s.log.Warn("Health check failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "details": details})
}

func toMessagesResponse(messages []domain.PersistedMessage) messagesResponse {
	return messagesResponse{Messages: lo.Map(messages, func(m domain.PersistedMessage, _ int) envelope.MessageEvent {
		return envelope.NewMessageEvent(m)
	})}
}

// decode reads and validates a JSON body. On failure the error response is already written.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errors.ErrInvalidEnvelope, err))
		return false
	}
	if err := envelope.Validate(v); err != nil {
		s.writeError(w, r, err)
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.log.Debug("Request refused", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	s.writeJSON(w, status, envelope.ErrorPayload{Message: err.Error(), Code: errors.Code(err)})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("Error writing response", "error", err)
	}
}

// mustUser is only called behind auth.Middleware.
func mustUser(r *http.Request) domain.UserID {
	userID, _ := auth.UserFromContext(r.Context())
	return userID
}

func targetParam(r *http.Request) (domain.Target, error) {
	var channelID, dmID *int64
	for name, dst := range map[string]**int64{"channelId": &channelID, "dmId": &dmID} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.Target{}, fmt.Errorf("%w: %s: %v", errors.ErrInvalidEnvelope, name, err)
		}
		*dst = &id
	}
	return domain.TargetFrom(channelID, dmID)
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errors.ErrInvalidEnvelope, name)
	}
	return v, nil
}
