//go:generate go run go.uber.org/mock/mockgen -source=call_service.go -destination=../mocks/mock_call_service.go -package=mocks
package services

import (
	"context"
	"encoding/json"
	"huddle/contract"
	"huddle/domain"
	"huddle/runtime"
)

type ICallService interface {
	Initiate(ctx context.Context, callerID, calleeID domain.UserID, callType domain.CallType, offer json.RawMessage, callID string) (domain.CallSession, error)
	Answer(ctx context.Context, callID string, responderID domain.UserID, accepted bool, answer json.RawMessage) (domain.CallSession, error)
	Hangup(ctx context.Context, callID string, byUserID domain.UserID) error
	CallLog(ctx context.Context, userID domain.UserID, limit int) ([]domain.CallSession, error)
}

// CallService gives the REST surface access to the same coordinator the
// push channel uses. Every call is serialized through the dispatch loop.
type CallService struct {
	loop        contract.ILoop
	coordinator *runtime.Coordinator
	calls       contract.ICallRepository
}

func NewCallService(loop contract.ILoop, coordinator *runtime.Coordinator, calls contract.ICallRepository) *CallService {
	return &CallService{loop: loop, coordinator: coordinator, calls: calls}
}

func (s *CallService) Initiate(ctx context.Context, callerID, calleeID domain.UserID, callType domain.CallType,
	offer json.RawMessage, callID string) (domain.CallSession, error) {
	var session domain.CallSession
	err := s.loop.Do(ctx, func() (err error) {
		session, err = s.coordinator.Initiate(callerID, calleeID, callType, offer, callID)
		return err
	})
	return session, err
}

func (s *CallService) Answer(ctx context.Context, callID string, responderID domain.UserID,
	accepted bool, answer json.RawMessage) (domain.CallSession, error) {
	var session domain.CallSession
	err := s.loop.Do(ctx, func() (err error) {
		session, err = s.coordinator.Answer(callID, responderID, accepted, answer)
		return err
	})
	return session, err
}

func (s *CallService) Hangup(ctx context.Context, callID string, byUserID domain.UserID) error {
	return s.loop.Do(ctx, func() error {
		return s.coordinator.Hangup(callID, byUserID)
	})
}

// CallLog reads the archive; it does not touch the live call table.
func (s *CallService) CallLog(ctx context.Context, userID domain.UserID, limit int) ([]domain.CallSession, error) {
	return s.calls.CallsOf(ctx, userID, limit)
}
