//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"huddle/domain"
	"huddle/domain/envelope"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Conn is one live transport connection.
// Send must not block: implementations buffer and fail fast when the buffer is full.
type Conn interface {
	ID() domain.ConnID
	Send(env envelope.Envelope) error
	Ping() error
	Close() error
}

// Job is slow work executed off the dispatch loop.
// Then always runs back on the loop with the result of Work.
type Job struct {
	Work func(ctx context.Context) (any, error)
	Then func(result any, err error)
}

// Scheduler is the part of the dispatch loop handlers are allowed to use.
type Scheduler interface {
	Async(work func(ctx context.Context) (any, error), then func(result any, err error))
	After(d time.Duration, fn func()) (cancel func())
}

// JobRunner is the job queue side of the dispatch loop, drained by pool workers.
type JobRunner interface {
	Jobs() <-chan Job
	RunJob(ctx context.Context, job Job)
}

// ILoop accepts tasks from any goroutine and runs them one at a time.
type ILoop interface {
	Post(fn func()) bool
	Do(ctx context.Context, fn func() error) error
}

type IdentityVerifier interface {
	VerifyIdentity(token string) (domain.UserID, error)
}

type IMessageRepository interface {
	PersistMessage(ctx context.Context, message domain.PersistedMessage) (domain.MessageID, error)
	FetchHistory(ctx context.Context, target domain.Target, before *domain.MessageID, limit int) ([]domain.PersistedMessage, error)
	FetchMessages(ctx context.Context, target domain.Target, ids []domain.MessageID) ([]domain.PersistedMessage, error)
}

type IMembershipRepository interface {
	IsMember(ctx context.Context, userID domain.UserID, target domain.Target) (bool, error)
	Members(ctx context.Context, target domain.Target) ([]domain.UserID, error)
}

type IStatusRepository interface {
	SetStatus(ctx context.Context, record domain.StatusRecord) error
}

type ICallRepository interface {
	Archive(ctx context.Context, session domain.CallSession) error
	CallsOf(ctx context.Context, userID domain.UserID, limit int) ([]domain.CallSession, error)
}

type IMessageIndex interface {
	Index(message domain.PersistedMessage) error
	Search(ctx context.Context, target domain.Target, terms string, limit int) ([]domain.MessageID, error)
}

// ConnHandler receives what a transport reads from its connections.
// Implementations must be safe to call from the transport's goroutines.
type ConnHandler interface {
	Connect(conn Conn)
	Receive(conn Conn, env envelope.Envelope)
	Disconnect(conn Conn)
	Acknowledge(id domain.ConnID)
}
