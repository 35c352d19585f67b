package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"huddle/domain"
	"huddle/domain/envelope"
	"huddle/errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

var (
	sdpOffer  = json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	sdpAnswer = json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	candidate = json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 50000 typ host","sdpMid":"0"}`)
)

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

// fakeConn records everything pushed to it.
type fakeConn struct {
	mu       sync.Mutex
	id       domain.ConnID
	sent     []envelope.Envelope
	failSend bool
	// panicSend makes Send panic, as a broken transport would.
	panicSend bool
	pingErr   error
	pings     int
	closed    bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: domain.ConnID(id)}
}

func (c *fakeConn) ID() domain.ConnID { return c.id }

func (c *fakeConn) Send(env envelope.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panicSend {
		panic(fmt.Sprintf("send on %s", c.id))
	}
	if c.failSend || c.closed {
		return fmt.Errorf("%w: %s refused", errors.ErrTransport, c.id)
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Sent() []envelope.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]envelope.Envelope(nil), c.sent...)
}

func (c *fakeConn) Types() []envelope.Type {
	var types []envelope.Type
	for _, env := range c.Sent() {
		types = append(types, env.Type)
	}
	return types
}

// Last returns the last envelope sent to c, failing the test when there is none.
func (c *fakeConn) Last(t *testing.T) envelope.Envelope {
	t.Helper()
	sent := c.Sent()
	require.NotEmpty(t, sent, "nothing sent to %s", c.id)
	return sent[len(sent)-1]
}

func (c *fakeConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

func payloadOf[T any](t *testing.T, env envelope.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	return v
}

func mustEnvelope(t *testing.T, kind envelope.Type, payload any) envelope.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return envelope.Envelope{Type: kind, Payload: raw, Timestamp: time.Now().UTC()}
}

type pendingTimer struct {
	d        time.Duration
	fn       func()
	canceled bool
}

// manualScheduler keeps jobs and timers until the test releases them.
// With inline set, jobs run immediately on the calling goroutine.
type manualScheduler struct {
	inline bool
	jobs   []func()
	timers []*pendingTimer
}

func (s *manualScheduler) Async(work func(ctx context.Context) (any, error), then func(any, error)) {
	job := func() {
		result, err := work(context.Background())
		then(result, err)
	}
	if s.inline {
		job()
		return
	}
	s.jobs = append(s.jobs, job)
}

func (s *manualScheduler) After(d time.Duration, fn func()) func() {
	timer := &pendingTimer{d: d, fn: fn}
	s.timers = append(s.timers, timer)
	return func() { timer.canceled = true }
}

// RunNext completes the oldest pending job.
func (s *manualScheduler) RunNext(t *testing.T) {
	t.Helper()
	require.NotEmpty(t, s.jobs, "no pending job")
	job := s.jobs[0]
	s.jobs = s.jobs[1:]
	job()
}

// FireTimers runs every timer that was not canceled.
func (s *manualScheduler) FireTimers() {
	timers := s.timers
	s.timers = nil
	for _, timer := range timers {
		if !timer.canceled {
			timer.fn()
		}
	}
}
