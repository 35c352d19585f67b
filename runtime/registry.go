package runtime

import (
	"huddle/contract"
	"huddle/domain"
	"time"

	"github.com/samber/lo"
)

type Set map[domain.ConnID]struct{}

// ConnectionEntry is one authenticated connection of a user.
type ConnectionEntry struct {
	UserID      domain.UserID
	Conn        contract.Conn
	ConnectedAt time.Time
	awaitingAck bool
	lastAckAt   time.Time
}

// RegistryObserver is told about every online/offline transition.
type RegistryObserver func(userID domain.UserID, online bool)

// Registry tracks live connections per user.
// It is owned by the dispatch loop and is not safe for concurrent use.
type Registry struct {
	entries   map[domain.ConnID]*ConnectionEntry
	byUser    map[domain.UserID]Set
	observers []RegistryObserver
	now       func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[domain.ConnID]*ConnectionEntry),
		byUser:  make(map[domain.UserID]Set),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OnChange subscribes an observer to online/offline transitions.
func (r *Registry) OnChange(observer RegistryObserver) {
	r.observers = append(r.observers, observer)
}

// Register adds conn to the user's set without evicting any other entry.
// A handle already owned by another user is moved.
func (r *Registry) Register(userID domain.UserID, conn contract.Conn) {
	id := conn.ID()
	if existing, ok := r.entries[id]; ok {
		if existing.UserID == userID {
			return
		}
		r.Remove(id)
	}

	now := r.now()
	r.entries[id] = &ConnectionEntry{UserID: userID, Conn: conn, ConnectedAt: now, lastAckAt: now}
	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(Set)
		r.byUser[userID] = conns
	}
	conns[id] = struct{}{}
	if len(conns) == 1 {
		r.notify(userID, true)
	}
}

// Remove deletes one handle. It returns the removed entry, if any.
// Removing the last handle of a user notifies an offline transition.
func (r *Registry) Remove(id domain.ConnID) (*ConnectionEntry, bool) {
	entry, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	delete(r.entries, id)

	conns := r.byUser[entry.UserID]
	delete(conns, id)
	if len(conns) == 0 {
		delete(r.byUser, entry.UserID)
		r.notify(entry.UserID, false)
	}
	return entry, true
}

// ConnectionsOf returns the open connections of a user, nil when offline.
func (r *Registry) ConnectionsOf(userID domain.UserID) []contract.Conn {
	conns, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	res := make([]contract.Conn, 0, len(conns))
	for id := range conns {
		res = append(res, r.entries[id].Conn)
	}
	return res
}

func (r *Registry) AllUsersOnline() []domain.UserID {
	return lo.Keys(r.byUser)
}

func (r *Registry) IsOnline(userID domain.UserID) bool {
	return len(r.byUser[userID]) > 0
}

// UserOf resolves the identity behind an authenticated connection.
func (r *Registry) UserOf(id domain.ConnID) (domain.UserID, bool) {
	entry, ok := r.entries[id]
	if !ok {
		return 0, false
	}
	return entry.UserID, true
}

func (r *Registry) Entry(id domain.ConnID) (*ConnectionEntry, bool) {
	entry, ok := r.entries[id]
	return entry, ok
}

// Entries returns a snapshot so callers may remove entries while iterating.
func (r *Registry) Entries() []*ConnectionEntry {
	return lo.Values(r.entries)
}

func (r *Registry) Len() int {
	return len(r.entries)
}

func (r *Registry) notify(userID domain.UserID, online bool) {
	for _, observer := range r.observers {
		observer(userID, online)
	}
}
