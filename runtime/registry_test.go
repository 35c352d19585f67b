package runtime

import (
	"huddle/domain"
	"testing"

	"github.com/stretchr/testify/require"
)

type transition struct {
	userID domain.UserID
	online bool
}

func recordTransitions(registry *Registry) *[]transition {
	var transitions []transition
	registry.OnChange(func(userID domain.UserID, online bool) {
		transitions = append(transitions, transition{userID: userID, online: online})
	})
	return &transitions
}

func TestRegistry_SecondConnectionDoesNotEvictFirst(t *testing.T) {
	req := require.New(t)

	// Given a user with a laptop connection
	registry := NewRegistry()
	transitions := recordTransitions(registry)
	laptop, phone := newFakeConn("laptop"), newFakeConn("phone")
	registry.Register(1, laptop)

	// When the same user opens a phone connection
	registry.Register(1, phone)

	// Then both are kept and only one online transition is emitted
	req.ElementsMatch([]string{"laptop", "phone"}, connIDs(registry.ConnectionsOf(1)))
	req.Equal([]transition{{userID: 1, online: true}}, *transitions)
	req.Equal(2, registry.Len())
}

func TestRegistry_OfflineOnlyWhenLastConnectionLeaves(t *testing.T) {
	req := require.New(t)

	// Given a user with two connections
	registry := NewRegistry()
	transitions := recordTransitions(registry)
	registry.Register(1, newFakeConn("laptop"))
	registry.Register(1, newFakeConn("phone"))

	// When the first one leaves
	_, removed := registry.Remove("laptop")

	// Then the user is still online
	req.True(removed)
	req.True(registry.IsOnline(1))
	req.Len(*transitions, 1)

	// When the last one leaves
	entry, removed := registry.Remove("phone")

	// Then the user goes offline exactly once
	req.True(removed)
	req.Equal(domain.UserID(1), entry.UserID)
	req.False(registry.IsOnline(1))
	req.Nil(registry.ConnectionsOf(1))
	req.Equal([]transition{{userID: 1, online: true}, {userID: 1, online: false}}, *transitions)
}

func TestRegistry_RemoveUnknownHandleIsNoop(t *testing.T) {
	req := require.New(t)

	// Given an empty registry
	registry := NewRegistry()
	transitions := recordTransitions(registry)

	// When an unknown handle is removed
	_, removed := registry.Remove("ghost")

	// Then nothing happens
	req.False(removed)
	req.Empty(*transitions)
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	req := require.New(t)

	// Given a registered connection
	registry := NewRegistry()
	transitions := recordTransitions(registry)
	conn := newFakeConn("laptop")
	registry.Register(1, conn)

	// When it is registered again for the same user
	registry.Register(1, conn)

	// Then the registry is unchanged
	req.Equal(1, registry.Len())
	req.Len(*transitions, 1)
}

func TestRegistry_HandleMovedToAnotherUser(t *testing.T) {
	req := require.New(t)

	// Given a handle owned by user 1
	registry := NewRegistry()
	transitions := recordTransitions(registry)
	conn := newFakeConn("shared")
	registry.Register(1, conn)

	// When the handle authenticates as user 2
	registry.Register(2, conn)

	// Then user 1 goes offline and user 2 comes online
	userID, ok := registry.UserOf("shared")
	req.True(ok)
	req.Equal(domain.UserID(2), userID)
	req.False(registry.IsOnline(1))
	req.Equal([]transition{{1, true}, {1, false}, {2, true}}, *transitions)
}

func TestRegistry_AllUsersOnline(t *testing.T) {
	req := require.New(t)

	// Given three users, one with two connections
	registry := NewRegistry()
	registry.Register(1, newFakeConn("a1"))
	registry.Register(1, newFakeConn("a2"))
	registry.Register(2, newFakeConn("b1"))
	registry.Register(3, newFakeConn("c1"))

	// When user 3 leaves
	registry.Remove("c1")

	// Then only users 1 and 2 are listed
	req.ElementsMatch([]domain.UserID{1, 2}, registry.AllUsersOnline())
	_, ok := registry.UserOf("c1")
	req.False(ok)
}

func connIDs[C interface{ ID() domain.ConnID }](conns []C) []string {
	ids := make([]string, 0, len(conns))
	for _, conn := range conns {
		ids = append(ids, string(conn.ID()))
	}
	return ids
}
