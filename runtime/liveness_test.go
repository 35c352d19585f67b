package runtime

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLiveness_PrunesUnansweredProbes(t *testing.T) {
	req := require.New(t)

	// Given two connections of the same user
	registry := NewRegistry()
	liveness := NewLiveness(registry, testLogger())
	alive, silent := newFakeConn("alive"), newFakeConn("silent")
	registry.Register(1, alive)
	registry.Register(1, silent)

	// When a first sweep probes them
	req.Equal(0, liveness.ProbeAll())
	req.Equal(1, alive.pings)
	req.Equal(1, silent.pings)

	// And only one answers
	liveness.Acknowledge("alive")

	// Then the next sweep prunes the silent one
	req.Equal(1, liveness.ProbeAll())
	req.True(silent.closed)
	req.False(alive.closed)
	req.Equal(1, registry.Len())
	req.True(registry.IsOnline(1))
}

func TestLiveness_PrunesOnFailedProbe(t *testing.T) {
	req := require.New(t)

	// Given a connection that cannot be written to
	registry := NewRegistry()
	liveness := NewLiveness(registry, testLogger())
	broken := newFakeConn("broken")
	broken.pingErr = fmt.Errorf("broken pipe")
	registry.Register(1, broken)

	// When it is probed
	pruned := liveness.ProbeAll()

	// Then it is removed right away
	req.Equal(1, pruned)
	req.False(registry.IsOnline(1))
	req.True(broken.closed)
}

func TestLiveness_AcknowledgeUnknownIsIgnored(t *testing.T) {
	liveness := NewLiveness(NewRegistry(), testLogger())
	require.NotPanics(t, func() { liveness.Acknowledge("ghost") })
}
