package runtime

import (
	"bourracho/domain/event"
	"bourracho/errors"
	"context"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func joined(conversationID, userID string) event.DomainEvent {
	return event.NewMemberJoined(conversationID, userID, nil)
}

func TestRegistry_Attach_One_Conversation_One_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), 0)
	conn := NewConnection("ABC123", "alice", 4)

	// Given no connection exists
	req.Equal(0, registry.Count("ABC123"))
	req.Equal(Connecting, conn.State())

	// When the connection attaches
	req.NoError(registry.Attach("ABC123", conn))

	// Then
	req.Equal(Attached, conn.State())
	req.Equal(1, registry.Count("ABC123"))
	req.Contains(registry.Connections("ABC123"), conn)
	req.Equal(RegistryStats{Conversations: 1, Connections: 1}, registry.Stats())
}

func TestRegistry_Attach_Rejects_Reattachment(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 0)
	conn := NewConnection("ABC123", "alice", 4)

	req.NoError(registry.Attach("ABC123", conn))
	req.ErrorIs(registry.Attach("ABC123", conn), errors.ErrPreconditionFailed)

	registry.Detach("ABC123", conn)
	req.ErrorIs(registry.Attach("ABC123", conn), errors.ErrPreconditionFailed)

	other := NewConnection("ZZZ999", "alice", 4)
	req.ErrorIs(registry.Attach("ABC123", other), errors.ErrInvalidArgument)
}

func TestRegistry_Detach_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 0)
	conn := NewConnection("ABC123", "alice", 4)
	req.NoError(registry.Attach("ABC123", conn))

	// When the connection detaches twice
	first := registry.Detach("ABC123", conn)
	second := registry.Detach("ABC123", conn)

	// Then only the first call did something
	req.True(first)
	req.False(second)
	req.Equal(Detached, conn.State())
	req.Nil(registry.Connections("ABC123"))
	req.Equal(RegistryStats{}, registry.Stats())

	select {
	case <-conn.Closed():
	default:
		req.Fail("connection should be closed")
	}
}

func TestRegistry_Broadcast_Reaches_Every_Connection_Of_The_Conversation(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 0)
	alice := NewConnection("ABC123", "alice", 4)
	bob := NewConnection("ABC123", "bob", 4)
	mallory := NewConnection("ZZZ999", "mallory", 4)
	req.NoError(registry.Attach("ABC123", alice))
	req.NoError(registry.Attach("ABC123", bob))
	req.NoError(registry.Attach("ZZZ999", mallory))

	delivered := registry.Broadcast(context.Background(), "ABC123", joined("ABC123", "carol"))

	req.Equal(2, delivered)
	req.Len(alice.Events(), 1)
	req.Len(bob.Events(), 1)
	req.Len(mallory.Events(), 0)
}

func TestRegistry_Broadcast_Drops_On_Full_Queue(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 0)
	slow := NewConnection("ABC123", "slow", 1)
	fast := NewConnection("ABC123", "fast", 8)
	req.NoError(registry.Attach("ABC123", slow))
	req.NoError(registry.Attach("ABC123", fast))

	// When three events are broadcast and nobody reads the slow connection
	for range 3 {
		registry.Broadcast(context.Background(), "ABC123", joined("ABC123", "carol"))
	}

	// Then the slow one keeps the first event only, the fast one gets all of them
	req.Len(slow.Events(), 1)
	req.Len(fast.Events(), 3)
	req.Equal(uint64(2), registry.Stats().DroppedEvents)
	req.Equal(Attached, slow.State())
}

func TestRegistry_Broadcast_Detaches_Too_Slow_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 2)
	slow := NewConnection("ABC123", "slow", 1)
	req.NoError(registry.Attach("ABC123", slow))

	for range 3 {
		registry.Broadcast(context.Background(), "ABC123", joined("ABC123", "carol"))
	}

	req.Equal(Detached, slow.State())
	req.Equal(0, registry.Count("ABC123"))
	req.Equal(uint64(1), registry.Stats().ForcedDetach)
}

func TestRegistry_DetachUser_And_DetachAll(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 0)
	aliceWeb := NewConnection("ABC123", "alice", 4)
	alicePhone := NewConnection("ABC123", "alice", 4)
	bob := NewConnection("ABC123", "bob", 4)
	for _, c := range []*Connection{aliceWeb, alicePhone, bob} {
		req.NoError(registry.Attach("ABC123", c))
	}

	req.Equal(2, registry.DetachUser("ABC123", "alice"))
	req.Equal(1, registry.Count("ABC123"))
	req.Equal(Detached, alicePhone.State())

	req.Equal(1, registry.DetachAll("ABC123"))
	req.Equal(0, registry.Count("ABC123"))
	req.Equal(0, registry.DetachAll("ABC123"))
}

func TestConnection_Consume_After_Detach(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 0)
	conn := NewConnection("ABC123", "alice", 4)
	req.NoError(registry.Attach("ABC123", conn))
	registry.Detach("ABC123", conn)

	err := conn.Consume(context.Background(), joined("ABC123", "bob"))

	req.ErrorIs(err, errors.ErrConnectionDetached)
}

func TestRegistry_DetachIdle(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 0)
	idle := NewConnection("ABC123", "idle", 4)
	req.NoError(registry.Attach("ABC123", idle))
	idle.lastSeen.Store(0)
	active := NewConnection("ABC123", "active", 4)
	req.NoError(registry.Attach("ABC123", active))

	n := registry.DetachIdle(active.LastSeen().Add(-1))

	req.Equal(1, n)
	req.Equal(Detached, idle.State())
	req.Equal(Attached, active.State())
}

func TestRegistry_Close(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 0)
	first := NewConnection("ABC123", "alice", 4)
	second := NewConnection("XYZ789", "bob", 4)
	req.NoError(registry.Attach("ABC123", first))
	req.NoError(registry.Attach("XYZ789", second))

	req.Equal(2, registry.Close())

	req.Equal(RegistryStats{}, registry.Stats())
	req.Equal(Detached, first.State())
	req.Equal(Detached, second.State())
}
