package runtime

import (
	"bourracho/contract"
	"bourracho/domain/event"
	"bourracho/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var _ contract.IRegistry = (*Registry)(nil)

type Set map[string]*Connection

// RegistryStats is a point in time view of the registry.
type RegistryStats struct {
	Conversations int    `json:"conversations"`
	Connections   int    `json:"connections"`
	DroppedEvents uint64 `json:"dropped_events"`
	ForcedDetach  uint64 `json:"forced_detach"`
}

// Registry maps each conversation to its live connections.
// A connection belongs to exactly one conversation.
type Registry struct {
	mu            sync.RWMutex
	log           *slog.Logger
	conversations map[string]Set // conversation -> connection id -> connection
	maxDrops      int64
	dropped       atomic.Uint64
	forced        atomic.Uint64
}

// NewRegistry builds a registry that force-detaches a connection once it has
// dropped maxDrops events in a row. Zero disables forced detachment.
func NewRegistry(log *slog.Logger, maxDrops int) *Registry {
	return &Registry{
		log:           log,
		conversations: make(map[string]Set),
		maxDrops:      int64(maxDrops),
	}
}

// Attach registers a connection in Connecting state. Connections are never reattached.
func (r *Registry) Attach(conversationID string, conn *Connection) error {
	if conn.ConversationID != conversationID {
		return fmt.Errorf("%w: connection belongs to %s, not %s", errors.ErrInvalidArgument, conn.ConversationID, conversationID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !conn.attach() {
		return fmt.Errorf("%w: connection %s is %s", errors.ErrPreconditionFailed, conn.ID, conn.State())
	}
	if _, ok := r.conversations[conversationID]; !ok {
		r.conversations[conversationID] = make(Set)
	}
	r.conversations[conversationID][conn.ID] = conn
	r.log.Debug("Connection attached", "conversation_id", conversationID, "user_id", conn.UserID, "connection_id", conn.ID)
	return nil
}

// Detach removes the connection and closes it. Calling it twice is harmless.
func (r *Registry) Detach(conversationID string, conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detachLocked(conversationID, conn)
}

// DetachUser detaches every connection of userID in the conversation.
func (r *Registry) DetachUser(conversationID, userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, conn := range r.conversations[conversationID] {
		if conn.UserID == userID && r.detachLocked(conversationID, conn) {
			count++
		}
	}
	return count
}

// DetachAll detaches every connection of the conversation.
func (r *Registry) DetachAll(conversationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, conn := range r.conversations[conversationID] {
		if r.detachLocked(conversationID, conn) {
			count++
		}
	}
	return count
}

// Close detaches every connection, used on shutdown.
func (r *Registry) Close() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for conversationID, members := range r.conversations {
		for _, conn := range members {
			if r.detachLocked(conversationID, conn) {
				count++
			}
		}
	}
	return count
}

// DetachIdle detaches every connection without activity since before.
func (r *Registry) DetachIdle(before time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for conversationID, members := range r.conversations {
		for _, conn := range members {
			if conn.LastSeen().Before(before) && r.detachLocked(conversationID, conn) {
				r.log.Info("Idle connection detached", "conversation_id", conversationID, "user_id", conn.UserID)
				count++
			}
		}
	}
	return count
}

func (r *Registry) Count(conversationID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conversations[conversationID])
}

// Connections returns a snapshot of the attached connections of a conversation.
func (r *Registry) Connections(conversationID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.conversations[conversationID]
	if !ok {
		return nil
	}
	conns := make([]*Connection, 0, len(members))
	for _, conn := range members {
		conns = append(conns, conn)
	}
	return conns
}

// Broadcast delivers e to every connection of the conversation, best effort.
// A full connection queue loses the event; a connection losing too many in a
// row is detached.
func (r *Registry) Broadcast(ctx context.Context, conversationID string, e event.DomainEvent) int {
	delivered := 0
	for _, conn := range r.Connections(conversationID) {
		err := conn.Consume(ctx, e)
		switch {
		case err == nil:
			delivered++
		case stderrors.Is(err, errors.ErrBackpressure):
			r.dropped.Add(1)
			r.log.Warn("Event dropped, connection queue full",
				"conversation_id", conversationID, "user_id", conn.UserID, "kind", e.Kind())
			if r.maxDrops > 0 && conn.ConsecutiveDrops() >= r.maxDrops && r.Detach(conversationID, conn) {
				r.forced.Add(1)
				r.log.Warn("Slow connection detached", "conversation_id", conversationID, "user_id", conn.UserID)
			}
		default:
			r.log.Debug("Event not delivered", "conversation_id", conversationID, "user_id", conn.UserID, "error", err)
		}
	}
	return delivered
}

// Publish makes the registry the in-process publisher: the topic is the conversation id.
func (r *Registry) Publish(ctx context.Context, topic string, e event.DomainEvent) error {
	r.Broadcast(ctx, topic, e)
	return nil
}

func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{
		Conversations: len(r.conversations),
		DroppedEvents: r.dropped.Load(),
		ForcedDetach:  r.forced.Load(),
	}
	for _, members := range r.conversations {
		stats.Connections += len(members)
	}
	return stats
}

// detachLocked cleans up empty conversations to avoid leaking map entries.
func (r *Registry) detachLocked(conversationID string, conn *Connection) bool {
	detached := conn.detach()
	if members, ok := r.conversations[conversationID]; ok {
		if _, present := members[conn.ID]; present {
			delete(members, conn.ID)
			detached = true
		}
		if len(members) == 0 {
			delete(r.conversations, conversationID)
		}
	}
	return detached
}
