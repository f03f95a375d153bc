package runtime

import (
	"bourracho/contract"
	"bourracho/domain/event"
	"bourracho/errors"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var _ contract.EventSink = (*Connection)(nil)

type ConnectionState int32

const (
	Connecting ConnectionState = iota
	Attached
	Detached
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Attached:
		return "attached"
	default:
		return "detached"
	}
}

// Connection is the server side of one live client in one conversation.
// Events are buffered in a bounded queue drained by the transport.
// The queue channel is never closed; Closed() signals detachment.
type Connection struct {
	ID             string
	ConversationID string
	UserID         string

	events    chan event.DomainEvent
	closed    chan struct{}
	closeOnce sync.Once
	state     atomic.Int32
	lastSeen  atomic.Int64
	drops     atomic.Int64
}

func NewConnection(conversationID, userID string, bufferSize int) *Connection {
	c := &Connection{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		UserID:         userID,
		events:         make(chan event.DomainEvent, bufferSize),
		closed:         make(chan struct{}),
	}
	c.Touch()
	return c
}

// Consume is called by the registry during a broadcast.
// It never blocks: a full queue drops the event and returns ErrBackpressure.
func (c *Connection) Consume(ctx context.Context, e event.DomainEvent) error {
	if c.State() == Detached {
		return errors.ErrConnectionDetached
	}
	select {
	case c.events <- e:
		c.drops.Store(0)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		c.drops.Add(1)
		return errors.ErrBackpressure
	}
}

func (c *Connection) Events() <-chan event.DomainEvent { return c.events }

// Closed is closed once the connection is detached.
func (c *Connection) Closed() <-chan struct{} { return c.closed }

func (c *Connection) State() ConnectionState { return ConnectionState(c.state.Load()) }

// Touch records client activity, used by the idle reaper.
func (c *Connection) Touch() { c.lastSeen.Store(time.Now().UnixNano()) }

func (c *Connection) LastSeen() time.Time { return time.Unix(0, c.lastSeen.Load()) }

// ConsecutiveDrops counts events dropped since the last successful delivery.
func (c *Connection) ConsecutiveDrops() int64 { return c.drops.Load() }

func (c *Connection) attach() bool {
	return c.state.CompareAndSwap(int32(Connecting), int32(Attached))
}

// detach is final and reports whether this call performed the transition.
func (c *Connection) detach() bool {
	if ConnectionState(c.state.Swap(int32(Detached))) == Detached {
		return false
	}
	c.closeOnce.Do(func() { close(c.closed) })
	return true
}
