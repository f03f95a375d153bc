package runtime

import (
	"bourracho/contract"
	"bourracho/domain/event"
	"bourracho/errors"
	"bourracho/runtime/workers"
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync/atomic"
	"time"
)

var _ contract.IDispatcher = (*Dispatcher)(nil)

// QueueStat samples the fill level of one shard.
type QueueStat struct {
	Name     string `json:"name"`
	Length   int    `json:"length"`
	Capacity int    `json:"capacity"`
}

// Dispatcher routes committed events to a fixed set of FIFO shards.
// A conversation always hashes to the same shard and every shard is drained
// by a single EventFanout, so events of one conversation are published in
// the order they were dispatched.
type Dispatcher struct {
	log            *slog.Logger
	shards         []chan event.DomainEvent
	publisher      contract.Publisher
	enqueueTimeout time.Duration
	publishTimeout time.Duration
	dropped        atomic.Uint64
}

func NewDispatcher(log *slog.Logger, publisher contract.Publisher,
	numShards, bufferSize int, enqueueTimeout, publishTimeout time.Duration) *Dispatcher {
	shards := make([]chan event.DomainEvent, max(numShards, 1))
	for i := range shards {
		shards[i] = make(chan event.DomainEvent, bufferSize)
	}
	return &Dispatcher{
		log:            log,
		shards:         shards,
		publisher:      publisher,
		enqueueTimeout: enqueueTimeout,
		publishTimeout: publishTimeout,
	}
}

// Dispatch enqueues e on the shard of its conversation.
// It waits at most enqueueTimeout for room in the shard, then drops the event.
func (d *Dispatcher) Dispatch(ctx context.Context, e event.DomainEvent) error {
	shard := d.shards[d.shardIndex(e.ConversationID())]

	select {
	case shard <- e:
		return nil
	default:
	}

	timer := time.NewTimer(d.enqueueTimeout)
	defer timer.Stop()
	select {
	case shard <- e:
		return nil
	case <-ctx.Done():
		d.dropped.Add(1)
		return ctx.Err()
	case <-timer.C:
		d.dropped.Add(1)
		d.log.Warn("Dispatch queue full, dropping event",
			"conversation_id", e.ConversationID(), "kind", e.Kind())
		return errors.ErrDispatchTimeout
	}
}

// Workers returns one fanout worker per shard, to be run by the supervisor.
func (d *Dispatcher) Workers() []contract.Worker {
	res := make([]contract.Worker, 0, len(d.shards))
	for i, shard := range d.shards {
		fanout := workers.NewEventFanout(d.log, shard, d.publisher, d.publishTimeout).
			WithName(fmt.Sprintf("fanout-%d", i))
		res = append(res, fanout)
	}
	return res
}

func (d *Dispatcher) QueueStats() []QueueStat {
	stats := make([]QueueStat, 0, len(d.shards))
	for i, shard := range d.shards {
		stats = append(stats, QueueStat{Name: fmt.Sprintf("fanout-%d", i), Length: len(shard), Capacity: cap(shard)})
	}
	return stats
}

func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

func (d *Dispatcher) shardIndex(conversationID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return int(h.Sum32() % uint32(len(d.shards)))
}
