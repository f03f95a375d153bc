package workers

import (
	"bourracho/contract"
	"bourracho/domain/event"
	"context"
	"log/slog"
	"time"
)

var _ contract.Worker = (*EventFanout)(nil)

// EventFanout drains one dispatcher shard and hands every event to the publisher.
//
// Events are published one at a time in queue order, which is what keeps the
// per-conversation ordering: a conversation always maps to the same shard.
// Publishing is best effort, failures are logged and the next event proceeds.
type EventFanout struct {
	log            *slog.Logger
	Name           contract.WorkerName
	queue          <-chan event.DomainEvent
	publisher      contract.Publisher
	publishTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, queue <-chan event.DomainEvent,
	publisher contract.Publisher, publishTimeout time.Duration) *EventFanout {
	return &EventFanout{log: log, queue: queue, publisher: publisher, publishTimeout: publishTimeout}
}

func (w *EventFanout) WithName(name string) *EventFanout {
	w.Name = contract.WorkerName(name)
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.queue:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout", "name", w.Name)
			return nil
		}
	}
}

// Fanout publishes evt on the topic of its conversation.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	publishCtx, cancel := context.WithTimeout(ctx, w.publishTimeout)
	defer cancel()

	if err := w.publisher.Publish(publishCtx, evt.ConversationID(), evt); err != nil {
		w.log.Warn("Event publication failed",
			"conversation_id", evt.ConversationID(), "kind", evt.Kind(), "error", err)
	}
}
