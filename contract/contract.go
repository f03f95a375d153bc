//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"bourracho/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging during supervision, so workers don't have to name themselves.
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

// EventSink receives the events of the conversation it is attached to.
// Consume must never block the caller.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Publisher delivers a committed event to every subscriber of a topic.
// The in-process registry is one; a cross-process broker would be another.
type Publisher interface {
	Publish(ctx context.Context, topic string, e event.DomainEvent) error
}

// IRegistry tracks live connections per conversation.
type IRegistry interface {
	Publisher
	DetachUser(conversationID, userID string) int
	DetachAll(conversationID string) int
	Count(conversationID string) int
}

// IDispatcher accepts committed events and delivers them in commit order
// per conversation.
type IDispatcher interface {
	Dispatch(ctx context.Context, e event.DomainEvent) error
}
