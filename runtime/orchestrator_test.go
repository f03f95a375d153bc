package runtime_test

import (
	"bourracho/domain"
	"bourracho/domain/event"
	"bourracho/runtime"
	"bourracho/runtime/workers"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Orchestrator_delivers_dispatched_events_to_connections(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	registry := runtime.NewRegistry(log, 0)
	dispatcher := runtime.NewDispatcher(log, registry, 4, 16, time.Second, time.Second)
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 10*time.Millisecond),
		registry, dispatcher, 10*time.Millisecond, time.Hour)

	// Given a listening connection
	conn := runtime.NewConnection("ABC123", "alice", 4)
	req.NoError(orchestrator.Registry().Attach("ABC123", conn))
	req.NoError(orchestrator.Start(context.Background()))

	// When a message is dispatched
	msg := domain.Message{ID: "M1", ConversationID: "ABC123", IssuerID: "bob", Content: "hello world"}
	req.NoError(orchestrator.Dispatcher().Dispatch(context.Background(), event.NewMessagePosted(msg)))

	// Then the connection receives it
	select {
	case e := <-conn.Events():
		posted, ok := e.(event.MessagePosted)
		req.True(ok, "event should be MessagePosted")
		req.Equal("hello world", posted.Message.Content)
	case <-time.After(time.Second):
		req.Fail("event not delivered")
	}

	orchestrator.Stop()
}

func Test_Orchestrator_Stop_without_Start(t *testing.T) {
	log := slog.Default()
	registry := runtime.NewRegistry(log, 0)
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, time.Second),
		registry, runtime.NewDispatcher(log, registry, 1, 1, time.Millisecond, time.Millisecond), time.Second, 0)

	orchestrator.Stop()
}
