package services

import (
	"bourracho/domain/event"
	"bourracho/repositories"
	"bourracho/runtime"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// recordingDispatcher keeps dispatched events in dispatch order.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (d *recordingDispatcher) Dispatch(_ context.Context, e event.DomainEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
	return nil
}

func (d *recordingDispatcher) kinds() []event.Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	kinds := make([]event.Kind, 0, len(d.events))
	for _, e := range d.events {
		kinds = append(kinds, e.Kind())
	}
	return kinds
}

func (d *recordingDispatcher) last() event.DomainEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.events) == 0 {
		return nil
	}
	return d.events[len(d.events)-1]
}

type membershipFixture struct {
	db            *badger.DB
	service       *MembershipService
	conversations repositories.ConversationRepository
	dispatcher    *recordingDispatcher
	registry      *runtime.Registry
	locker        *runtime.KeyedLocker
	log           *slog.Logger
}

func newMembershipFixture(t *testing.T) membershipFixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db := openTestDB(t)
	conversations := repositories.NewConversationRepository(db, log)
	dispatcher := &recordingDispatcher{}
	registry := runtime.NewRegistry(log, 0)
	locker := runtime.NewKeyedLocker()
	return membershipFixture{
		db:            db,
		service:       NewMembershipService(log, conversations, locker, dispatcher, registry),
		conversations: conversations,
		dispatcher:    dispatcher,
		registry:      registry,
		locker:        locker,
		log:           log,
	}
}
