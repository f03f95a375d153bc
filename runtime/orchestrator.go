// Package runtime holds the live side of the chat: connections, the registry
// of who is listening to which conversation and the ordered event dispatch.
// It contains no business rules.
package runtime

import (
	"bourracho/contract"
	"bourracho/runtime/workers"
	"context"
	"log/slog"
	"sync"
	"time"
)

type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	supervisor contract.ISupervisor
	registry   *Registry
	dispatcher *Dispatcher
	extra      []contract.Worker
	done       chan struct{}

	reapInterval time.Duration
	idleTimeout  time.Duration
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	registry *Registry, dispatcher *Dispatcher, reapInterval, idleTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		log:          log,
		supervisor:   supervisor,
		registry:     registry,
		dispatcher:   dispatcher,
		reapInterval: reapInterval,
		idleTimeout:  idleTimeout,
	}
}

// Add registers side workers (monitoring, telemetry) started with the runtime.
func (o *Orchestrator) Add(worker ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extra = append(o.extra, worker...)
}

// Start registers the fanout workers, the idle reaper and side workers on the
// supervisor and runs it in the background.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	o.supervisor.Add(o.dispatcher.Workers()...)
	if o.idleTimeout > 0 {
		o.supervisor.Add(workers.NewIdleReaper(o.log, o.registry, o.reapInterval, o.idleTimeout))
	}
	o.supervisor.Add(o.extra...)
	o.done = make(chan struct{})
	done := o.done
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	go func() {
		defer close(done)
		o.supervisor.Run(ctx)
	}()
	return nil
}

// Stop cancels the supervised workers and waits for them.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()

	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
	o.log.Debug("Orchestrator stopped")
}

func (o *Orchestrator) Registry() *Registry { return o.registry }

func (o *Orchestrator) Dispatcher() *Dispatcher { return o.dispatcher }
