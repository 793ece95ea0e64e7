package action

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Cyclone1070/artifactsync/internal/logging"
	"github.com/Cyclone1070/artifactsync/internal/sandbox"
)

// Registry holds one Executor per turn, created on first use.
// Turns run independently; no ordering holds across them.
type Registry struct {
	store   FileStore
	sandbox sandbox.Client
	logger  *zap.Logger

	mu        sync.Mutex
	executors map[string]*Executor
	turns     []string
}

// NewRegistry creates a registry whose executors share store and sb.
func NewRegistry(store FileStore, sb sandbox.Client, logger *zap.Logger) *Registry {
	return &Registry{
		store:     store,
		sandbox:   sb,
		logger:    logging.OrNop(logger),
		executors: make(map[string]*Executor),
	}
}

// Executor returns the executor for turnID, creating it if needed.
func (r *Registry) Executor(turnID string) *Executor {
	r.mu.Lock()
	defer r.mu.Unlock()

	ex, ok := r.executors[turnID]
	if !ok {
		ex = NewExecutor(turnID, r.store, r.sandbox, r.logger)
		r.executors[turnID] = ex
		r.turns = append(r.turns, turnID)
	}
	return ex
}

// Dispatch routes one producer event to its turn's executor.
func (r *Registry) Dispatch(ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	ex := r.Executor(ev.TurnID)
	switch ev.Type {
	case EventRegister:
		return ex.Register(ev.ActionID, ev.Action)
	case EventSubmit:
		return ex.Submit(ev.ActionID, ev.Action)
	default:
		return ex.Abort(ev.ActionID)
	}
}

// Turns returns the known turn ids in creation order.
func (r *Registry) Turns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.turns...)
}

// Actions returns the recorded actions of turnID, or nil for an unknown turn.
func (r *Registry) Actions(turnID string) []State {
	r.mu.Lock()
	ex, ok := r.executors[turnID]
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return ex.Actions()
}

// Wait blocks until every turn's pipeline is idle.
func (r *Registry) Wait(ctx context.Context) error {
	r.mu.Lock()
	executors := make([]*Executor, 0, len(r.executors))
	for _, id := range r.turns {
		executors = append(executors, r.executors[id])
	}
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, ex := range executors {
		g.Go(func() error {
			return ex.Wait(gctx)
		})
	}
	return g.Wait()
}
