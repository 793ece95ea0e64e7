package action

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Cyclone1070/artifactsync/internal/logging"
	"github.com/Cyclone1070/artifactsync/internal/metrics"
	"github.com/Cyclone1070/artifactsync/internal/sandbox"
)

// FileStore is the local virtual store actions write to.
type FileStore interface {
	Add(ctx context.Context, path, content string) error
}

type entry struct {
	state  State
	ctx    context.Context
	cancel context.CancelFunc
	// visible closes when every step submitted before registration is done.
	// A pending entry reads as running from then on.
	visible <-chan struct{}
}

func (e *entry) snapshot() State {
	st := e.state
	if st.Status == StatusPending {
		select {
		case <-e.visible:
			st.Status = StatusRunning
		default:
		}
	}
	return st
}

// Executor owns the serialized pipeline of one turn. Steps run strictly in
// submission order; each step waits for the done channel of the one before it.
type Executor struct {
	turnID  string
	store   FileStore
	sandbox sandbox.Client
	logger  *zap.Logger

	mu      sync.Mutex
	actions map[string]*entry
	order   []string
	// tail closes once every step submitted so far has finished.
	tail chan struct{}
}

// NewExecutor creates the pipeline for turnID.
func NewExecutor(turnID string, store FileStore, sb sandbox.Client, logger *zap.Logger) *Executor {
	tail := make(chan struct{})
	close(tail)
	return &Executor{
		turnID:  turnID,
		store:   store,
		sandbox: sb,
		logger:  logging.OrNop(logger).Named("action").With(zap.String("turn", turnID)),
		actions: make(map[string]*entry),
		tail:    tail,
	}
}

// TurnID returns the turn this executor serves.
func (e *Executor) TurnID() string {
	return e.turnID
}

// Register records a pending action. Re-registering a known id is a no-op.
func (e *Executor) Register(id string, a Action) error {
	if err := a.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.registerLocked(id, a)
	return nil
}

func (e *Executor) registerLocked(id string, a Action) *entry {
	if ent, ok := e.actions[id]; ok {
		return ent
	}

	ctx, cancel := context.WithCancel(context.Background())
	ent := &entry{
		state: State{
			TurnID: e.turnID,
			ID:     id,
			Action: a,
			Status: StatusPending,
		},
		ctx:     ctx,
		cancel:  cancel,
		visible: e.tail,
	}
	e.actions[id] = ent
	e.order = append(e.order, id)
	return ent
}

// Submit finalizes the action and queues it for execution. Unknown ids are
// registered first. An action runs at most once: submitting an id that was
// already submitted does nothing, and its content is no longer amended.
func (e *Executor) Submit(id string, a Action) error {
	if err := a.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	ent := e.registerLocked(id, a)
	if ent.state.Executed {
		e.mu.Unlock()
		e.logger.Debug("action already submitted", zap.String("action", id))
		return nil
	}
	ent.state.Action = a
	ent.state.Executed = true

	prev := e.tail
	done := make(chan struct{})
	e.tail = done
	e.mu.Unlock()

	go func() {
		defer close(done)
		<-prev
		e.continueOnError(id, func() error { return e.execute(id) })
	}()
	return nil
}

// continueOnError runs one pipeline step and only logs its error, so the
// steps queued behind a failing action still run.
func (e *Executor) continueOnError(id string, step func() error) {
	if err := step(); err != nil {
		e.logger.Error("action failed", zap.String("action", id), zap.Error(err))
	}
}

func (e *Executor) execute(id string) error {
	e.mu.Lock()
	ent := e.actions[id]
	if ent.state.Status == StatusAborted {
		e.mu.Unlock()
		e.logger.Debug("skipping aborted action", zap.String("action", id))
		metrics.RecordAction(string(ent.state.Action.Kind), string(StatusAborted))
		return nil
	}
	ent.state.Status = StatusRunning
	a := ent.state.Action
	ctx := ent.ctx
	e.mu.Unlock()

	var err error
	switch a.Kind {
	case KindFile:
		err = e.runFile(ctx, a)
	case KindShell:
		err = e.runShell(ctx, a)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case ctx.Err() != nil:
		ent.state.Status = StatusAborted
		if err != nil {
			e.logger.Debug("aborted action returned an error", zap.String("action", id), zap.Error(err))
			err = nil
		}
	case err != nil:
		ent.state.Status = StatusFailed
		ent.state.Error = failedMessage
	default:
		ent.state.Status = StatusComplete
	}
	metrics.RecordAction(string(a.Kind), string(ent.state.Status))

	if err != nil {
		return fmt.Errorf("%s action %s: %w", a.Kind, id, err)
	}
	return nil
}

// runFile mirrors the file into the sandbox when it is ready, then always
// writes the local store. A sandbox failure is logged and does not stop the
// local write.
func (e *Executor) runFile(ctx context.Context, a Action) error {
	if e.sandbox != nil && e.sandbox.IsReady() {
		if err := sandbox.MirrorFile(ctx, e.sandbox, a.FilePath, a.Content); err != nil {
			e.logger.Warn("failed to mirror file into sandbox",
				zap.String("path", a.FilePath),
				zap.Error(err))
		}
	}
	return e.store.Add(context.WithoutCancel(ctx), a.FilePath, a.Content)
}

func (e *Executor) runShell(ctx context.Context, a Action) error {
	if e.sandbox == nil || !e.sandbox.IsReady() {
		e.logger.Info("no sandbox, shell command not run", zap.String("command", a.Command))
		return nil
	}
	return e.sandbox.RunCommand(ctx, a.Command)
}

// Abort signals the action's context and marks it aborted right away.
// Cancellation is cooperative: a sandbox call that ignores its context still
// finishes, and the local store write is never interrupted.
func (e *Executor) Abort(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.actions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}
	ent.cancel()
	ent.state.Status = StatusAborted
	return nil
}

// Action returns a snapshot of one action.
func (e *Executor) Action(id string) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.actions[id]
	if !ok {
		return State{}, false
	}
	return ent.snapshot(), true
}

// Actions returns snapshots of every action in registration order.
func (e *Executor) Actions() []State {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]State, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.actions[id].snapshot())
	}
	return out
}

// Wait blocks until every submitted action has finished, including actions
// submitted while waiting.
func (e *Executor) Wait(ctx context.Context) error {
	for {
		e.mu.Lock()
		tail := e.tail
		e.mu.Unlock()

		select {
		case <-tail:
		case <-ctx.Done():
			return ctx.Err()
		}

		e.mu.Lock()
		settled := tail == e.tail
		e.mu.Unlock()
		if settled {
			return nil
		}
	}
}
