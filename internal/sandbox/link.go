// Package sandbox models the connection to a remote, disposable execution
// sandbox that may come online after actions have started arriving.
//
// Calls issued while the link is connecting are queued and replayed in FIFO
// order once a Driver is registered. Calls issued while disconnected fail fast.
package sandbox

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Cyclone1070/artifactsync/internal/logging"
	"github.com/Cyclone1070/artifactsync/internal/metrics"
)

var linkSeq atomic.Uint64

// Link is the single handle to the sandbox session. It is safe for concurrent use.
type Link struct {
	id         string
	logger     *zap.Logger
	maxPending int

	mu       sync.Mutex
	session  Session
	driver   Driver
	queue    []*pendingOp
	draining bool
}

// NewLink creates a disconnected link. maxPending bounds the queue; 0 means unbounded.
func NewLink(maxPending int, logger *zap.Logger) *Link {
	id := "link-" + strconv.FormatUint(linkSeq.Add(1), 10)
	return &Link{
		id:         id,
		logger:     logging.OrNop(logger).Named("sandbox").With(zap.String("link", id)),
		maxPending: maxPending,
	}
}

// ID identifies the link in logs and metrics. It is unique within the process.
func (l *Link) ID() string {
	return l.id
}

// Session returns a snapshot of the connection state.
func (l *Link) Session() Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// SetConnecting marks provisioning as started (true) or abandoned (false).
func (l *Link) SetConnecting(connecting bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if connecting {
		l.session.State = Connecting
		return
	}
	if l.session.State == Connecting {
		l.session.State = Disconnected
	}
}

// SetConnected records the sandbox as connected with id, or as disconnected.
// Connecting is cleared either way.
func (l *Link) SetConnected(connected bool, sandboxID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if connected {
		l.session.State = Connected
		l.session.SandboxID = sandboxID
		return
	}
	l.session.State = Disconnected
	l.session.SandboxID = ""
}

// SetError records msg. An empty msg clears the error.
func (l *Link) SetError(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.session.ErrorMessage = msg
}

// IsReady reports whether callers may issue operations: either a driver is
// live on a connected session, or the session is connecting and calls will queue.
func (l *Link) IsReady() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.session.State {
	case Connected:
		return l.driver != nil
	case Connecting:
		return true
	default:
		return false
	}
}

// PendingCount returns the number of queued operations.
func (l *Link) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// RegisterDriver installs d and drains the pending queue in FIFO order before
// returning. Each queued caller receives d's real result. A failing operation
// only fails its own caller. Calls made while the drain runs queue behind it.
func (l *Link) RegisterDriver(ctx context.Context, d Driver) {
	l.mu.Lock()
	l.driver = d
	if l.draining || len(l.queue) == 0 {
		l.mu.Unlock()
		return
	}
	l.draining = true
	pending := len(l.queue)
	l.mu.Unlock()

	l.logger.Info("draining queued sandbox operations", zap.Int("pending", pending))
	l.drain(ctx)
}

func (l *Link) drain(ctx context.Context) {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 || l.driver == nil {
			l.draining = false
			metrics.SetSandboxPending(l.id, len(l.queue))
			l.mu.Unlock()
			return
		}
		op := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		d := l.driver
		metrics.SetSandboxPending(l.id, len(l.queue))
		l.mu.Unlock()

		ok, err := invoke(ctx, d, op)
		if err != nil {
			metrics.RecordSandboxOp(string(op.kind), "failed")
			l.logger.Warn("queued sandbox operation failed",
				zap.String("op", string(op.kind)),
				zap.String("path", op.path),
				zap.Error(err))
		}
		op.result <- opResult{ok: ok, err: err}
	}
}

// Reset returns the link to its initial state, drops the driver and rejects
// every queued operation with ErrSandboxReset.
func (l *Link) Reset() {
	l.mu.Lock()
	l.session = Session{}
	l.driver = nil
	rejected := l.queue
	l.queue = nil
	metrics.SetSandboxPending(l.id, 0)
	l.mu.Unlock()

	for _, op := range rejected {
		op.result <- opResult{err: ErrSandboxReset}
	}
	if len(rejected) > 0 {
		l.logger.Info("rejected queued sandbox operations on reset", zap.Int("count", len(rejected)))
	}
}

// WriteFile writes a file in the sandbox. While disconnected it returns false
// without queueing. While connecting it blocks until the call is drained,
// the link is reset, or ctx is done.
func (l *Link) WriteFile(ctx context.Context, path, content string) (bool, error) {
	return l.do(ctx, &pendingOp{kind: opWrite, path: path, content: content})
}

// MakeDirectory creates a directory in the sandbox, with the same policy as WriteFile.
func (l *Link) MakeDirectory(ctx context.Context, path string) (bool, error) {
	return l.do(ctx, &pendingOp{kind: opMkdir, path: path})
}

// RunCommand runs a shell command in the sandbox, with the same policy as
// WriteFile except that a disconnected call is advisory and returns nil.
func (l *Link) RunCommand(ctx context.Context, command string) error {
	_, err := l.do(ctx, &pendingOp{kind: opRun, command: command})
	return err
}

// SendTerminalInput forwards data to the driver's active terminal.
// It never queues; without a driver or an active terminal the input is dropped.
func (l *Link) SendTerminalInput(ctx context.Context, data string) error {
	l.mu.Lock()
	d := l.driver
	l.mu.Unlock()

	if d == nil {
		l.logger.Debug("dropping terminal input: no sandbox driver")
		return nil
	}
	terminalID := d.ActiveTerminalID()
	if terminalID == "" {
		l.logger.Debug("dropping terminal input: no active terminal")
		return nil
	}
	return d.SendTerminalInput(ctx, terminalID, data)
}

// CreateSandbox asks the driver to provision a sandbox.
func (l *Link) CreateSandbox(ctx context.Context) (string, error) {
	l.mu.Lock()
	d := l.driver
	l.mu.Unlock()

	if d == nil {
		return "", ErrNotConnected
	}
	return d.CreateSandbox(ctx)
}

func (l *Link) do(ctx context.Context, op *pendingOp) (bool, error) {
	l.mu.Lock()
	if l.driver != nil && !l.draining {
		d := l.driver
		l.mu.Unlock()

		metrics.RecordSandboxOp(string(op.kind), "direct")
		return invoke(ctx, d, op)
	}

	if l.driver == nil && l.session.State == Disconnected {
		l.mu.Unlock()

		metrics.RecordSandboxOp(string(op.kind), "rejected")
		l.logger.Warn("sandbox not connected, skipping operation",
			zap.String("op", string(op.kind)),
			zap.String("path", op.path),
			zap.String("command", op.command))
		return false, nil
	}

	if l.maxPending > 0 && len(l.queue) >= l.maxPending {
		l.mu.Unlock()
		metrics.RecordSandboxOp(string(op.kind), "rejected")
		return false, ErrQueueFull
	}

	op.result = make(chan opResult, 1)
	l.queue = append(l.queue, op)
	metrics.SetSandboxPending(l.id, len(l.queue))
	l.mu.Unlock()

	metrics.RecordSandboxOp(string(op.kind), "queued")
	l.logger.Debug("queued sandbox operation",
		zap.String("op", string(op.kind)),
		zap.String("path", op.path))

	select {
	case r := <-op.result:
		return r.ok, r.err
	case <-ctx.Done():
		if l.dequeue(op) {
			metrics.RecordSandboxOp(string(op.kind), "abandoned")
		}
		return false, ctx.Err()
	}
}

// dequeue removes op if the drain has not taken it yet.
func (l *Link) dequeue(op *pendingOp) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, queued := range l.queue {
		if queued == op {
			l.queue = slices.Delete(l.queue, i, i+1)
			metrics.SetSandboxPending(l.id, len(l.queue))
			return true
		}
	}
	return false
}

func invoke(ctx context.Context, d Driver, op *pendingOp) (bool, error) {
	switch op.kind {
	case opWrite:
		return d.WriteFile(ctx, op.path, op.content)
	case opMkdir:
		return d.MakeDirectory(ctx, op.path)
	default:
		if err := d.RunCommand(ctx, op.command); err != nil {
			return false, err
		}
		return true, nil
	}
}
