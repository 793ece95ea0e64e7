// Package reconcile repairs a turn whose recorded file actions never landed
// in the virtual store.
package reconcile

import (
	"context"

	"go.uber.org/zap"

	"github.com/Cyclone1070/artifactsync/internal/action"
	"github.com/Cyclone1070/artifactsync/internal/logging"
	"github.com/Cyclone1070/artifactsync/internal/metrics"
	"github.com/Cyclone1070/artifactsync/internal/sandbox"
	"github.com/Cyclone1070/artifactsync/internal/workspace"
)

// ActionSource returns the recorded actions of a turn.
type ActionSource interface {
	Actions(turnID string) []action.State
}

// FileStore is the part of the virtual store reconciliation reads and repairs.
type FileStore interface {
	Get(path string) (workspace.Dirent, bool)
	Add(ctx context.Context, path, content string) error
}

// Result summarizes one reconciliation pass.
type Result struct {
	Synced  int      `json:"synced"`
	Total   int      `json:"total"`
	Missing []string `json:"missing"`
}

// Reconciler re-applies file actions that are missing from the store.
type Reconciler struct {
	actions ActionSource
	store   FileStore
	sandbox sandbox.Client
	logger  *zap.Logger
}

// New creates a Reconciler. sb may be nil when no sandbox is wired.
func New(actions ActionSource, store FileStore, sb sandbox.Client, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		actions: actions,
		store:   store,
		sandbox: sb,
		logger:  logging.OrNop(logger).Named("reconcile"),
	}
}

// Reconcile checks every file action of turnID against the store. A missing
// file is added locally and, if the sandbox is ready, mirrored there too.
// Missing lists the paths as the actions recorded them. A failed repair is
// logged, left out of Synced, and does not stop the pass.
func (r *Reconciler) Reconcile(ctx context.Context, turnID string) Result {
	res := Result{Missing: []string{}}

	for _, st := range r.actions.Actions(turnID) {
		if st.Action.Kind != action.KindFile {
			continue
		}
		res.Total++

		a := st.Action
		if _, ok := r.store.Get(workspace.Normalize(a.FilePath)); ok {
			continue
		}
		res.Missing = append(res.Missing, a.FilePath)

		if err := r.store.Add(ctx, a.FilePath, a.Content); err != nil {
			r.logger.Warn("failed to restore file",
				zap.String("turn", turnID),
				zap.String("path", a.FilePath),
				zap.Error(err))
			continue
		}

		if r.sandbox != nil && r.sandbox.IsReady() {
			if err := sandbox.MirrorFile(ctx, r.sandbox, a.FilePath, a.Content); err != nil {
				r.logger.Warn("failed to restore file in sandbox",
					zap.String("turn", turnID),
					zap.String("path", a.FilePath),
					zap.Error(err))
			}
		}
		res.Synced++
	}

	if res.Synced > 0 {
		metrics.RecordReconciled(res.Synced)
		r.logger.Info("reconciled turn",
			zap.String("turn", turnID),
			zap.Int("synced", res.Synced),
			zap.Int("total", res.Total))
	}
	return res
}
