// Package main provides the artifactsync command line. It replays a recorded
// stream of model actions into a virtual workspace and, optionally, a docker
// sandbox, then exports or diffs the result.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Cyclone1070/artifactsync/internal/action"
	"github.com/Cyclone1070/artifactsync/internal/blobstore"
	"github.com/Cyclone1070/artifactsync/internal/config"
	"github.com/Cyclone1070/artifactsync/internal/logging"
	"github.com/Cyclone1070/artifactsync/internal/metrics"
	"github.com/Cyclone1070/artifactsync/internal/reconcile"
	"github.com/Cyclone1070/artifactsync/internal/sandbox"
	"github.com/Cyclone1070/artifactsync/internal/sandbox/docker"
	"github.com/Cyclone1070/artifactsync/internal/workspace"
)

// SandboxDriver is a sandbox.Driver that can also be provisioned and torn down.
type SandboxDriver interface {
	sandbox.Driver
	EnsureReady(ctx context.Context) error
	OpenTerminal(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// Dependencies holds the components the commands are built from.
type Dependencies struct {
	Stdout     io.Writer
	LoadConfig func(path string) (*config.Config, error)
	OpenBlobs  func(ctx context.Context, cfg config.StoreConfig) (blobstore.Store, error)
	NewDriver  func(cfg config.SandboxConfig, logger *zap.Logger) SandboxDriver
}

func defaultDependencies() Dependencies {
	return Dependencies{
		Stdout: os.Stdout,
		LoadConfig: func(path string) (*config.Config, error) {
			if path != "" {
				return config.NewLoader().LoadFile(path)
			}
			return config.Load()
		},
		OpenBlobs: blobstore.New,
		NewDriver: func(cfg config.SandboxConfig, logger *zap.Logger) SandboxDriver {
			return docker.New(cfg, logger)
		},
	}
}

type app struct {
	deps   Dependencies
	cfg    *config.Config
	logger *zap.Logger

	configPath   string
	conversation string
	metricsAddr  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(defaultDependencies()).ExecuteContext(ctx)
	_ = logging.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(deps Dependencies) *cobra.Command {
	a := &app{deps: deps}

	root := &cobra.Command{
		Use:           "artifactsync",
		Short:         "Replay model file and shell actions into a virtual workspace",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.config/artifactsync/config.yaml)")
	root.PersistentFlags().StringVar(&a.conversation, "conversation", "default", "conversation id to load and persist")
	root.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")

	root.AddCommand(a.newReplayCmd(), a.newExportCmd(), a.newDiffCmd())
	return root
}

func (a *app) init() error {
	cfg, err := a.deps.LoadConfig(a.configPath)
	if err != nil {
		if a.configPath != "" {
			return fmt.Errorf("failed to load config: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Using default configuration.\n")
		cfg = config.DefaultConfig()
	}
	a.cfg = cfg

	if err := logging.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	a.logger = logging.L()
	return nil
}

// openStore opens the blob store and activates the conversation. The
// returned func releases the blob store.
func (a *app) openStore(ctx context.Context) (*workspace.Store, func(), error) {
	blobs, err := a.deps.OpenBlobs(ctx, a.cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", a.cfg.Store.Backend, err)
	}
	release := func() {
		if c, ok := blobs.(io.Closer); ok {
			if err := c.Close(); err != nil {
				a.logger.Warn("failed to close blob store", zap.Error(err))
			}
		}
	}

	store := workspace.NewStore(blobs, a.logger)
	if err := store.SetActiveConversation(ctx, a.conversation); err != nil {
		release()
		return nil, nil, err
	}
	return store, release, nil
}

func (a *app) serveMetrics() func() {
	if a.metricsAddr == "" {
		return func() {}
	}
	srv := &http.Server{Addr: a.metricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	return func() { _ = srv.Shutdown(context.Background()) }
}

func (a *app) newReplayCmd() *cobra.Command {
	var (
		useDocker bool
		exportDir string
		showDiff  bool
	)

	cmd := &cobra.Command{
		Use:   "replay <events.jsonl>",
		Short: "Replay an action event log",
		Long: `Reads one JSON event per line:
  {"type":"register|submit|abort","turn_id":"...","action_id":"...","action":{"type":"file|shell",...}}
Every turn runs in its own ordered pipeline. After all turns settle each
turn is reconciled against the workspace.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runReplay(cmd.Context(), args[0], useDocker, exportDir, showDiff)
		},
	}
	cmd.Flags().BoolVar(&useDocker, "docker", false, "provision a docker sandbox and mirror actions into it")
	cmd.Flags().StringVar(&exportDir, "export", "", "export the workspace to this directory afterwards")
	cmd.Flags().BoolVar(&showDiff, "diff", false, "print the modification payload afterwards")
	return cmd
}

func (a *app) runReplay(ctx context.Context, eventsPath string, useDocker bool, exportDir string, showDiff bool) error {
	defer a.serveMetrics()()

	store, release, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer release()

	link := sandbox.NewLink(a.cfg.Sandbox.MaxPendingOperations, a.logger)
	registry := action.NewRegistry(store, link, a.logger)

	var driver SandboxDriver
	g, gctx := errgroup.WithContext(ctx)
	if useDocker {
		driver = a.deps.NewDriver(a.cfg.Sandbox, a.logger)
		// Operations issued before the container is up queue on the link.
		link.SetConnecting(true)
		g.Go(func() error {
			a.provision(gctx, driver, link)
			return nil
		})
	}
	g.Go(func() error {
		if err := a.dispatchFile(eventsPath, registry); err != nil {
			return err
		}
		return registry.Wait(gctx)
	})
	err = g.Wait()

	if driver != nil {
		defer func() {
			if err := driver.Close(context.WithoutCancel(ctx)); err != nil {
				a.logger.Warn("failed to remove sandbox", zap.Error(err))
			}
		}()
	}
	if err != nil {
		link.Reset()
		return err
	}

	rec := reconcile.New(registry, store, link, a.logger)
	for _, turnID := range registry.Turns() {
		counts := map[action.Status]int{}
		for _, st := range registry.Actions(turnID) {
			counts[st.Status]++
		}
		res := rec.Reconcile(ctx, turnID)
		fmt.Fprintf(a.deps.Stdout, "turn %s: complete=%d failed=%d aborted=%d synced=%d/%d missing=%v\n",
			turnID,
			counts[action.StatusComplete], counts[action.StatusFailed], counts[action.StatusAborted],
			res.Synced, res.Total, res.Missing)
	}

	if exportDir != "" {
		if err := a.export(ctx, store, exportDir); err != nil {
			return err
		}
	}
	if showDiff {
		return a.printDiff(store)
	}
	return nil
}

// sandboxLink is the part of *sandbox.Link that provisioning drives.
type sandboxLink interface {
	SetConnected(connected bool, sandboxID string)
	RegisterDriver(ctx context.Context, d sandbox.Driver)
	Reset()
	SetError(msg string)
}

// provision brings up the sandbox and installs the driver. On failure the
// link is reset so queued operations are rejected and later ones fail fast.
func (a *app) provision(ctx context.Context, d SandboxDriver, link sandboxLink) {
	fail := func(err error) {
		a.logger.Warn("sandbox unavailable, continuing local only", zap.Error(err))
		link.Reset()
		link.SetError(err.Error())
	}

	if err := d.EnsureReady(ctx); err != nil {
		fail(err)
		return
	}
	id, err := d.CreateSandbox(ctx)
	if err != nil {
		fail(err)
		return
	}
	if _, err := d.OpenTerminal(ctx); err != nil {
		a.logger.Warn("failed to open sandbox terminal", zap.Error(err))
	}

	// Register while still connecting. A connected link without a driver
	// reports not ready and executors skip the mirror.
	link.RegisterDriver(ctx, d)
	link.SetConnected(true, id)
	a.logger.Info("sandbox connected", zap.String("sandbox", id))
}

func (a *app) dispatchFile(path string, registry *action.Registry) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return dispatchEvents(f, registry)
}

func dispatchEvents(r io.Reader, registry *action.Registry) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal(text, &raw); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		ev, err := action.DecodeEvent(raw)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := registry.Dispatch(ev); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return scanner.Err()
}

func (a *app) newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Write the conversation's files to a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, release, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			return a.export(cmd.Context(), store, args[0])
		},
	}
}

func (a *app) export(ctx context.Context, store *workspace.Store, dir string) error {
	res, err := store.Export(ctx, dir, workspace.NewOSFileSystem())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.deps.Stdout, "exported %d files to %s (%d ignored)\n", len(res.Written), dir, len(res.Ignored))
	return nil
}

func (a *app) newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Print the changes since the last checkpoint as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, release, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			return a.printDiff(store)
		},
	}
}

func (a *app) printDiff(store *workspace.Store) error {
	enc := json.NewEncoder(a.deps.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(store.FileModifications())
}
