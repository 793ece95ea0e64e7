package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cyclone1070/artifactsync/internal/action"
	"github.com/Cyclone1070/artifactsync/internal/blobstore"
	"github.com/Cyclone1070/artifactsync/internal/workspace"
)

type staticSource map[string][]action.State

func (s staticSource) Actions(turnID string) []action.State {
	return s[turnID]
}

type recordingSandbox struct {
	mu      sync.Mutex
	ready   bool
	writes  []string
	mkdirs  []string
	writeOK bool
}

func (s *recordingSandbox) WriteFile(_ context.Context, path, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, path)
	return s.writeOK, nil
}

func (s *recordingSandbox) MakeDirectory(_ context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirs = append(s.mkdirs, path)
	return true, nil
}

func (s *recordingSandbox) RunCommand(context.Context, string) error { return nil }

func (s *recordingSandbox) IsReady() bool { return s.ready }

type failingStore struct {
	*workspace.Store
	failOn string
}

func (f *failingStore) Add(ctx context.Context, path, content string) error {
	if path == f.failOn {
		return errors.New("store unavailable")
	}
	return f.Store.Add(ctx, path, content)
}

func fileState(path, content string) action.State {
	return action.State{
		TurnID:   "turn-1",
		Action:   action.Action{Kind: action.KindFile, FilePath: path, Content: content},
		Executed: true,
		Status:   action.StatusComplete,
	}
}

func newStore(t *testing.T) *workspace.Store {
	t.Helper()
	s := workspace.NewStore(blobstore.NewMemory(), nil)
	require.NoError(t, s.SetActiveConversation(context.Background(), "conv"))
	return s
}

func TestReconcile_RepairsMissingFileOnce(t *testing.T) {
	store := newStore(t)
	src := staticSource{"turn-1": {fileState("a.txt", "hello")}}
	r := New(src, store, nil, nil)
	ctx := context.Background()

	got := r.Reconcile(ctx, "turn-1")
	assert.Equal(t, Result{Synced: 1, Total: 1, Missing: []string{"a.txt"}}, got)

	f, ok := store.Get("/project/a.txt")
	require.True(t, ok)
	assert.Equal(t, "hello", f.Content)

	got = r.Reconcile(ctx, "turn-1")
	assert.Equal(t, Result{Synced: 0, Total: 1, Missing: []string{}}, got)
}

func TestReconcile_SkipsShellAndPresentFiles(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, "src/present.ts", "x"))

	src := staticSource{"turn-1": {
		fileState("src/present.ts", "x"),
		{Action: action.Action{Kind: action.KindShell, Command: "npm install"}},
		fileState("/project/src/gone.ts", "y"),
	}}
	got := New(src, store, nil, nil).Reconcile(ctx, "turn-1")

	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.Synced)
	assert.Equal(t, []string{"/project/src/gone.ts"}, got.Missing)
	assert.Equal(t, 2, store.Size())
}

func TestReconcile_MirrorsIntoReadySandbox(t *testing.T) {
	store := newStore(t)
	sb := &recordingSandbox{ready: true, writeOK: true}
	src := staticSource{"turn-1": {fileState("src/lib/util.ts", "export {}")}}

	got := New(src, store, sb, nil).Reconcile(context.Background(), "turn-1")

	assert.Equal(t, 1, got.Synced)
	assert.Equal(t, []string{"/home/user/src", "/home/user/src/lib"}, sb.mkdirs)
	assert.Equal(t, []string{"/home/user/src/lib/util.ts"}, sb.writes)
}

func TestReconcile_SandboxFailureStillCountsLocalRepair(t *testing.T) {
	store := newStore(t)
	sb := &recordingSandbox{ready: true, writeOK: false}
	src := staticSource{"turn-1": {fileState("a.txt", "x")}}

	got := New(src, store, sb, nil).Reconcile(context.Background(), "turn-1")

	assert.Equal(t, 1, got.Synced)
	_, ok := store.Get("/project/a.txt")
	assert.True(t, ok)
}

func TestReconcile_SandboxNotReady(t *testing.T) {
	store := newStore(t)
	sb := &recordingSandbox{ready: false}
	src := staticSource{"turn-1": {fileState("a.txt", "x")}}

	got := New(src, store, sb, nil).Reconcile(context.Background(), "turn-1")

	assert.Equal(t, 1, got.Synced)
	assert.Empty(t, sb.writes)
}

func TestReconcile_PartialFailureContinues(t *testing.T) {
	store := &failingStore{Store: newStore(t), failOn: "b.txt"}
	src := staticSource{"turn-1": {
		fileState("a.txt", "1"),
		fileState("b.txt", "2"),
		fileState("c.txt", "3"),
	}}

	got := New(src, store, nil, nil).Reconcile(context.Background(), "turn-1")

	assert.Equal(t, Result{Synced: 2, Total: 3, Missing: []string{"a.txt", "b.txt", "c.txt"}}, got)
	_, ok := store.Get("/project/c.txt")
	assert.True(t, ok)
}

func TestReconcile_UnknownTurn(t *testing.T) {
	got := New(staticSource{}, newStore(t), nil, nil).Reconcile(context.Background(), "nope")
	assert.Equal(t, Result{Missing: []string{}}, got)
}
