package sandbox

import "context"

// ConnectionState is the lifecycle state of the remote sandbox session.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Session is a snapshot of the link's connection state.
type Session struct {
	State        ConnectionState
	SandboxID    string
	ErrorMessage string
}

// Driver is the capability set a concrete sandbox implementation provides.
// It is installed wholesale with Link.RegisterDriver.
type Driver interface {
	WriteFile(ctx context.Context, path, content string) (bool, error)
	MakeDirectory(ctx context.Context, path string) (bool, error)
	RunCommand(ctx context.Context, command string) error
	SendTerminalInput(ctx context.Context, terminalID, data string) error
	CreateSandbox(ctx context.Context) (string, error)
	ActiveTerminalID() string
}

// Client is the subset of Link used by action execution and reconciliation.
type Client interface {
	WriteFile(ctx context.Context, path, content string) (bool, error)
	MakeDirectory(ctx context.Context, path string) (bool, error)
	RunCommand(ctx context.Context, command string) error
	IsReady() bool
}

type opKind string

const (
	opWrite opKind = "write"
	opMkdir opKind = "mkdir"
	opRun   opKind = "run"
)

type opResult struct {
	ok  bool
	err error
}

// pendingOp is a call issued before a driver was registered.
type pendingOp struct {
	kind    opKind
	path    string
	content string
	command string
	// buffered so the drainer never blocks on a caller that gave up
	result chan opResult
}
