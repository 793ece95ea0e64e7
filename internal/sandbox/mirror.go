package sandbox

import (
	"context"
)

// MirrorFile creates the directory chain for path inside the sandbox and then
// writes the file. path is converted with RemotePath first.
func MirrorFile(ctx context.Context, c Client, path, content string) error {
	remote := RemotePath(path)

	for _, dir := range ParentDirs(remote) {
		ok, err := c.MakeDirectory(ctx, dir)
		if err != nil {
			return &MirrorError{Path: remote, Stage: "mkdir", Cause: err}
		}
		if !ok {
			return &MirrorError{Path: remote, Stage: "mkdir", Cause: ErrWriteRejected}
		}
	}

	ok, err := c.WriteFile(ctx, remote, content)
	if err != nil {
		return &MirrorError{Path: remote, Stage: "write", Cause: err}
	}
	if !ok {
		return &MirrorError{Path: remote, Stage: "write", Cause: ErrWriteRejected}
	}
	return nil
}
