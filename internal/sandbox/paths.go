package sandbox

import (
	"path"
	"strings"
)

// RemoteHome is the root of every path inside the sandbox.
const RemoteHome = "/home/user"

// RemotePath roots p under RemoteHome. An existing RemoteHome prefix is
// stripped before re-applying it, so RemotePath is idempotent.
func RemotePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == RemoteHome || strings.HasPrefix(p, RemoteHome+"/") {
		p = strings.TrimPrefix(p, RemoteHome)
	}
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return RemoteHome
	}
	return path.Join(RemoteHome, path.Clean("/"+p))
}

// ParentDirs lists every directory strictly between RemoteHome and the file
// at remote, shallowest first.
func ParentDirs(remote string) []string {
	rel := strings.TrimPrefix(RemotePath(remote), RemoteHome+"/")
	parts := strings.Split(rel, "/")
	if len(parts) <= 1 {
		return nil
	}

	dirs := make([]string, 0, len(parts)-1)
	current := RemoteHome
	for _, part := range parts[:len(parts)-1] {
		current = current + "/" + part
		dirs = append(dirs, current)
	}
	return dirs
}
