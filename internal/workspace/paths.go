package workspace

import (
	"path"
	"strings"
)

// WorkDir is the root of every local virtual path.
const WorkDir = "/project"

// Normalize roots p under WorkDir. An existing WorkDir prefix is stripped
// before re-applying it, so Normalize is idempotent.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == WorkDir || strings.HasPrefix(p, WorkDir+"/") {
		p = strings.TrimPrefix(p, WorkDir)
	}
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return WorkDir
	}
	return path.Join(WorkDir, path.Clean("/" + p))
}

// Rel returns p relative to WorkDir, without a leading slash.
func Rel(p string) string {
	return strings.TrimPrefix(strings.TrimPrefix(Normalize(p), WorkDir), "/")
}

// parentFolders lists every directory strictly between WorkDir and the
// normalized file path, shallowest first.
func parentFolders(normalized string) []string {
	rel := strings.TrimPrefix(normalized, WorkDir+"/")
	parts := strings.Split(rel, "/")
	if len(parts) <= 1 {
		return nil
	}

	folders := make([]string, 0, len(parts)-1)
	current := WorkDir
	for _, part := range parts[:len(parts)-1] {
		current = current + "/" + part
		folders = append(folders, current)
	}
	return folders
}
