package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"go.uber.org/zap"
)

// ignoreFile is read from the virtual store, not from disk.
const ignoreFile = WorkDir + "/.gitignore"

// FileWriter defines the minimal filesystem operations needed for exporting.
type FileWriter interface {
	EnsureDirs(path string) error
	WriteFileAtomic(path string, content []byte, perm os.FileMode) error
}

// ExportResult summarizes an Export.
type ExportResult struct {
	Written []string
	Ignored []string
}

// Export materializes every file under dir, laid out relative to WorkDir.
// Paths matched by the virtual .gitignore are skipped.
func (s *Store) Export(ctx context.Context, dir string, fsys FileWriter) (*ExportResult, error) {
	files := s.Files()

	var matcher gitignore.Matcher
	if ignore, ok := files[ignoreFile]; ok && ignore.Type == DirentFile {
		matcher = gitignore.NewMatcher(parsePatterns(ignore.Content))
	}

	paths := make([]string, 0, len(files))
	for p, d := range files {
		if d.Type == DirentFile {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	result := &ExportResult{}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rel := Rel(p)
		if matcher != nil && matcher.Match(splitPath(rel), false) {
			result.Ignored = append(result.Ignored, p)
			continue
		}

		target := filepath.Join(dir, filepath.FromSlash(rel))
		if err := fsys.EnsureDirs(filepath.Dir(target)); err != nil {
			return result, err
		}
		if err := fsys.WriteFileAtomic(target, []byte(files[p].Content), 0o644); err != nil {
			return result, err
		}
		result.Written = append(result.Written, p)
	}

	s.logger.Info("exported workspace",
		zap.String("dir", dir),
		zap.Int("written", len(result.Written)),
		zap.Int("ignored", len(result.Ignored)))
	return result, nil
}

func parsePatterns(content string) []gitignore.Pattern {
	var patterns []gitignore.Pattern
	for _, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return patterns
}

// splitPath splits a slash path into segments for gitignore matching.
func splitPath(p string) []string {
	var segments []string
	for _, part := range strings.Split(p, "/") {
		if part != "" && part != "." {
			segments = append(segments, part)
		}
	}
	return segments
}

// OSFileSystem implements FileWriter on the real filesystem.
type OSFileSystem struct{}

// NewOSFileSystem creates a new OSFileSystem.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

// EnsureDirs creates parent directories recursively if they don't exist.
func (fs *OSFileSystem) EnsureDirs(path string) error {
	return os.MkdirAll(path, 0o755)
}

// WriteFileAtomic writes content to a file atomically using temp file + rename pattern.
// The temp file is created in the same directory as the target to ensure atomic rename.
func (fs *OSFileSystem) WriteFileAtomic(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return &TempFileError{Dir: dir, Cause: err}
	}

	tmpPath := tmpFile.Name()
	needsCleanup := true

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
		}
		if needsCleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(content); err != nil {
		return &TempWriteError{Path: tmpPath, Cause: err}
	}
	if err := tmpFile.Chmod(perm); err != nil {
		return &TempWriteError{Path: tmpPath, Cause: err}
	}

	// Close file before rename (required on some systems)
	if err := tmpFile.Close(); err != nil {
		tmpFile = nil
		return &TempWriteError{Path: tmpPath, Cause: err}
	}
	tmpFile = nil

	if err := os.Rename(tmpPath, path); err != nil {
		return &RenameError{Old: tmpPath, New: path, Cause: err}
	}
	needsCleanup = false

	return nil
}
