package workspace

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// FileModifications computes the change payload for every path in the baseline.
// A path is reported as a patch against its baseline unless the patch is not
// smaller than the file itself, in which case the full content is sent.
// Binary files, unchanged files and paths that are no longer files are skipped.
func (s *Store) FileModifications() map[string]ModifiedFile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	out := make(map[string]ModifiedFile)
	for path, original := range s.modifications {
		file, ok := s.files[path]
		if !ok || file.Type != DirentFile || file.IsBinary {
			continue
		}
		if file.Content == original {
			continue
		}

		diffs := dmp.DiffMain(original, file.Content, true)
		diffs = dmp.DiffCleanupSemantic(diffs)
		patch := dmp.PatchToText(dmp.PatchMake(original, diffs))

		if len(patch) >= len(file.Content) {
			out[path] = ModifiedFile{Kind: ModificationFile, Content: file.Content}
			continue
		}
		out[path] = ModifiedFile{Kind: ModificationDiff, Content: patch}
	}
	return out
}
