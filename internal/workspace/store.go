// Package workspace holds the per-conversation virtual file map that mirrors
// what the model believes exists, plus the first-touch modification baseline.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"go.uber.org/zap"

	"github.com/Cyclone1070/artifactsync/internal/blobstore"
	"github.com/Cyclone1070/artifactsync/internal/logging"
)

// Store is the virtual file store for the active conversation.
// It is safe for concurrent use.
type Store struct {
	blobs  blobstore.Store
	logger *zap.Logger

	// persistMu orders blob writes and conversation swaps. Lock order: persistMu, then mu.
	persistMu sync.Mutex

	mu            sync.RWMutex
	conversation  string
	files         FileMap
	modifications map[string]string
	size          int
}

// NewStore creates an empty store persisting through blobs.
// A nil blobs keeps everything in memory only.
func NewStore(blobs blobstore.Store, logger *zap.Logger) *Store {
	return &Store{
		blobs:         blobs,
		logger:        logging.OrNop(logger).Named("workspace"),
		files:         make(FileMap),
		modifications: make(map[string]string),
	}
}

// Conversation returns the active conversation id.
func (s *Store) Conversation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversation
}

// SetActiveConversation swaps the in-scope file map and baseline to the ones stored for id.
// The previous conversation's in-memory state is cleared first. Same id is a no-op.
func (s *Store) SetActiveConversation(ctx context.Context, id string) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if id == s.conversation {
		return nil
	}

	s.resetLocked()
	s.conversation = id

	if s.blobs == nil || id == "" {
		return nil
	}

	data, ok, err := s.blobs.Get(ctx, id)
	if err != nil {
		return &LoadError{Conversation: id, Cause: err}
	}
	if !ok {
		s.logger.Debug("no stored files for conversation", zap.String("conversation", id))
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return &LoadError{Conversation: id, Cause: err}
	}
	for p, d := range snap.Files {
		s.files[p] = d
		if d.Type == DirentFile {
			s.size++
		}
	}
	maps.Copy(s.modifications, snap.Modifications)

	s.logger.Debug("loaded conversation",
		zap.String("conversation", id),
		zap.Int("files", s.size))
	return nil
}

// Get returns the entry at path only if it is a file.
func (s *Store) Get(path string) (Dirent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.files[path]
	if !ok || d.Type != DirentFile {
		return Dirent{}, false
	}
	return d, true
}

// Write upserts path as a file. The prior content is recorded as the baseline
// the first time path is touched since the last clear.
func (s *Store) Write(ctx context.Context, path, content string) error {
	s.mu.Lock()
	err := s.writeLocked(path, content)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	return s.persist(ctx)
}

// Add normalizes path under WorkDir, creates any missing intermediate folders
// and then writes the file like Write. Nothing changes if a path component is
// a file or the path itself is a folder.
func (s *Store) Add(ctx context.Context, path, content string) error {
	normalized := Normalize(path)

	s.mu.Lock()
	err := s.addLocked(normalized, content)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	return s.persist(ctx)
}

func (s *Store) addLocked(path, content string) error {
	if err := s.checkWritableLocked(path); err != nil {
		return err
	}

	folders := parentFolders(path)
	for _, folder := range folders {
		if existing, ok := s.files[folder]; ok && existing.Type != DirentFolder {
			return fmt.Errorf("%w: %s", ErrNotAFolder, folder)
		}
	}
	for _, folder := range folders {
		if _, ok := s.files[folder]; !ok {
			s.files[folder] = Dirent{Type: DirentFolder}
		}
	}
	return s.writeLocked(path, content)
}

// checkWritableLocked rejects a path that is already a folder.
func (s *Store) checkWritableLocked(path string) error {
	if d, ok := s.files[path]; ok && d.Type == DirentFolder {
		return fmt.Errorf("%w: %s is a folder", ErrNotAFile, path)
	}
	return nil
}

func (s *Store) writeLocked(path, content string) error {
	if err := s.checkWritableLocked(path); err != nil {
		return err
	}

	prev, existed := s.files[path]
	if existed && prev.Type == DirentFile {
		if _, tracked := s.modifications[path]; !tracked {
			s.modifications[path] = prev.Content
		}
	} else {
		s.size++
	}

	s.files[path] = Dirent{
		Type:     DirentFile,
		Content:  content,
		IsBinary: IsBinaryContent([]byte(content)),
	}
	return nil
}

// Delete removes the file at path. Its content becomes the baseline if path
// was not touched yet, so the removal shows up in Modifications.
func (s *Store) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	prev, ok := s.files[path]
	if !ok || prev.Type != DirentFile {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotAFile, path)
	}
	if _, tracked := s.modifications[path]; !tracked {
		s.modifications[path] = prev.Content
	}
	delete(s.files, path)
	s.size--
	s.mu.Unlock()

	return s.persist(ctx)
}

// Size returns the number of file entries, excluding folders.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Files returns a snapshot of the current file map.
func (s *Store) Files() FileMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.files)
}

// Modifications returns a snapshot of the baseline map (path -> content before first touch).
func (s *Store) Modifications() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.modifications)
}

// ClearModifications empties the baseline without touching file contents.
func (s *Store) ClearModifications(ctx context.Context) error {
	s.mu.Lock()
	clear(s.modifications)
	s.mu.Unlock()

	return s.persist(ctx)
}

// Reset clears all entries and the baseline. Nothing is written to the blob store.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Store) resetLocked() {
	s.files = make(FileMap)
	s.modifications = make(map[string]string)
	s.size = 0
}

// persist writes the whole map for the active conversation.
func (s *Store) persist(ctx context.Context) error {
	if s.blobs == nil {
		return nil
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	conversation := s.conversation
	data, err := json.Marshal(snapshot{Files: s.files, Modifications: contentMap(s.modifications)})
	s.mu.RUnlock()

	if conversation == "" {
		return nil
	}
	if err != nil {
		return &PersistError{Conversation: conversation, Cause: err}
	}
	if err := s.blobs.Set(ctx, conversation, data); err != nil {
		s.logger.Error("failed to persist files",
			zap.String("conversation", conversation),
			zap.Error(err))
		return &PersistError{Conversation: conversation, Cause: err}
	}
	return nil
}
