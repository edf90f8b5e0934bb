package organizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"curator/internal/logging"
)

// unsyncedRevision marks a state that has never completed a sync.
const unsyncedRevision int64 = -1

// LinkState is the local snapshot of the links the synchronizer last wrote,
// keyed by library-relative target path. It is never authoritative: a missing
// or unreadable snapshot starts empty and the next sync rebuilds it from the
// store.
type LinkState struct {
	path     string
	logger   *slog.Logger
	mu       sync.RWMutex
	revision int64
	links    map[string]string
	syncedAt time.Time
}

type linkStateFile struct {
	Revision int64             `json:"revision"`
	SyncedAt time.Time         `json:"synced_at"`
	Links    map[string]string `json:"links"`
}

// LoadLinkState reads the snapshot at path. An empty path keeps the state in
// memory only.
func LoadLinkState(path string, logger *slog.Logger) *LinkState {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &LinkState{
		path:     path,
		logger:   logging.NewComponentLogger(logger, "linkstate"),
		revision: unsyncedRevision,
		links:    make(map[string]string),
	}
	if path == "" {
		return s
	}
	if err := s.load(); err != nil {
		s.logger.Warn("failed to load link state",
			logging.String(logging.FieldEventType, "link_state_load_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "state will start empty"),
			logging.String(logging.FieldImpact, "next sync inspects every link on disk"))
		s.revision = unsyncedRevision
		s.links = make(map[string]string)
	}
	return s
}

// Revision returns the store revision of the last completed sync.
func (s *LinkState) Revision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// SyncedAt returns when the snapshot was last saved.
func (s *LinkState) SyncedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncedAt
}

// Lookup returns the recorded destination for target.
func (s *LinkState) Lookup(target string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dest, ok := s.links[target]
	return dest, ok
}

// Set records the destination written for target.
func (s *LinkState) Set(target, dest string) {
	s.mu.Lock()
	s.links[target] = dest
	s.mu.Unlock()
}

// Delete forgets target.
func (s *LinkState) Delete(target string) {
	s.mu.Lock()
	delete(s.links, target)
	s.mu.Unlock()
}

// Targets returns every recorded target in sorted order.
func (s *LinkState) Targets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	targets := make([]string, 0, len(s.links))
	for target := range s.links {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}

// Len returns the number of recorded links.
func (s *LinkState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.links)
}

// Reset clears every record and marks the state unsynced.
func (s *LinkState) Reset() {
	s.mu.Lock()
	s.links = make(map[string]string)
	s.revision = unsyncedRevision
	s.mu.Unlock()
}

// Save stamps the snapshot with revision and persists it.
func (s *LinkState) Save(revision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revision = revision
	s.syncedAt = time.Now().UTC()
	if s.path == "" {
		return nil
	}
	if err := s.save(); err != nil {
		return fmt.Errorf("persist link state: %w", err)
	}
	return nil
}

func (s *LinkState) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read link state: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var file linkStateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse link state: %w", err)
	}
	s.revision = file.Revision
	s.syncedAt = file.SyncedAt
	s.links = make(map[string]string, len(file.Links))
	for target, dest := range file.Links {
		if target != "" && dest != "" {
			s.links[target] = dest
		}
	}

	s.logger.Debug("loaded link state",
		logging.Int("link_count", len(s.links)),
		logging.Int64("revision", s.revision),
		logging.String("path", s.path))
	return nil
}

// save writes the snapshot atomically. Callers hold mu.
func (s *LinkState) save() error {
	data, err := json.MarshalIndent(linkStateFile{
		Revision: s.revision,
		SyncedAt: s.syncedAt,
		Links:    s.links,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal link state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create link state directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
