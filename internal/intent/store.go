// Package intent loads the registered intent records and implements the
// intent-selection handshake that binds one of them to a session.
package intent

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Intent statuses. Only IN_PROGRESS intents are selectable.
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusAbandoned  = "ABANDONED"
)

// Intent is one persistent record from active_intents.yaml. Read-only to
// the middleware; authored externally.
type Intent struct {
	ID                 string   `yaml:"id"`
	Name               string   `yaml:"name"`
	Status             string   `yaml:"status"`
	OwnedScope         []string `yaml:"owned_scope"`
	Constraints        []string `yaml:"constraints"`
	AcceptanceCriteria []string `yaml:"acceptance_criteria"`
}

type intentsFile struct {
	ActiveIntents []Intent `yaml:"active_intents"`
}

// Store reads and caches the intents file. The cache is invalidated by an
// fsnotify watcher when available and by an mtime check on every Load, so
// external edits are picked up either way.
type Store struct {
	path string

	mu     sync.Mutex
	cached []Intent
	mtime  time.Time
	loaded bool
	dirty  bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStore creates a store for the intents file at path. Call Watch to
// enable push invalidation; Load alone still detects changes via mtime.
func NewStore(path string) *Store {
	return &Store{path: path, done: make(chan struct{})}
}

// Watch starts an fsnotify watcher on the intents file's directory. Events
// touching the file mark the cache dirty. Safe to skip: Load's mtime check
// is the polling fallback.
func (s *Store) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("intent: create watcher: %w", err)
	}
	// Watch the directory, not the file: editors replace files by rename,
	// which drops a file-level watch.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("intent: watch %s: %w", filepath.Dir(s.path), err)
	}
	s.watcher = w

	go func() {
		base := filepath.Base(s.path)
		for {
			select {
			case <-s.done:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) == base {
					s.mu.Lock()
					s.dirty = true
					s.mu.Unlock()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("[IntentStore] watcher error: %v", err)
			}
		}
	}()
	return nil
}

// Close stops the watcher, if one was started.
func (s *Store) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.watcher != nil {
		s.watcher.Close()
	}
}

// Load returns the current intent records, re-reading the file only when
// the cache is dirty or the file's mtime moved.
func (s *Store) Load() ([]Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("intent: stat %s: %w", s.path, err)
	}
	if s.loaded && !s.dirty && info.ModTime().Equal(s.mtime) {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("intent: read %s: %w", s.path, err)
	}
	var file intentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("intent: parse %s: %w", s.path, err)
	}

	s.cached = file.ActiveIntents
	s.mtime = info.ModTime()
	s.loaded = true
	s.dirty = false
	return s.cached, nil
}

// Get returns the intent with the given id.
func (s *Store) Get(id string) (Intent, error) {
	intents, err := s.Load()
	if err != nil {
		return Intent{}, err
	}
	for _, it := range intents {
		if it.ID == id {
			return it, nil
		}
	}
	return Intent{}, fmt.Errorf("intent: unknown id %q", id)
}

// InProgress returns all intents whose status allows selection.
func (s *Store) InProgress() ([]Intent, error) {
	intents, err := s.Load()
	if err != nil {
		return nil, err
	}
	var out []Intent
	for _, it := range intents {
		if it.Status == StatusInProgress {
			out = append(out, it)
		}
	}
	return out, nil
}
