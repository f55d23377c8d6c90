package threadstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pkt.systems/nbmux/schema"
	"pkt.systems/pslog"
)

// PanelState is the durable key/value state scoped to one panel origin:
// user preferences, the delete-all retry flag, and the session-key to
// thread-id directory. Persistence is an optimization, never a
// correctness requirement; every failure degrades to empty state.
type PanelState struct {
	Model                   string                                `json:"model,omitempty"`
	CommandPath             string                                `json:"command_path,omitempty"`
	ReasoningEffort         string                                `json:"reasoning_effort,omitempty"`
	Sandbox                 string                                `json:"sandbox,omitempty"`
	AutoSave                bool                                  `json:"auto_save,omitempty"`
	IncludeActiveCell       bool                                  `json:"include_active_cell,omitempty"`
	IncludeActiveCellOutput bool                                  `json:"include_active_cell_output,omitempty"`
	NotifyOnDone            bool                                  `json:"notify_on_done,omitempty"`
	SettingsPanelOpen       bool                                  `json:"settings_panel_open,omitempty"`
	NotifyMinSeconds        int                                   `json:"notify_min_seconds,omitempty"`
	DeleteAllPending        bool                                  `json:"delete_all_pending,omitempty"`
	Threads                 map[schema.SessionKey]schema.ThreadID `json:"threads,omitempty"`
}

// Store persists panel state to a single JSON file with atomic rename
// writes. Reads that fail for any reason return empty state; writes are
// best-effort and logged, never surfaced.
type Store struct {
	path string
	log  pslog.Logger

	mu    sync.Mutex
	state PanelState
}

// NewStore constructs a store rooted at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "panel.json")
	if logger != nil {
		logger = logger.With("state_path", path)
	}
	s := &Store{path: path, log: logger}
	s.state = s.load()
	return s, nil
}

// Thread returns the persisted thread id for a session key, or "".
func (s *Store) Thread(key schema.SessionKey) schema.ThreadID {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Threads[key]
}

// PutThread records a session-key to thread-id mapping. An empty thread
// id removes the entry.
func (s *Store) PutThread(key schema.SessionKey, threadID schema.ThreadID) {
	if s == nil || key == "" {
		return
	}
	s.mu.Lock()
	if s.state.Threads == nil {
		s.state.Threads = make(map[schema.SessionKey]schema.ThreadID)
	}
	if threadID == "" {
		delete(s.state.Threads, key)
	} else {
		s.state.Threads[key] = threadID
	}
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.save(state)
}

// WriteThreads replaces the whole thread directory with the given
// registry snapshot.
func (s *Store) WriteThreads(threads map[schema.SessionKey]schema.ThreadID) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.state.Threads = make(map[schema.SessionKey]schema.ThreadID, len(threads))
	for key, id := range threads {
		if key == "" || id == "" {
			continue
		}
		s.state.Threads[key] = id
	}
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.save(state)
}

// State returns a copy of the current panel state.
func (s *Store) State() PanelState {
	if s == nil {
		return PanelState{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Update applies fn to the panel state and persists the result.
func (s *Store) Update(fn func(*PanelState)) {
	if s == nil || fn == nil {
		return
	}
	s.mu.Lock()
	fn(&s.state)
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.save(state)
}

func (s *Store) snapshotLocked() PanelState {
	state := s.state
	if s.state.Threads != nil {
		state.Threads = make(map[schema.SessionKey]schema.ThreadID, len(s.state.Threads))
		for key, id := range s.state.Threads {
			state.Threads[key] = id
		}
	}
	return state
}

func (s *Store) load() PanelState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) && s.log != nil {
			s.log.Warn("panel state load failed", "err", err)
		}
		return PanelState{}
	}
	var state PanelState
	if err := json.Unmarshal(data, &state); err != nil {
		if s.log != nil {
			s.log.Warn("panel state load failed", "err", err)
		}
		return PanelState{}
	}
	if s.log != nil {
		s.log.Debug("panel state load ok", "threads", len(state.Threads))
	}
	return state
}

func (s *Store) save(state PanelState) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		if s.log != nil {
			s.log.Warn("panel state save failed", "err", err)
		}
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "panel-*.json")
	if err != nil {
		if s.log != nil {
			s.log.Warn("panel state save failed", "err", err)
		}
		return
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("panel state save failed", "err", err)
		}
		return
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("panel state save failed", "err", err)
		}
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("panel state save failed", "err", err)
		}
		return
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("panel state save failed", "err", err)
		}
		return
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		if s.log != nil {
			s.log.Warn("panel state save failed", "err", err)
		}
		return
	}
	if s.log != nil {
		s.log.Trace("panel state save ok", "threads", len(state.Threads))
	}
}
