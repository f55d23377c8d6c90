package tabsync

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"
)

const announceFile = "announce.json"

// Store writes announce records to the shared durable store and watches
// it for records written by sibling tabs in other processes. Same as the
// panel state store, persistence faults degrade silently.
type Store struct {
	dir     string
	path    string
	log     pslog.Logger
	bus     *Bus
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	seen    map[string]struct{}
	closed  bool
	closeCh chan struct{}
}

// NewStore constructs a store rooted at the shared state directory and
// begins watching it. Records observed on disk are republished on bus.
func NewStore(dir string, bus *Bus, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if bus == nil {
		return nil, errors.New("bus is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	s := &Store{
		dir:     dir,
		path:    filepath.Join(dir, announceFile),
		log:     logger,
		bus:     bus,
		watcher: watcher,
		seen:    make(map[string]struct{}),
		closeCh: make(chan struct{}),
	}
	go s.watch()
	return s, nil
}

// Announce writes the record to the shared store. The write itself
// triggers the sibling watchers; the local bus publish covers tabs in
// this process, where the fsnotify event may coalesce away.
func (s *Store) Announce(rec Record) {
	if s == nil {
		return
	}
	s.markSeen(rec.EventID)
	data, err := json.Marshal(rec)
	if err != nil {
		if s.log != nil {
			s.log.Warn("tabsync announce failed", "err", err)
		}
		return
	}
	tmp, err := os.CreateTemp(s.dir, "announce-*.json")
	if err != nil {
		if s.log != nil {
			s.log.Warn("tabsync announce failed", "err", err)
		}
		s.bus.Publish(rec)
		return
	}
	_, werr := tmp.Write(data)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), s.path)
	}
	if werr != nil {
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("tabsync announce failed", "err", werr)
		}
	} else if s.log != nil {
		s.log.Debug("tabsync announce ok", "session", rec.SessionKey, "thread", rec.ThreadID, "event", rec.EventID)
	}
	s.bus.Publish(rec)
}

// Close stops the watcher.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closeCh)
	s.mu.Unlock()
	return s.watcher.Close()
}

func (s *Store) watch() {
	for {
		select {
		case <-s.closeCh:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != announceFile {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.deliver()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if s.log != nil {
				s.log.Warn("tabsync watch error", "err", err)
			}
		}
	}
}

func (s *Store) deliver() {
	rec, ok := s.loadRecord()
	if !ok {
		return
	}
	if !s.markSeen(rec.EventID) {
		return
	}
	if s.log != nil {
		s.log.Debug("tabsync record observed", "session", rec.SessionKey, "thread", rec.ThreadID, "event", rec.EventID)
	}
	s.bus.Publish(rec)
}

func (s *Store) loadRecord() (Record, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) && s.log != nil {
			s.log.Warn("tabsync record load failed", "err", err)
		}
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		if s.log != nil {
			s.log.Warn("tabsync record load failed", "err", err)
		}
		return Record{}, false
	}
	if rec.EventID == "" || rec.SessionKey == "" {
		return Record{}, false
	}
	return rec, true
}

// markSeen records an event id and reports whether it was new. The set
// is bounded; ids only need to survive long enough to absorb coalesced
// fsnotify deliveries.
func (s *Store) markSeen(eventID string) bool {
	if eventID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[eventID]; dup {
		return false
	}
	if len(s.seen) > 1024 {
		s.seen = make(map[string]struct{})
	}
	s.seen[eventID] = struct{}{}
	return true
}
