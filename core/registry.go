package core

import (
	"context"
	"sync"
	"time"

	"pkt.systems/nbmux/schema"
	"pkt.systems/pslog"
)

// Registry owns every conversation in the process and the run→session
// mapping used to route backend frames. All mutation happens under one
// mutex; snapshots leave the lock before they reach the UI.
type Registry struct {
	log        pslog.Logger
	maxEntries int

	mu       sync.Mutex
	sessions map[schema.SessionKey]*session
	byPath   map[string]schema.SessionKey
	runIndex map[schema.RunID]schema.SessionKey
	focused  schema.SessionKey
}

var now = time.Now

// NewRegistry constructs a Registry. maxEntries caps each conversation's
// visible log; zero selects the default cap.
func NewRegistry(logger pslog.Logger, maxEntries int) *Registry {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if maxEntries <= 0 {
		maxEntries = schema.DefaultMaxEntries
	}
	return &Registry{
		log:        logger,
		maxEntries: maxEntries,
		sessions:   make(map[schema.SessionKey]*session),
		byPath:     make(map[string]schema.SessionKey),
		runIndex:   make(map[schema.RunID]schema.SessionKey),
	}
}

// Ensure returns the conversation for key, creating it when absent.
// Created conversations open with the intro notice.
func (r *Registry) Ensure(key schema.SessionKey, notebookPath string) schema.SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked(key, notebookPath).Snapshot()
}

func (r *Registry) ensureLocked(key schema.SessionKey, notebookPath string) *session {
	if s, ok := r.sessions[key]; ok {
		if notebookPath != "" && s.NotebookPath != notebookPath {
			if s.NotebookPath != "" {
				delete(r.byPath, s.NotebookPath)
			}
			s.NotebookPath = notebookPath
			r.byPath[notebookPath] = key
		}
		return s
	}
	s := newSession(key, notebookPath, r.maxEntries)
	r.sessions[key] = s
	if notebookPath != "" {
		r.byPath[notebookPath] = key
	}
	r.log.Debug("registry session created", "session", key, "path", notebookPath)
	return s
}

// Replace discards any existing conversation under key and installs a
// fresh one bound to threadID. Used for explicit new-thread actions and
// cross-tab convergence, where the old transcript must not survive.
func (r *Registry) Replace(key schema.SessionKey, notebookPath string, threadID schema.ThreadID) schema.SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[key]; ok {
		r.unbindRunsLocked(old)
		if old.NotebookPath != "" {
			delete(r.byPath, old.NotebookPath)
		}
		delete(r.sessions, key)
	}
	s := newSession(key, notebookPath, r.maxEntries)
	s.ThreadID = threadID
	r.sessions[key] = s
	if notebookPath != "" {
		r.byPath[notebookPath] = key
	}
	r.log.Debug("registry session replaced", "session", key, "thread", threadID)
	return s.Snapshot()
}

// Remove drops a conversation and its run mappings. Returns the thread
// it was bound to, if any.
func (r *Registry) Remove(key schema.SessionKey) (schema.ThreadID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if !ok {
		return "", false
	}
	r.unbindRunsLocked(s)
	if s.NotebookPath != "" {
		delete(r.byPath, s.NotebookPath)
	}
	delete(r.sessions, key)
	if r.focused == key {
		r.focused = ""
	}
	r.log.Debug("registry session removed", "session", key)
	return s.ThreadID, true
}

// SetFocused records which conversation currently has the user's focus.
func (r *Registry) SetFocused(key schema.SessionKey) {
	r.mu.Lock()
	r.focused = key
	r.mu.Unlock()
}

// Focused returns the focused conversation key, which may be empty.
func (r *Registry) Focused() schema.SessionKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.focused
}

// Has reports whether a conversation exists for key.
func (r *Registry) Has(key schema.SessionKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[key]
	return ok
}

// SetThread binds the backend thread id to the conversation.
func (r *Registry) SetThread(key schema.SessionKey, threadID schema.ThreadID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		s.ThreadID = threadID
	}
}

// Thread returns the conversation's backend thread id.
func (r *Registry) Thread(key schema.SessionKey) schema.ThreadID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		return s.ThreadID
	}
	return ""
}

// BindRun records that runID belongs to the conversation so later frames
// carrying only the run id still route correctly.
func (r *Registry) BindRun(runID schema.RunID, key schema.SessionKey) {
	if runID == "" {
		return
	}
	r.mu.Lock()
	r.runIndex[runID] = key
	r.mu.Unlock()
}

// SessionForRun resolves a run id to its conversation key.
func (r *Registry) SessionForRun(runID schema.RunID) (schema.SessionKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.runIndex[runID]
	return key, ok
}

// SessionForPath resolves a notebook path to an existing conversation key.
func (r *Registry) SessionForPath(path string) (schema.SessionKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.byPath[path]
	return key, ok
}

// ClearRunIndex drops every run→session mapping. Called on disconnect:
// run ids do not survive a backend restart.
func (r *Registry) ClearRunIndex() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runIndex) == 0 {
		return
	}
	r.runIndex = make(map[schema.RunID]schema.SessionKey)
	for _, s := range r.sessions {
		s.ActiveRunID = ""
	}
	r.log.Debug("registry run index cleared")
}

// SetRunState applies a state transition. Repeating the current state is
// a no-op apart from adopting a newly learned run id. A real transition
// to running stamps the start time; the matching transition back to
// ready appends the run divider and clears transient progress.
func (r *Registry) SetRunState(key schema.SessionKey, state schema.RunState, runID schema.RunID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if !ok {
		return
	}
	if state == s.RunState {
		if state == schema.RunRunning && runID != "" && s.ActiveRunID == "" {
			s.ActiveRunID = runID
			r.runIndex[runID] = key
		}
		return
	}
	switch state {
	case schema.RunRunning:
		s.RunState = schema.RunRunning
		at := now()
		s.RunStartedAt = &at
		if runID != "" {
			s.ActiveRunID = runID
			r.runIndex[runID] = key
		}
		r.log.Debug("registry run started", "session", key, "run", runID)
	case schema.RunReady:
		r.finishRunLocked(s)
	}
}

// FinishRun forces the conversation back to ready regardless of which
// run id the trigger carried. Used for done and terminal error frames.
func (r *Registry) FinishRun(key schema.SessionKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok && s.RunState == schema.RunRunning {
		r.finishRunLocked(s)
	}
}

func (r *Registry) finishRunLocked(s *session) {
	s.RunState = schema.RunReady
	if s.ActiveRunID != "" {
		delete(r.runIndex, s.ActiveRunID)
		s.ActiveRunID = ""
	}
	if s.RunStartedAt != nil {
		elapsed := now().Sub(*s.RunStartedAt)
		s.RunStartedAt = nil
		s.append(schema.DividerEntry(elapsed.Milliseconds()))
		s.Progress = ""
		s.ProgressKind = ""
		r.log.Debug("registry run finished", "session", s.Key, "elapsed", elapsed)
	}
}

// UnbindRun removes one run→session mapping.
func (r *Registry) UnbindRun(runID schema.RunID) {
	if runID == "" {
		return
	}
	r.mu.Lock()
	delete(r.runIndex, runID)
	r.mu.Unlock()
}

// SetProgress updates the conversation's transient progress line. Equal
// values short-circuit so repeated deltas do not churn the UI.
func (r *Registry) SetProgress(key schema.SessionKey, text, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if !ok {
		return
	}
	if s.Progress == text && s.ProgressKind == kind {
		return
	}
	s.Progress = text
	s.ProgressKind = kind
}

// SetPairing records the notebook's pairing report.
func (r *Registry) SetPairing(key schema.SessionKey, pairing schema.PairingInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		s.Pairing = pairing
	}
}

// Pairing returns the conversation's pairing report.
func (r *Registry) Pairing(key schema.SessionKey) schema.PairingInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		return s.Pairing
	}
	return schema.PairingInfo{}
}

// AppendText appends a text entry to the conversation.
func (r *Registry) AppendText(key schema.SessionKey, role schema.Role, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		s.append(schema.TextEntry(role, text))
	}
}

// AppendUserPrompt appends the user's turn, recording how many images
// rode along with it.
func (r *Registry) AppendUserPrompt(key schema.SessionKey, text string, attachments int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		entry := schema.TextEntry(schema.RoleUser, text)
		entry.AttachmentCount = attachments
		s.append(entry)
	}
}

// Hydrate appends restored history turns, unless the transcript already
// holds conversation turns of its own.
func (r *Registry) Hydrate(key schema.SessionKey, history []schema.HistoryTurn) {
	if len(history) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if !ok || s.hasConversationTurns() {
		return
	}
	for _, turn := range history {
		text := schema.CoerceString(turn.Content)
		if text == "" {
			continue
		}
		s.append(schema.TextEntry(schema.NormalizeRole(turn.Role), text))
	}
	r.log.Debug("registry history hydrated", "session", key, "turns", len(history))
}

// RunState returns the conversation's execution state.
func (r *Registry) RunState(key schema.SessionKey) schema.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		return s.RunState
	}
	return schema.RunReady
}

// ActiveRun returns the conversation's in-flight run id, if any.
func (r *Registry) ActiveRun(key schema.SessionKey) schema.RunID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		return s.ActiveRunID
	}
	return ""
}

// Snapshot returns a copy of one conversation.
func (r *Registry) Snapshot(key schema.SessionKey) (schema.SessionSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		return s.Snapshot(), true
	}
	return schema.SessionSnapshot{}, false
}

// Sessions returns a snapshot of every conversation.
func (r *Registry) Sessions() []schema.SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schema.SessionSnapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

func (r *Registry) unbindRunsLocked(s *session) {
	for runID, key := range r.runIndex {
		if key == s.Key {
			delete(r.runIndex, runID)
		}
	}
	s.ActiveRunID = ""
}
