package core

import (
	"time"

	"pkt.systems/nbmux/schema"
)

// session tracks the state of a single conversation.
type session struct {
	Key          schema.SessionKey
	NotebookPath string
	ThreadID     schema.ThreadID
	RunState     schema.RunState
	ActiveRunID  schema.RunID
	RunStartedAt *time.Time
	Progress     string
	ProgressKind string
	Pairing      schema.PairingInfo
	entries      []schema.ChatEntry
	maxEntries   int
}

const introText = "New conversation. Ask Codex about this notebook."

func newSession(key schema.SessionKey, notebookPath string, maxEntries int) *session {
	if maxEntries <= 0 {
		maxEntries = schema.DefaultMaxEntries
	}
	return &session{
		Key:          key,
		NotebookPath: notebookPath,
		RunState:     schema.RunReady,
		entries:      []schema.ChatEntry{schema.TextEntry(schema.RoleSystem, introText)},
		maxEntries:   maxEntries,
	}
}

// append adds an entry and evicts the oldest entries past the cap.
func (s *session) append(entry schema.ChatEntry) {
	s.entries = append(s.entries, entry)
	if s.maxEntries > 0 && len(s.entries) > s.maxEntries {
		trim := len(s.entries) - s.maxEntries
		s.entries = append([]schema.ChatEntry(nil), s.entries[trim:]...)
	}
}

// hasConversationTurns reports whether any user or assistant text entry
// exists. Restored history must not be appended onto a transcript that
// already has turns.
func (s *session) hasConversationTurns() bool {
	for _, entry := range s.entries {
		if entry.Kind != schema.EntryText {
			continue
		}
		if entry.Role == schema.RoleUser || entry.Role == schema.RoleAssistant {
			return true
		}
	}
	return false
}

// Snapshot returns a transport-friendly view of the conversation.
func (s *session) Snapshot() schema.SessionSnapshot {
	entries := make([]schema.ChatEntry, len(s.entries))
	copy(entries, s.entries)
	var startedAt *time.Time
	if s.RunStartedAt != nil {
		at := *s.RunStartedAt
		startedAt = &at
	}
	return schema.SessionSnapshot{
		Key:          s.Key,
		NotebookPath: s.NotebookPath,
		ThreadID:     s.ThreadID,
		RunState:     s.RunState,
		ActiveRunID:  s.ActiveRunID,
		RunStartedAt: startedAt,
		Progress:     s.Progress,
		ProgressKind: s.ProgressKind,
		Pairing:      s.Pairing,
		Entries:      entries,
	}
}
