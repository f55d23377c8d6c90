package schema

import "strings"

// SessionKey identifies one conversation, derived from the notebook path.
// Two tabs showing the same notebook share one key.
type SessionKey string

// ThreadID is the backend-assigned identifier for the underlying
// assistant conversation. Distinct from the session key and persisted
// separately so a reload can resume the same thread.
type ThreadID string

// RunID identifies one request/response execution cycle. Assigned by the
// backend once a run starts.
type RunID string

// Role tags a chat text entry.
type Role string

const (
	// RoleUser marks text sent by the user.
	RoleUser Role = "user"
	// RoleAssistant marks assistant output.
	RoleAssistant Role = "assistant"
	// RoleSystem marks panel-generated notices.
	RoleSystem Role = "system"
)

// ValidRole reports whether role is one of the three known roles.
func ValidRole(role Role) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// RunState is the per-conversation execution state.
type RunState string

const (
	// RunReady indicates no run is in flight.
	RunReady RunState = "ready"
	// RunRunning indicates a run is in flight.
	RunRunning RunState = "running"
)

// SessionKeyForNotebook derives the stable session key for a notebook
// path. An empty path denotes "no document" and maps to the empty key.
func SessionKeyForNotebook(path string) SessionKey {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	return SessionKey("notebook:" + path)
}

// PairingInfo reports whether the notebook's required companion file
// exists. Sending is blocked while OK is explicitly false.
type PairingInfo struct {
	OK      *bool  `json:"ok,omitempty"`
	Path    string `json:"path,omitempty"`
	OSPath  string `json:"osPath,omitempty"`
	Message string `json:"message,omitempty"`
}

// Blocked reports whether pairing explicitly forbids sending.
func (p PairingInfo) Blocked() bool {
	return p.OK != nil && !*p.OK
}

// HistoryTurn is one restored transcript turn carried on a status frame.
type HistoryTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ModelOption describes one selectable model advertised by the CLI.
type ModelOption struct {
	Model                  string   `json:"model"`
	DisplayName            string   `json:"displayName,omitempty"`
	ReasoningEfforts       []string `json:"reasoningEfforts,omitempty"`
	DefaultReasoningEffort string   `json:"defaultReasoningEffort,omitempty"`
}

// Image is one attachment sent with a prompt.
type Image struct {
	Name    string `json:"name"`
	DataURL string `json:"dataUrl"`
}
