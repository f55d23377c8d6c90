package schema

import (
	"encoding/json"
	"time"
)

// SessionSnapshot is a transport-friendly view of one conversation,
// rendered by the UI.
type SessionSnapshot struct {
	Key          SessionKey  `json:"key"`
	NotebookPath string      `json:"notebookPath"`
	ThreadID     ThreadID    `json:"threadId,omitempty"`
	RunState     RunState    `json:"runState"`
	ActiveRunID  RunID       `json:"activeRunId,omitempty"`
	RunStartedAt *time.Time  `json:"runStartedAt,omitempty"`
	Progress     string      `json:"progress,omitempty"`
	ProgressKind string      `json:"progressKind,omitempty"`
	Pairing      PairingInfo `json:"pairing"`
	Entries      []ChatEntry `json:"entries"`
}

// CLIDefaultsSnapshot is the process-wide cache of effective CLI
// defaults. Partial updates preserve previously known values.
type CLIDefaultsSnapshot struct {
	Model           string        `json:"model,omitempty"`
	ReasoningEffort string        `json:"reasoningEffort,omitempty"`
	AvailableModels []ModelOption `json:"availableModels,omitempty"`
}

// RateLimitsSnapshot is the process-wide cache of the latest rate-limit
// report.
type RateLimitsSnapshot struct {
	Snapshot  json.RawMessage `json:"snapshot,omitempty"`
	FetchedAt time.Time       `json:"fetchedAt"`
}
