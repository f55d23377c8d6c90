package tabsync

import (
	"time"

	"github.com/google/uuid"
	"pkt.systems/nbmux/schema"
)

// Record announces "a new thread was started for conversation X" to
// sibling tabs through the shared durable store. Tabs ignore records
// carrying their own origin id; every other tab that can resolve the
// session key adopts the announced thread instead of diverging.
type Record struct {
	SessionKey   schema.SessionKey `json:"sessionKey"`
	NotebookPath string            `json:"notebookPath"`
	ThreadID     schema.ThreadID   `json:"threadId"`
	OriginID     string            `json:"originId"`
	EventID      string            `json:"eventId"`
	IssuedAt     time.Time         `json:"issuedAt"`
}

// NewRecord constructs an announce record with a fresh event id.
func NewRecord(key schema.SessionKey, notebookPath string, threadID schema.ThreadID, originID string) Record {
	return Record{
		SessionKey:   key,
		NotebookPath: notebookPath,
		ThreadID:     threadID,
		OriginID:     originID,
		EventID:      uuid.NewString(),
		IssuedAt:     time.Now().UTC(),
	}
}

// NewOriginID mints a tab-unique origin identifier.
func NewOriginID() string {
	return uuid.NewString()
}
