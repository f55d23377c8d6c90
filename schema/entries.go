package schema

// EntryKind discriminates the chat log entry variants.
type EntryKind string

const (
	// EntryText is a plain text turn from a user, the assistant, or the panel.
	EntryText EntryKind = "text"
	// EntryRunDivider marks the end of a run and carries its elapsed time.
	EntryRunDivider EntryKind = "run-divider"
	// EntryActivity is one surfaced lifecycle/tool event.
	EntryActivity EntryKind = "activity"
)

// ActivityCategory classifies an activity item.
type ActivityCategory string

const (
	// ActivityReasoning covers model reasoning events.
	ActivityReasoning ActivityCategory = "reasoning"
	// ActivityCommand covers command executions.
	ActivityCommand ActivityCategory = "command"
	// ActivityFile covers file changes.
	ActivityFile ActivityCategory = "file"
	// ActivityTool covers tool calls.
	ActivityTool ActivityCategory = "tool"
	// ActivityEvent covers everything else worth surfacing.
	ActivityEvent ActivityCategory = "event"
)

// ActivityPhase is the started/completed phase of an activity item.
type ActivityPhase string

const (
	// PhaseStarted marks an operation that is still in flight.
	PhaseStarted ActivityPhase = "started"
	// PhaseCompleted marks a finished operation.
	PhaseCompleted ActivityPhase = "completed"
	// PhaseNone marks a one-shot event with no paired completion.
	PhaseNone ActivityPhase = ""
)

// ActivityItem is one lifecycle/tool event surfaced to the user.
type ActivityItem struct {
	Category ActivityCategory `json:"category"`
	Phase    ActivityPhase    `json:"phase"`
	Title    string           `json:"title"`
	Detail   string           `json:"detail,omitempty"`
	Raw      string           `json:"raw,omitempty"`
}

// ChatEntry is one visible log entry. Kind selects which fields are
// meaningful: EntryText uses Role/Text/AttachmentCount, EntryRunDivider
// uses ElapsedMS, EntryActivity uses Activity.
type ChatEntry struct {
	Kind            EntryKind     `json:"kind"`
	Role            Role          `json:"role,omitempty"`
	Text            string        `json:"text,omitempty"`
	AttachmentCount int           `json:"attachmentCount,omitempty"`
	ElapsedMS       int64         `json:"elapsedMs,omitempty"`
	Activity        *ActivityItem `json:"activity,omitempty"`
}

// TextEntry constructs a text entry.
func TextEntry(role Role, text string) ChatEntry {
	return ChatEntry{Kind: EntryText, Role: role, Text: text}
}

// DividerEntry constructs a run divider carrying the run's elapsed time.
func DividerEntry(elapsedMS int64) ChatEntry {
	return ChatEntry{Kind: EntryRunDivider, ElapsedMS: elapsedMS}
}

// ActivityEntry constructs an activity entry.
func ActivityEntry(item ActivityItem) ChatEntry {
	copied := item
	return ChatEntry{Kind: EntryActivity, Activity: &copied}
}
