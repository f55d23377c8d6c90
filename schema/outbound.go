package schema

// ProtocolVersion is the wire protocol version stamped on every
// outbound message.
const ProtocolVersion = "1.0.0"

// Outbound is a client→backend message. Constructors below stamp the
// type discriminator and protocol version.
type Outbound struct {
	Kind            string `json:"type"`
	ProtocolVersion string `json:"protocolVersion"`

	SessionID         ThreadID   `json:"sessionId,omitempty"`
	SessionContextKey SessionKey `json:"sessionContextKey,omitempty"`
	NotebookPath      string     `json:"notebookPath,omitempty"`
	RunID             RunID      `json:"runId,omitempty"`

	ForceNewThread bool   `json:"forceNewThread,omitempty"`
	CommandPath    string `json:"commandPath,omitempty"`

	Content             string  `json:"content,omitempty"`
	Model               string  `json:"model,omitempty"`
	ReasoningEffort     string  `json:"reasoningEffort,omitempty"`
	Sandbox             string  `json:"sandbox,omitempty"`
	Selection           string  `json:"selection,omitempty"`
	CellOutput          string  `json:"cellOutput,omitempty"`
	Images              []Image `json:"images,omitempty"`
	SelectionTruncated  bool    `json:"selectionTruncated,omitempty"`
	CellOutputTruncated bool    `json:"cellOutputTruncated,omitempty"`
}

func newOutbound(kind string) Outbound {
	return Outbound{Kind: kind, ProtocolVersion: ProtocolVersion}
}

// StartSessionMessage announces a conversation to the backend, optionally
// forcing a fresh thread instead of resuming the persisted one.
func StartSessionMessage(threadID ThreadID, notebookPath string, key SessionKey, forceNewThread bool, commandPath string) Outbound {
	msg := newOutbound("start_session")
	msg.SessionID = threadID
	msg.NotebookPath = notebookPath
	msg.SessionContextKey = key
	msg.ForceNewThread = forceNewThread
	msg.CommandPath = commandPath
	return msg
}

// SendOptions carries the optional fields of a send message.
type SendOptions struct {
	CommandPath         string
	Model               string
	ReasoningEffort     string
	Sandbox             string
	Selection           string
	SelectionTruncated  bool
	CellOutput          string
	CellOutputTruncated bool
	Images              []Image
}

// SendMessage submits a prompt on a conversation.
func SendMessage(threadID ThreadID, key SessionKey, notebookPath, content string, opts SendOptions) Outbound {
	msg := newOutbound("send")
	msg.SessionID = threadID
	msg.SessionContextKey = key
	msg.NotebookPath = notebookPath
	msg.Content = content
	msg.CommandPath = opts.CommandPath
	msg.Model = opts.Model
	msg.ReasoningEffort = opts.ReasoningEffort
	msg.Sandbox = opts.Sandbox
	msg.Selection = opts.Selection
	msg.SelectionTruncated = opts.SelectionTruncated
	msg.CellOutput = opts.CellOutput
	msg.CellOutputTruncated = opts.CellOutputTruncated
	msg.Images = opts.Images
	return msg
}

// CancelMessage requests cancellation of an in-flight run. Advisory: the
// conversation stays running until the backend confirms with error/done.
func CancelMessage(runID RunID) Outbound {
	msg := newOutbound("cancel")
	msg.RunID = runID
	return msg
}

// DeleteSessionMessage asks the backend to delete one stored thread.
func DeleteSessionMessage(threadID ThreadID) Outbound {
	msg := newOutbound("delete_session")
	msg.SessionID = threadID
	return msg
}

// DeleteAllSessionsMessage asks the backend to delete every stored thread.
func DeleteAllSessionsMessage() Outbound {
	return newOutbound("delete_all_sessions")
}

// EndSessionMessage tells the backend a document closed and its thread
// can be released.
func EndSessionMessage(threadID ThreadID) Outbound {
	msg := newOutbound("end_session")
	msg.SessionID = threadID
	return msg
}

// RefreshRateLimitsMessage requests a fresh rate-limit snapshot.
func RefreshRateLimitsMessage() Outbound {
	return newOutbound("refresh_rate_limits")
}
