package schema

import (
	"encoding/json"
	"fmt"
)

// InboundKind is the type discriminator on backend→client frames.
type InboundKind string

const (
	// KindCLIDefaults carries effective CLI defaults for the UI.
	KindCLIDefaults InboundKind = "cli_defaults"
	// KindRateLimits carries a rate-limit snapshot.
	KindRateLimits InboundKind = "rate_limits"
	// KindDeleteAll acknowledges a delete_all_sessions request.
	KindDeleteAll InboundKind = "delete_all_sessions"
	// KindStatus reports conversation execution state.
	KindStatus InboundKind = "status"
	// KindOutput carries assistant (or other role) text.
	KindOutput InboundKind = "output"
	// KindEvent carries a raw lifecycle/tool event payload.
	KindEvent InboundKind = "event"
	// KindDone reports run completion.
	KindDone InboundKind = "done"
	// KindError reports a backend fault.
	KindError InboundKind = "error"
)

// Inbound is the closed union of backend→client messages. Kind selects
// which fields are meaningful; ParseInbound guarantees the required
// fields for the declared kind are present.
type Inbound struct {
	Kind            InboundKind `json:"type"`
	ProtocolVersion string      `json:"protocolVersion,omitempty"`

	// Routing context. Any inbound message may carry these.
	RunID             RunID      `json:"runId,omitempty"`
	ThreadID          ThreadID   `json:"sessionId,omitempty"`
	SessionContextKey SessionKey `json:"sessionContextKey,omitempty"`
	NotebookPath      string     `json:"notebookPath,omitempty"`

	// status
	State                   RunState      `json:"state,omitempty"`
	History                 []HistoryTurn `json:"history,omitempty"`
	SessionResolutionNotice string        `json:"sessionResolutionNotice,omitempty"`

	// status / done / error pairing report
	PairedOK      *bool  `json:"pairedOk,omitempty"`
	PairedPath    string `json:"pairedPath,omitempty"`
	PairedOSPath  string `json:"pairedOsPath,omitempty"`
	PairedMessage string `json:"pairedMessage,omitempty"`

	// output
	Role Role   `json:"role,omitempty"`
	Text string `json:"text,omitempty"`

	// event
	Payload json.RawMessage `json:"payload,omitempty"`

	// done
	ExitCode    *int `json:"exitCode,omitempty"`
	Cancelled   bool `json:"cancelled,omitempty"`
	FileChanged bool `json:"fileChanged,omitempty"`

	// error
	Message              string `json:"message,omitempty"`
	SuggestedCommandPath string `json:"suggestedCommandPath,omitempty"`

	// delete_all_sessions
	OK           *bool `json:"ok,omitempty"`
	DeletedCount int   `json:"deletedCount,omitempty"`
	FailedCount  int   `json:"failedCount,omitempty"`

	// cli_defaults; nil means the field was absent and must not
	// overwrite the cached value.
	Model           *string       `json:"model,omitempty"`
	ReasoningEffort *string       `json:"reasoningEffort,omitempty"`
	AvailableModels []ModelOption `json:"availableModels,omitempty"`

	// rate_limits
	Snapshot json.RawMessage `json:"snapshot,omitempty"`

	// Raw preserves the frame as delivered.
	Raw json.RawMessage `json:"-"`
}

// Pairing extracts the pairing report carried on the message, if any.
func (m *Inbound) Pairing() *PairingInfo {
	if m.PairedOK == nil && m.PairedPath == "" && m.PairedOSPath == "" && m.PairedMessage == "" {
		return nil
	}
	return &PairingInfo{
		OK:      m.PairedOK,
		Path:    m.PairedPath,
		OSPath:  m.PairedOSPath,
		Message: m.PairedMessage,
	}
}

// ParseInbound parses a wire frame into the closed inbound union. It is
// total over arbitrary input: any frame that is not a JSON object, whose
// type is unknown, or whose required fields are missing or mistyped
// yields a nil message and an error, never a partially trusted value.
func ParseInbound(raw []byte) (*Inbound, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	msg.Raw = append(json.RawMessage(nil), raw...)
	if err := validateInbound(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func validateInbound(msg *Inbound) error {
	switch msg.Kind {
	case KindCLIDefaults, KindRateLimits:
		return nil
	case KindDeleteAll:
		if msg.OK == nil {
			return fmt.Errorf("%w: delete_all_sessions.ok", ErrMissingField)
		}
		return nil
	case KindStatus:
		if msg.State != RunReady && msg.State != RunRunning {
			return fmt.Errorf("%w: status.state", ErrMissingField)
		}
		return nil
	case KindOutput:
		if msg.RunID == "" {
			return fmt.Errorf("%w: output.runId", ErrMissingField)
		}
		if msg.Text == "" {
			return fmt.Errorf("%w: output.text", ErrMissingField)
		}
		return nil
	case KindEvent:
		if msg.RunID == "" {
			return fmt.Errorf("%w: event.runId", ErrMissingField)
		}
		if len(msg.Payload) == 0 {
			return fmt.Errorf("%w: event.payload", ErrMissingField)
		}
		return nil
	case KindDone:
		if msg.RunID == "" {
			return fmt.Errorf("%w: done.runId", ErrMissingField)
		}
		return nil
	case KindError:
		if msg.Message == "" {
			return fmt.Errorf("%w: error.message", ErrMissingField)
		}
		return nil
	case "":
		return fmt.Errorf("%w: type", ErrMissingField)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Kind)
	}
}
