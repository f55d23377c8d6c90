package core

import "pkt.systems/nbmux/schema"

// Sender writes one message to the backend connection. Satisfied by the
// connection manager; tests substitute a recording fake.
type Sender interface {
	Send(msg schema.Outbound) error
}

// Effects are the host-environment side effects a conversation can
// trigger. Implemented by the embedding frontend; tests substitute a
// recording fake.
type Effects interface {
	// RefreshNotebook reloads the document from disk after the backend
	// reports it changed the file.
	RefreshNotebook(path string)
	// Notify raises a desktop notification.
	Notify(n Notification)
	// NotifyPermitted reports whether the host granted notification
	// permission.
	NotifyPermitted() bool
}

// NoopEffects discards every side effect.
type NoopEffects struct{}

func (NoopEffects) RefreshNotebook(string) {}
func (NoopEffects) Notify(Notification)    {}
func (NoopEffects) NotifyPermitted() bool  { return false }

// EventSink receives a fresh snapshot every time a conversation changes.
// Called synchronously from the frame handler; implementations must not
// block.
type EventSink interface {
	SessionUpdated(snap schema.SessionSnapshot)
}

// NoopSink discards session updates.
type NoopSink struct{}

func (NoopSink) SessionUpdated(schema.SessionSnapshot) {}
