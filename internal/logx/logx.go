package logx

import (
	"context"

	"pkt.systems/nbmux/schema"
	"pkt.systems/pslog"
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSession annotates the logger with the conversation key.
func WithSession(log pslog.Logger, key schema.SessionKey) pslog.Logger {
	if key != "" {
		log = log.With("session", key)
	}
	return log
}

// WithRun annotates the logger with conversation and run identifiers.
func WithRun(log pslog.Logger, key schema.SessionKey, runID schema.RunID) pslog.Logger {
	log = WithSession(log, key)
	if runID != "" {
		log = log.With("run", runID)
	}
	return log
}

// WithThread annotates the logger with a thread id when available.
func WithThread(log pslog.Logger, threadID schema.ThreadID) pslog.Logger {
	if threadID != "" {
		log = log.With("thread", threadID)
	}
	return log
}
