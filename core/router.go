package core

import "pkt.systems/nbmux/schema"

// Resolve maps an inbound frame to the conversation it belongs to. The
// priority chain, most specific first:
//
//  1. explicit sessionContextKey
//  2. run id already bound to a conversation
//  3. notebookPath, matching an existing conversation or deriving a key
//  4. run id again, in case step 3 recorded a new binding elsewhere
//  5. the focused conversation
//
// Frames resolved via path with a run id attached record the run binding
// opportunistically so step 2 catches the follow-up frames.
func (r *Registry) Resolve(msg *schema.Inbound) (schema.SessionKey, bool) {
	if msg.SessionContextKey != "" {
		r.recordRun(msg.RunID, msg.SessionContextKey)
		return msg.SessionContextKey, true
	}
	if msg.RunID != "" {
		if key, ok := r.SessionForRun(msg.RunID); ok {
			return key, true
		}
	}
	if msg.NotebookPath != "" {
		key, ok := r.SessionForPath(msg.NotebookPath)
		if !ok {
			key = schema.SessionKeyForNotebook(msg.NotebookPath)
		}
		if key != "" {
			r.recordRun(msg.RunID, key)
			return key, true
		}
	}
	if msg.RunID != "" {
		if key, ok := r.SessionForRun(msg.RunID); ok {
			return key, true
		}
	}
	if focused := r.Focused(); focused != "" {
		return focused, true
	}
	return "", false
}

func (r *Registry) recordRun(runID schema.RunID, key schema.SessionKey) {
	if runID == "" || key == "" {
		return
	}
	if _, bound := r.SessionForRun(runID); !bound {
		r.BindRun(runID, key)
	}
}
