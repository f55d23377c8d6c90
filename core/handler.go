package core

import (
	"errors"
	"fmt"
	"time"

	"pkt.systems/nbmux/internal/logx"
	"pkt.systems/nbmux/internal/threadstore"
	"pkt.systems/nbmux/schema"
)

// HandleFrame processes one backend frame. Frames that are not JSON at
// all surface as an "Invalid message" notice in the focused
// conversation; structurally valid frames with missing required fields
// are dropped with a log line, never partially applied.
func (p *Panel) HandleFrame(frame []byte) {
	msg, err := schema.ParseInbound(frame)
	if err != nil {
		if errors.Is(err, schema.ErrInvalidFrame) {
			p.log.Warn("panel frame invalid", "err", err)
			if focused := p.reg.Focused(); focused != "" {
				p.reg.AppendText(focused, schema.RoleSystem, "Invalid message: "+string(frame))
				p.emit(focused)
			}
			return
		}
		p.log.Warn("panel frame dropped", "err", err)
		return
	}
	p.log.Trace("panel frame received", "kind", msg.Kind, "run", msg.RunID)

	switch msg.Kind {
	case schema.KindCLIDefaults:
		p.caches.MergeDefaults(msg)
	case schema.KindRateLimits:
		p.caches.SetRateLimits(msg.Snapshot)
	case schema.KindDeleteAll:
		p.handleDeleteAllAck(msg)
	case schema.KindStatus:
		p.handleStatus(msg)
	case schema.KindOutput:
		p.handleOutput(msg)
	case schema.KindEvent:
		p.handleEvent(msg)
	case schema.KindDone:
		p.handleDone(msg)
	case schema.KindError:
		p.handleError(msg)
	}
}

// resolveConversation routes the frame and guarantees its conversation
// exists. Frames may legitimately reference keys this panel never
// opened (backend restore, sibling tabs); those conversations are
// created lazily, resuming any persisted thread binding.
func (p *Panel) resolveConversation(msg *schema.Inbound) (schema.SessionKey, bool) {
	key, ok := p.reg.Resolve(msg)
	if !ok {
		return "", false
	}
	p.reg.Ensure(key, msg.NotebookPath)
	if thread := p.prefs.Thread(key); thread != "" && p.reg.Thread(key) == "" {
		p.reg.SetThread(key, thread)
	}
	return key, true
}

func (p *Panel) handleStatus(msg *schema.Inbound) {
	key, ok := p.resolveConversation(msg)
	if !ok {
		p.log.Debug("panel status unroutable", "run", msg.RunID, "path", msg.NotebookPath)
		return
	}
	if pairing := msg.Pairing(); pairing != nil {
		p.reg.SetPairing(key, *pairing)
	}
	if notice := schema.CoerceString(msg.SessionResolutionNotice); notice != "" {
		p.reg.AppendText(key, schema.RoleSystem, notice)
	}
	if msg.ThreadID != "" && p.reg.Thread(key) == "" {
		p.reg.SetThread(key, msg.ThreadID)
		p.prefs.PutThread(key, msg.ThreadID)
	}
	p.reg.Hydrate(key, msg.History)

	switch msg.State {
	case schema.RunRunning:
		p.reg.SetRunState(key, schema.RunRunning, msg.RunID)
	case schema.RunReady:
		// A ready with no run id cannot be matched to the run it ends;
		// the transition is ignored and the next attributable frame
		// settles the state.
		if msg.RunID == "" {
			if p.reg.RunState(key) == schema.RunRunning {
				p.log.Debug("panel ready without run id ignored", "session", key)
			}
			p.emit(key)
			return
		}
		p.reg.SetRunState(key, schema.RunReady, msg.RunID)
		p.reg.UnbindRun(msg.RunID)
	}
	p.emit(key)
}

func (p *Panel) handleOutput(msg *schema.Inbound) {
	key, ok := p.resolveConversation(msg)
	if !ok {
		p.log.Debug("panel output unroutable", "run", msg.RunID)
		return
	}
	p.reg.AppendText(key, schema.NormalizeRole(msg.Role), msg.Text)
	p.emit(key)
}

func (p *Panel) handleEvent(msg *schema.Inbound) {
	key, ok := p.resolveConversation(msg)
	if !ok {
		p.log.Debug("panel event unroutable", "run", msg.RunID)
		return
	}
	item, ok := SummarizeEvent(msg.Payload)
	if !ok {
		return
	}
	if item.Category == schema.ActivityReasoning {
		// Reasoning headlines update the progress line only; surfacing
		// every one as a row would swamp the transcript.
		p.reg.SetProgress(key, item.Title, string(schema.ActivityReasoning))
		p.emit(key)
		return
	}
	p.reg.AppendActivity(key, item)
	progress := item.Title
	if item.Detail != "" {
		progress = schema.FirstLine(item.Detail)
	}
	p.reg.SetProgress(key, progress, string(item.Category))
	p.emit(key)
}

func (p *Panel) handleDone(msg *schema.Inbound) {
	key, ok := p.resolveConversation(msg)
	if !ok {
		p.log.Debug("panel done unroutable", "run", msg.RunID)
		return
	}
	var elapsed time.Duration
	if snap, ok := p.reg.Snapshot(key); ok && snap.RunStartedAt != nil {
		elapsed = now().Sub(*snap.RunStartedAt)
	}
	if msg.ExitCode != nil && *msg.ExitCode != 0 && !msg.Cancelled {
		p.reg.AppendText(key, schema.RoleSystem, fmt.Sprintf("Run failed (exit %d).", *msg.ExitCode))
	}
	if msg.FileChanged {
		if snap, ok := p.reg.Snapshot(key); ok && snap.NotebookPath != "" {
			p.effects.RefreshNotebook(snap.NotebookPath)
		}
	}
	p.maybeNotify(key, msg, elapsed)
	p.reg.FinishRun(key)
	p.reg.UnbindRun(msg.RunID)
	p.emit(key)
}

func (p *Panel) maybeNotify(key schema.SessionKey, msg *schema.Inbound, elapsed time.Duration) {
	state := p.prefs.State()
	if !notificationEligible(state.NotifyOnDone, p.effects.NotifyPermitted(), elapsed, state.NotifyMinSeconds) {
		return
	}
	snap, ok := p.reg.Snapshot(key)
	if !ok {
		return
	}
	p.effects.Notify(buildNotification(snap.NotebookPath, msg.ExitCode, msg.Cancelled, elapsed))
}

func (p *Panel) handleError(msg *schema.Inbound) {
	key, ok := p.resolveConversation(msg)
	if !ok {
		p.log.Debug("panel error unroutable", "run", msg.RunID)
		return
	}
	if pairing := msg.Pairing(); pairing != nil {
		p.reg.SetPairing(key, *pairing)
	}
	logx.WithRun(p.log, key, msg.RunID).Warn("panel backend error", "message", msg.Message)
	p.reg.AppendText(key, schema.RoleSystem, "Codex error: "+msg.Message)
	if suggested := schema.CoerceString(msg.SuggestedCommandPath); suggested != "" {
		if p.prefs.State().CommandPath == "" {
			p.prefs.Update(func(state *threadstore.PanelState) {
				state.CommandPath = suggested
			})
			p.reg.AppendText(key, schema.RoleSystem, "Using suggested command path: "+suggested)
		}
	}
	p.reg.FinishRun(key)
	p.reg.UnbindRun(msg.RunID)
	p.emit(key)
}

func (p *Panel) handleDeleteAllAck(msg *schema.Inbound) {
	ok := msg.OK != nil && *msg.OK
	p.prefs.Update(func(state *threadstore.PanelState) {
		state.DeleteAllPending = !ok
	})
	var notice string
	if ok {
		p.prefs.WriteThreads(nil)
		for _, snap := range p.reg.Sessions() {
			p.reg.SetThread(snap.Key, "")
		}
		notice = fmt.Sprintf("Deleted %d stored conversation(s).", msg.DeletedCount)
		if msg.FailedCount > 0 {
			notice = fmt.Sprintf("Deleted %d stored conversation(s), %d failed.", msg.DeletedCount, msg.FailedCount)
		}
	} else {
		notice = "Deleting stored conversations failed; will retry on reconnect."
	}
	if focused := p.reg.Focused(); focused != "" {
		p.reg.AppendText(focused, schema.RoleSystem, notice)
		p.emit(focused)
	}
	p.log.Info("panel delete all acknowledged", "ok", ok, "deleted", msg.DeletedCount, "failed", msg.FailedCount)
}
