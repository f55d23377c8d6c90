package core

import (
	"context"

	"github.com/google/uuid"
	"pkt.systems/nbmux/internal/logx"
	"pkt.systems/nbmux/internal/tabsync"
	"pkt.systems/nbmux/internal/threadstore"
	"pkt.systems/nbmux/schema"
	"pkt.systems/pslog"
)

// Panel is the orchestration layer: it owns the conversation registry,
// the durable panel state, the cross-tab announce channel, and the
// backend connection, and exposes the operations the frontend calls.
type Panel struct {
	log      pslog.Logger
	reg      *Registry
	caches   *Caches
	prefs    *threadstore.Store
	sync     *tabsync.Store
	bus      *tabsync.Bus
	conn     Sender
	effects  Effects
	sink     EventSink
	originID string
}

// PanelOptions wires a Panel's collaborators.
type PanelOptions struct {
	Logger     pslog.Logger
	Prefs      *threadstore.Store
	Sync       *tabsync.Store
	Bus        *tabsync.Bus
	Conn       Sender
	Effects    Effects
	Sink       EventSink
	MaxEntries int
}

// NewPanel constructs a Panel with a fresh origin id.
func NewPanel(opts PanelOptions) *Panel {
	log := opts.Logger
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	effects := opts.Effects
	if effects == nil {
		effects = NoopEffects{}
	}
	sink := opts.Sink
	if sink == nil {
		sink = NoopSink{}
	}
	return &Panel{
		log:      log,
		reg:      NewRegistry(log, opts.MaxEntries),
		caches:   NewCaches(),
		prefs:    opts.Prefs,
		sync:     opts.Sync,
		bus:      opts.Bus,
		conn:     opts.Conn,
		effects:  effects,
		sink:     sink,
		originID: tabsync.NewOriginID(),
	}
}

// emit pushes a fresh snapshot of the conversation to the sink.
func (p *Panel) emit(key schema.SessionKey) {
	if snap, ok := p.reg.Snapshot(key); ok {
		p.sink.SessionUpdated(snap)
	}
}

// OriginID returns this tab's announce origin identifier.
func (p *Panel) OriginID() string { return p.originID }

// Registry exposes the conversation registry, mostly for rendering.
func (p *Panel) Registry() *Registry { return p.reg }

// Defaults returns the cached CLI defaults.
func (p *Panel) Defaults() schema.CLIDefaultsSnapshot { return p.caches.Defaults() }

// RateLimits returns the cached rate-limit snapshot.
func (p *Panel) RateLimits() schema.RateLimitsSnapshot { return p.caches.RateLimits() }

// Start consumes cross-tab announce records until ctx is cancelled.
func (p *Panel) Start(ctx context.Context) {
	if p.bus == nil {
		return
	}
	records, cancel := p.bus.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case rec, ok := <-records:
				if !ok {
					return
				}
				p.ApplyBroadcast(rec)
			}
		}
	}()
}

// OpenNotebook ensures a conversation for the document, focuses it, and
// announces it to the backend, resuming the persisted thread if one
// exists.
func (p *Panel) OpenNotebook(path string) (schema.SessionSnapshot, error) {
	key := schema.SessionKeyForNotebook(path)
	if key == "" {
		return schema.SessionSnapshot{}, schema.ErrSessionNotFound
	}
	p.reg.Ensure(key, path)
	if thread := p.prefs.Thread(key); thread != "" && p.reg.Thread(key) == "" {
		p.reg.SetThread(key, thread)
	}
	p.reg.SetFocused(key)
	p.startSession(key, false)
	snap, _ := p.reg.Snapshot(key)
	p.sink.SessionUpdated(snap)
	logx.WithThread(logx.WithSession(p.log, key), snap.ThreadID).Info("panel notebook opened")
	return snap, nil
}

// Focus marks the conversation as the focused one.
func (p *Panel) Focus(key schema.SessionKey) {
	if p.reg.Has(key) {
		p.reg.SetFocused(key)
	}
}

// CloseNotebook drops the conversation and tells the backend the thread
// can be released. The persisted thread mapping survives so a later
// reopen resumes the same thread.
func (p *Panel) CloseNotebook(path string) {
	key := schema.SessionKeyForNotebook(path)
	thread, ok := p.reg.Remove(key)
	if !ok {
		return
	}
	if thread != "" {
		if err := p.conn.Send(schema.EndSessionMessage(thread)); err != nil {
			p.log.Debug("panel end session send failed", "session", key, "err", err)
		}
	}
	p.log.Info("panel notebook closed", "session", key)
}

// PromptOptions carries the per-prompt context captured from the editor.
type PromptOptions struct {
	Selection           string
	SelectionTruncated  bool
	CellOutput          string
	CellOutputTruncated bool
	Images              []schema.Image
}

// SendPrompt submits a prompt on the conversation. The user's turn is
// appended immediately; run state transitions wait for backend status.
func (p *Panel) SendPrompt(key schema.SessionKey, content string, opts PromptOptions) error {
	snap, ok := p.reg.Snapshot(key)
	if !ok {
		return schema.ErrSessionNotFound
	}
	if snap.Pairing.Blocked() {
		return schema.ErrNotPaired
	}
	content = schema.CoerceString(content)
	if content == "" {
		return schema.ErrEmptyContent
	}
	state := p.prefs.State()
	sandbox := state.Sandbox
	if sandbox == "" {
		sandbox = schema.DefaultSandbox
	}
	msg := schema.SendMessage(snap.ThreadID, key, snap.NotebookPath, content, schema.SendOptions{
		CommandPath:         state.CommandPath,
		Model:               state.Model,
		ReasoningEffort:     state.ReasoningEffort,
		Sandbox:             sandbox,
		Selection:           opts.Selection,
		SelectionTruncated:  opts.SelectionTruncated,
		CellOutput:          opts.CellOutput,
		CellOutputTruncated: opts.CellOutputTruncated,
		Images:              opts.Images,
	})
	if err := p.conn.Send(msg); err != nil {
		return err
	}
	p.reg.AppendUserPrompt(key, content, len(opts.Images))
	p.emit(key)
	p.log.Debug("panel prompt sent", "session", key, "images", len(opts.Images))
	return nil
}

// CancelRun requests cancellation of the conversation's in-flight run.
// Advisory: the conversation stays running until the backend confirms.
func (p *Panel) CancelRun(key schema.SessionKey) error {
	runID := p.reg.ActiveRun(key)
	if runID == "" {
		return nil
	}
	return p.conn.Send(schema.CancelMessage(runID))
}

// NewThread discards the conversation's transcript, mints a fresh thread
// id, forces a new backend thread, and announces the change to sibling
// tabs.
func (p *Panel) NewThread(key schema.SessionKey) (schema.SessionSnapshot, error) {
	snap, ok := p.reg.Snapshot(key)
	if !ok {
		return schema.SessionSnapshot{}, schema.ErrSessionNotFound
	}
	threadID := schema.ThreadID(uuid.NewString())
	out := p.reg.Replace(key, snap.NotebookPath, threadID)
	p.prefs.PutThread(key, threadID)
	p.startSession(key, true)
	if p.sync != nil {
		p.sync.Announce(tabsync.NewRecord(key, snap.NotebookPath, threadID, p.originID))
	}
	p.sink.SessionUpdated(out)
	logx.WithThread(logx.WithSession(p.log, key), threadID).Info("panel new thread")
	return out, nil
}

// ApplyBroadcast converges on a thread announced by a sibling tab.
// Records from this tab, and records for conversations this tab does not
// hold, are ignored.
func (p *Panel) ApplyBroadcast(rec tabsync.Record) {
	if rec.OriginID == p.originID || rec.SessionKey == "" || rec.ThreadID == "" {
		return
	}
	if !p.reg.Has(rec.SessionKey) {
		return
	}
	p.reg.Replace(rec.SessionKey, rec.NotebookPath, rec.ThreadID)
	p.prefs.PutThread(rec.SessionKey, rec.ThreadID)
	p.startSession(rec.SessionKey, false)
	p.emit(rec.SessionKey)
	p.log.Info("panel adopted announced thread", "session", rec.SessionKey, "thread", rec.ThreadID)
}

// DeleteAllSessions asks the backend to wipe every stored thread. The
// request is marked pending until acknowledged so a reconnect retries
// it.
func (p *Panel) DeleteAllSessions() error {
	p.prefs.Update(func(state *threadstore.PanelState) {
		state.DeleteAllPending = true
	})
	return p.conn.Send(schema.DeleteAllSessionsMessage())
}

// RefreshRateLimits requests a fresh rate-limit snapshot.
func (p *Panel) RefreshRateLimits() error {
	return p.conn.Send(schema.RefreshRateLimitsMessage())
}

// HandleOpen runs when the backend connection (re)opens: every known
// conversation is re-announced and a pending delete-all is retried.
func (p *Panel) HandleOpen() {
	for _, snap := range p.reg.Sessions() {
		p.startSessionFrom(snap, false)
	}
	if p.prefs.State().DeleteAllPending {
		p.log.Info("panel retrying pending delete all")
		if err := p.conn.Send(schema.DeleteAllSessionsMessage()); err != nil {
			p.log.Warn("panel delete all retry failed", "err", err)
		}
	}
}

// HandleClose runs when the backend connection drops. Run ids do not
// survive a backend restart, so the run index is cleared; run state is
// left as-is and settles from post-reconnect status frames.
func (p *Panel) HandleClose() {
	p.reg.ClearRunIndex()
}

func (p *Panel) startSession(key schema.SessionKey, forceNew bool) {
	if snap, ok := p.reg.Snapshot(key); ok {
		p.startSessionFrom(snap, forceNew)
	}
}

func (p *Panel) startSessionFrom(snap schema.SessionSnapshot, forceNew bool) {
	msg := schema.StartSessionMessage(snap.ThreadID, snap.NotebookPath, snap.Key, forceNew, p.prefs.State().CommandPath)
	if err := p.conn.Send(msg); err != nil {
		p.log.Debug("panel start session send failed", "session", snap.Key, "err", err)
	}
}
