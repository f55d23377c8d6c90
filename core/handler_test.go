package core

import (
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/nbmux/internal/threadstore"
	"pkt.systems/nbmux/schema"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []schema.Outbound
	err  error
}

func (f *fakeSender) Send(msg schema.Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) byKind(kind string) []schema.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []schema.Outbound
	for _, msg := range f.sent {
		if msg.Kind == kind {
			out = append(out, msg)
		}
	}
	return out
}

type fakeEffects struct {
	mu            sync.Mutex
	refreshed     []string
	notifications []Notification
	permitted     bool
}

func (f *fakeEffects) RefreshNotebook(path string) {
	f.mu.Lock()
	f.refreshed = append(f.refreshed, path)
	f.mu.Unlock()
}

func (f *fakeEffects) Notify(n Notification) {
	f.mu.Lock()
	f.notifications = append(f.notifications, n)
	f.mu.Unlock()
}

func (f *fakeEffects) NotifyPermitted() bool { return f.permitted }

func newTestPanel(t *testing.T) (*Panel, *fakeSender, *fakeEffects) {
	t.Helper()
	prefs, err := threadstore.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	sender := &fakeSender{}
	effects := &fakeEffects{permitted: true}
	panel := NewPanel(PanelOptions{
		Prefs:   prefs,
		Conn:    sender,
		Effects: effects,
	})
	return panel, sender, effects
}

func lastText(t *testing.T, panel *Panel, key schema.SessionKey) schema.ChatEntry {
	t.Helper()
	snap, ok := panel.Registry().Snapshot(key)
	if !ok {
		t.Fatalf("no session %q", key)
	}
	for i := len(snap.Entries) - 1; i >= 0; i-- {
		if snap.Entries[i].Kind == schema.EntryText {
			return snap.Entries[i]
		}
	}
	t.Fatal("no text entries")
	return schema.ChatEntry{}
}

func TestHandleFrameFullRun(t *testing.T) {
	panel, sender, _ := newTestPanel(t)
	if _, err := panel.OpenNotebook("a.ipynb"); err != nil {
		t.Fatalf("OpenNotebook: %v", err)
	}
	key := schema.SessionKeyForNotebook("a.ipynb")

	if starts := sender.byKind("start_session"); len(starts) != 1 {
		t.Fatalf("start_session frames = %d", len(starts))
	}

	if err := panel.SendPrompt(key, "list the files", PromptOptions{}); err != nil {
		t.Fatalf("SendPrompt: %v", err)
	}

	panel.HandleFrame([]byte(`{"type":"status","state":"running","runId":"run-1","sessionContextKey":"notebook:a.ipynb","sessionId":"thread-1"}`))
	panel.HandleFrame([]byte(`{"type":"event","runId":"run-1","payload":{"type":"item.started","item":{"type":"command_execution","command":"bash -lc ls"}}}`))
	panel.HandleFrame([]byte(`{"type":"event","runId":"run-1","payload":{"type":"item.completed","item":{"type":"command_execution","command":"bash -lc ls","exit_code":0}}}`))
	panel.HandleFrame([]byte(`{"type":"output","runId":"run-1","role":"assistant","text":"Two files."}`))
	panel.HandleFrame([]byte(`{"type":"done","runId":"run-1","exitCode":0}`))

	snap, _ := panel.Registry().Snapshot(key)
	if snap.RunState != schema.RunReady {
		t.Fatalf("run state = %q", snap.RunState)
	}
	if snap.ThreadID != "thread-1" {
		t.Fatalf("thread = %q", snap.ThreadID)
	}
	if got := countKind(snap.Entries, schema.EntryRunDivider); got != 1 {
		t.Fatalf("dividers = %d", got)
	}
	if got := countKind(snap.Entries, schema.EntryActivity); got != 1 {
		t.Fatalf("activity rows = %d, want paired command", got)
	}
	if entry := lastText(t, panel, key); entry.Role != schema.RoleAssistant || entry.Text != "Two files." {
		t.Fatalf("last text = %+v", entry)
	}
	if _, ok := panel.Registry().SessionForRun("run-1"); ok {
		t.Fatal("done must unbind the run")
	}
}

func TestHandleStatusReadyWithoutRunIDIgnored(t *testing.T) {
	panel, _, _ := newTestPanel(t)
	panel.OpenNotebook("a.ipynb")
	key := schema.SessionKeyForNotebook("a.ipynb")

	panel.HandleFrame([]byte(`{"type":"status","state":"running","runId":"run-1","sessionContextKey":"notebook:a.ipynb"}`))
	panel.HandleFrame([]byte(`{"type":"status","state":"ready","sessionContextKey":"notebook:a.ipynb"}`))

	snap, _ := panel.Registry().Snapshot(key)
	if snap.RunState != schema.RunRunning {
		t.Fatalf("ready without runId must not end the run, state = %q", snap.RunState)
	}
	if got := countKind(snap.Entries, schema.EntryRunDivider); got != 0 {
		t.Fatalf("dividers = %d", got)
	}
}

func TestHandleFrameInvalidJSON(t *testing.T) {
	panel, _, _ := newTestPanel(t)
	panel.OpenNotebook("a.ipynb")
	key := schema.SessionKeyForNotebook("a.ipynb")

	panel.HandleFrame([]byte(`this is not json`))

	entry := lastText(t, panel, key)
	if entry.Role != schema.RoleSystem || !strings.Contains(entry.Text, "Invalid message") {
		t.Fatalf("entry = %+v", entry)
	}
	if !strings.Contains(entry.Text, "this is not json") {
		t.Fatalf("notice should carry the raw frame, got %q", entry.Text)
	}
}

func TestHandleFrameMissingFieldDropped(t *testing.T) {
	panel, _, _ := newTestPanel(t)
	panel.OpenNotebook("a.ipynb")
	key := schema.SessionKeyForNotebook("a.ipynb")
	before, _ := panel.Registry().Snapshot(key)

	panel.HandleFrame([]byte(`{"type":"output","text":"no run id"}`))

	after, _ := panel.Registry().Snapshot(key)
	if len(after.Entries) != len(before.Entries) {
		t.Fatal("invalid-by-schema frame must be dropped silently")
	}
}

func TestHandleErrorSuggestedCommandPath(t *testing.T) {
	panel, _, _ := newTestPanel(t)
	panel.OpenNotebook("a.ipynb")
	key := schema.SessionKeyForNotebook("a.ipynb")

	panel.HandleFrame([]byte(`{"type":"status","state":"running","runId":"run-1","sessionContextKey":"notebook:a.ipynb"}`))
	panel.HandleFrame([]byte(`{"type":"error","runId":"run-1","message":"codex not found","suggestedCommandPath":"/usr/local/bin/codex"}`))

	snap, _ := panel.Registry().Snapshot(key)
	if snap.RunState != schema.RunReady {
		t.Fatalf("error must end the run, state = %q", snap.RunState)
	}
	if got := panel.prefs.State().CommandPath; got != "/usr/local/bin/codex" {
		t.Fatalf("command path = %q", got)
	}

	// A second suggestion must not overwrite a configured path.
	panel.HandleFrame([]byte(`{"type":"error","message":"still broken","suggestedCommandPath":"/other/codex"}`))
	if got := panel.prefs.State().CommandPath; got != "/usr/local/bin/codex" {
		t.Fatalf("command path overwritten to %q", got)
	}
}

func TestHandleDoneEffects(t *testing.T) {
	panel, _, effects := newTestPanel(t)
	panel.OpenNotebook("a.ipynb")
	panel.prefs.Update(func(state *threadstore.PanelState) {
		state.NotifyOnDone = true
		state.NotifyMinSeconds = 0
	})

	panel.HandleFrame([]byte(`{"type":"status","state":"running","runId":"run-1","sessionContextKey":"notebook:a.ipynb"}`))
	panel.HandleFrame([]byte(`{"type":"done","runId":"run-1","exitCode":1,"fileChanged":true}`))

	effects.mu.Lock()
	defer effects.mu.Unlock()
	if len(effects.refreshed) != 1 || effects.refreshed[0] != "a.ipynb" {
		t.Fatalf("refreshed = %v", effects.refreshed)
	}
	if len(effects.notifications) != 1 {
		t.Fatalf("notifications = %v", effects.notifications)
	}
	if effects.notifications[0].Title != "Codex run failed" {
		t.Fatalf("notification = %+v", effects.notifications[0])
	}

	entry := lastText(t, panel, schema.SessionKeyForNotebook("a.ipynb"))
	if !strings.Contains(entry.Text, "exit 1") {
		t.Fatalf("failure entry = %+v", entry)
	}
}

func TestHandleDoneNotificationSuppressedWhenFast(t *testing.T) {
	panel, _, effects := newTestPanel(t)
	panel.OpenNotebook("a.ipynb")
	panel.prefs.Update(func(state *threadstore.PanelState) {
		state.NotifyOnDone = true
		state.NotifyMinSeconds = 30
	})

	panel.HandleFrame([]byte(`{"type":"status","state":"running","runId":"run-1","sessionContextKey":"notebook:a.ipynb"}`))
	panel.HandleFrame([]byte(`{"type":"done","runId":"run-1","exitCode":0}`))

	effects.mu.Lock()
	defer effects.mu.Unlock()
	if len(effects.notifications) != 0 {
		t.Fatalf("fast run should not notify, got %v", effects.notifications)
	}
}

func TestHandleDeleteAllAck(t *testing.T) {
	panel, sender, _ := newTestPanel(t)
	panel.OpenNotebook("a.ipynb")
	key := schema.SessionKeyForNotebook("a.ipynb")

	if err := panel.DeleteAllSessions(); err != nil {
		t.Fatalf("DeleteAllSessions: %v", err)
	}
	if !panel.prefs.State().DeleteAllPending {
		t.Fatal("delete-all must be marked pending until acknowledged")
	}
	if got := sender.byKind("delete_all_sessions"); len(got) != 1 {
		t.Fatalf("delete_all_sessions frames = %d", len(got))
	}

	panel.HandleFrame([]byte(`{"type":"delete_all_sessions","ok":true,"deletedCount":2}`))
	if panel.prefs.State().DeleteAllPending {
		t.Fatal("ack must clear the pending flag")
	}
	if got := panel.prefs.Thread(key); got != "" {
		t.Fatalf("thread mapping should be wiped, got %q", got)
	}
	entry := lastText(t, panel, key)
	if !strings.Contains(entry.Text, "Deleted 2") {
		t.Fatalf("summary entry = %+v", entry)
	}
}

func TestHandleDeleteAllRetriedOnOpen(t *testing.T) {
	panel, sender, _ := newTestPanel(t)
	panel.OpenNotebook("a.ipynb")
	panel.prefs.Update(func(state *threadstore.PanelState) {
		state.DeleteAllPending = true
	})

	panel.HandleOpen()
	if got := sender.byKind("delete_all_sessions"); len(got) != 1 {
		t.Fatalf("pending delete-all not retried, frames = %d", len(got))
	}
	if got := sender.byKind("start_session"); len(got) < 2 {
		t.Fatalf("reconnect should re-announce sessions, start frames = %d", len(got))
	}
}

func TestHandleCLIDefaultsPartialMerge(t *testing.T) {
	panel, _, _ := newTestPanel(t)

	panel.HandleFrame([]byte(`{"type":"cli_defaults","model":"gpt-5.2-codex","reasoningEffort":"medium"}`))
	panel.HandleFrame([]byte(`{"type":"cli_defaults","reasoningEffort":"high"}`))

	defaults := panel.Defaults()
	if defaults.Model != "gpt-5.2-codex" {
		t.Fatalf("model = %q, partial update must not erase it", defaults.Model)
	}
	if defaults.ReasoningEffort != "high" {
		t.Fatalf("reasoningEffort = %q", defaults.ReasoningEffort)
	}
}

func TestHandleRateLimits(t *testing.T) {
	panel, _, _ := newTestPanel(t)
	panel.HandleFrame([]byte(`{"type":"rate_limits","snapshot":{"primary":{"used_percent":40}}}`))
	limits := panel.RateLimits()
	if len(limits.Snapshot) == 0 {
		t.Fatal("snapshot not cached")
	}
	if limits.FetchedAt.IsZero() {
		t.Fatal("FetchedAt not stamped")
	}
}

func TestHandleCloseClearsRunIndex(t *testing.T) {
	panel, _, _ := newTestPanel(t)
	panel.OpenNotebook("a.ipynb")
	panel.HandleFrame([]byte(`{"type":"status","state":"running","runId":"run-1","sessionContextKey":"notebook:a.ipynb"}`))

	panel.HandleClose()
	if _, ok := panel.Registry().SessionForRun("run-1"); ok {
		t.Fatal("disconnect must clear the run index")
	}
}

func TestHandleDoneElapsedControlsNotification(t *testing.T) {
	start := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	advance := withFixedClock(t, start)

	panel, _, effects := newTestPanel(t)
	panel.OpenNotebook("a.ipynb")
	panel.prefs.Update(func(state *threadstore.PanelState) {
		state.NotifyOnDone = true
		state.NotifyMinSeconds = 30
	})

	panel.HandleFrame([]byte(`{"type":"status","state":"running","runId":"run-1","sessionContextKey":"notebook:a.ipynb"}`))
	advance(start.Add(45 * time.Second))
	panel.HandleFrame([]byte(`{"type":"done","runId":"run-1","exitCode":0}`))

	effects.mu.Lock()
	defer effects.mu.Unlock()
	if len(effects.notifications) != 1 {
		t.Fatalf("long run should notify, got %v", effects.notifications)
	}
}

func TestStatusFrameCreatesUnseenConversation(t *testing.T) {
	panel, _, _ := newTestPanel(t)

	panel.HandleFrame([]byte(`{"type":"status","state":"running","runId":"run-1","sessionContextKey":"notebook:a.ipynb","notebookPath":"a.ipynb"}`))

	key := schema.SessionKey("notebook:a.ipynb")
	if !panel.Registry().Has(key) {
		t.Fatal("status frame for an unseen key must create the conversation")
	}
	snap, _ := panel.Registry().Snapshot(key)
	if snap.RunState != schema.RunRunning {
		t.Fatalf("run state = %q", snap.RunState)
	}
	if snap.NotebookPath != "a.ipynb" {
		t.Fatalf("path = %q", snap.NotebookPath)
	}

	// Follow-up frames on the bound run land in the same conversation.
	panel.HandleFrame([]byte(`{"type":"output","runId":"run-1","role":"assistant","text":"Two files."}`))
	if entry := lastText(t, panel, key); entry.Text != "Two files." {
		t.Fatalf("text = %q", entry.Text)
	}
}

func TestPathRoutedFrameCreatesDerivedConversation(t *testing.T) {
	panel, _, _ := newTestPanel(t)

	panel.HandleFrame([]byte(`{"type":"status","state":"running","runId":"run-7","notebookPath":"b.ipynb"}`))

	key := schema.SessionKeyForNotebook("b.ipynb")
	if !panel.Registry().Has(key) {
		t.Fatal("path-routed frame must create the derived conversation")
	}
	if state := panel.Registry().RunState(key); state != schema.RunRunning {
		t.Fatalf("run state = %q", state)
	}

	// The opportunistic run binding routes the rest of the run.
	panel.HandleFrame([]byte(`{"type":"output","runId":"run-7","role":"assistant","text":"hello"}`))
	if entry := lastText(t, panel, key); entry.Text != "hello" {
		t.Fatalf("text = %q", entry.Text)
	}
}

func TestLazyConversationResumesPersistedThread(t *testing.T) {
	prefs, err := threadstore.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	key := schema.SessionKeyForNotebook("c.ipynb")
	prefs.PutThread(key, "thread-9")
	panel := NewPanel(PanelOptions{Prefs: prefs, Conn: &fakeSender{}})

	panel.HandleFrame([]byte(`{"type":"status","state":"running","runId":"run-1","notebookPath":"c.ipynb"}`))

	snap, ok := panel.Registry().Snapshot(key)
	if !ok {
		t.Fatalf("no session %q", key)
	}
	if snap.ThreadID != "thread-9" {
		t.Fatalf("thread = %q, want the persisted binding resumed", snap.ThreadID)
	}
}

func TestErrorFrameAppliesPairing(t *testing.T) {
	panel, _, _ := newTestPanel(t)
	if _, err := panel.OpenNotebook("a.ipynb"); err != nil {
		t.Fatalf("OpenNotebook: %v", err)
	}
	key := schema.SessionKeyForNotebook("a.ipynb")

	panel.HandleFrame([]byte(`{"type":"error","message":"codex failed","sessionContextKey":"notebook:a.ipynb","pairedOk":false,"pairedMessage":"notebook has no saved copy"}`))

	pairing := panel.Registry().Pairing(key)
	if pairing.OK == nil || *pairing.OK {
		t.Fatalf("pairing = %+v, want pairedOk=false applied", pairing)
	}
	if pairing.Message != "notebook has no saved copy" {
		t.Fatalf("pairing message = %q", pairing.Message)
	}
	if !pairing.Blocked() {
		t.Fatal("unpaired conversation must block prompts")
	}
}
