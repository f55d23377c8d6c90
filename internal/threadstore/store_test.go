package threadstore

import (
	"os"
	"path/filepath"
	"testing"

	"pkt.systems/nbmux/schema"
)

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store.PutThread("notebook:a.ipynb", "thread-1")
	store.Update(func(state *PanelState) {
		state.Model = "gpt-5.2-codex"
		state.NotifyOnDone = true
		state.DeleteAllPending = true
	})

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if got := reopened.Thread("notebook:a.ipynb"); got != "thread-1" {
		t.Fatalf("thread = %q", got)
	}
	state := reopened.State()
	if state.Model != "gpt-5.2-codex" || !state.NotifyOnDone || !state.DeleteAllPending {
		t.Fatalf("state = %+v", state)
	}
}

func TestStorePutThreadEmptyRemoves(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store.PutThread("notebook:a.ipynb", "thread-1")
	store.PutThread("notebook:a.ipynb", "")
	if got := store.Thread("notebook:a.ipynb"); got != "" {
		t.Fatalf("thread = %q, want removed", got)
	}
}

func TestStoreWriteThreadsReplaces(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store.PutThread("notebook:a.ipynb", "thread-1")
	store.WriteThreads(map[schema.SessionKey]schema.ThreadID{
		"notebook:b.ipynb": "thread-2",
		"notebook:bad":     "",
	})
	if got := store.Thread("notebook:a.ipynb"); got != "" {
		t.Fatalf("old mapping survived: %q", got)
	}
	if got := store.Thread("notebook:b.ipynb"); got != "thread-2" {
		t.Fatalf("thread = %q", got)
	}
	if got := store.Thread("notebook:bad"); got != "" {
		t.Fatalf("empty thread id stored: %q", got)
	}
}

func TestStoreCorruptFileDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "panel.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if got := store.State(); got.Model != "" || len(got.Threads) != 0 {
		t.Fatalf("corrupt state should load empty, got %+v", got)
	}
	// And the store must still accept writes afterwards.
	store.PutThread("notebook:a.ipynb", "thread-1")
	if got := store.Thread("notebook:a.ipynb"); got != "thread-1" {
		t.Fatalf("thread = %q", got)
	}
}
