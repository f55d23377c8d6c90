package core

import (
	"testing"

	"pkt.systems/nbmux/schema"
)

func TestResolvePriority(t *testing.T) {
	keyA := schema.SessionKey("notebook:a.ipynb")
	keyB := schema.SessionKey("notebook:b.ipynb")

	setup := func() *Registry {
		reg := NewRegistry(nil, 0)
		reg.Ensure(keyA, "a.ipynb")
		reg.Ensure(keyB, "b.ipynb")
		reg.BindRun("run-b", keyB)
		reg.SetFocused(keyA)
		return reg
	}

	tests := []struct {
		name string
		msg  schema.Inbound
		want schema.SessionKey
		ok   bool
	}{
		{
			name: "explicit key wins over run and path",
			msg:  schema.Inbound{SessionContextKey: keyA, RunID: "run-b", NotebookPath: "b.ipynb"},
			want: keyA, ok: true,
		},
		{
			name: "bound run wins over path",
			msg:  schema.Inbound{RunID: "run-b", NotebookPath: "a.ipynb"},
			want: keyB, ok: true,
		},
		{
			name: "path resolves existing session",
			msg:  schema.Inbound{NotebookPath: "b.ipynb"},
			want: keyB, ok: true,
		},
		{
			name: "path derives key for unknown notebook",
			msg:  schema.Inbound{NotebookPath: "c.ipynb"},
			want: schema.SessionKey("notebook:c.ipynb"), ok: true,
		},
		{
			name: "falls back to focused",
			msg:  schema.Inbound{RunID: "run-unknown"},
			want: keyA, ok: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reg := setup()
			got, ok := reg.Resolve(&tc.msg)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("Resolve = %q, %v; want %q, %v", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestResolveUnroutable(t *testing.T) {
	reg := NewRegistry(nil, 0)
	msg := schema.Inbound{RunID: "run-unknown"}
	if key, ok := reg.Resolve(&msg); ok {
		t.Fatalf("expected unroutable, got %q", key)
	}
}

func TestResolveRecordsRunFromPath(t *testing.T) {
	keyA := schema.SessionKey("notebook:a.ipynb")
	reg := NewRegistry(nil, 0)
	reg.Ensure(keyA, "a.ipynb")

	msg := schema.Inbound{NotebookPath: "a.ipynb", RunID: "run-1"}
	if key, ok := reg.Resolve(&msg); !ok || key != keyA {
		t.Fatalf("Resolve = %q, %v", key, ok)
	}
	// The follow-up frame carries only the run id.
	follow := schema.Inbound{RunID: "run-1"}
	if key, ok := reg.Resolve(&follow); !ok || key != keyA {
		t.Fatalf("follow-up Resolve = %q, %v", key, ok)
	}
}
