package schema

import (
	"errors"
	"testing"
)

func TestParseInboundValid(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		kind  InboundKind
	}{
		{"status ready", `{"type":"status","state":"ready"}`, KindStatus},
		{"status running", `{"type":"status","state":"running","runId":"run-1"}`, KindStatus},
		{"output", `{"type":"output","runId":"run-1","text":"hello"}`, KindOutput},
		{"event", `{"type":"event","runId":"run-1","payload":{"type":"turn.started"}}`, KindEvent},
		{"done", `{"type":"done","runId":"run-1","exitCode":0}`, KindDone},
		{"error", `{"type":"error","message":"boom"}`, KindError},
		{"delete all", `{"type":"delete_all_sessions","ok":true,"deletedCount":3}`, KindDeleteAll},
		{"cli defaults", `{"type":"cli_defaults","model":"gpt-5.2-codex"}`, KindCLIDefaults},
		{"rate limits", `{"type":"rate_limits","snapshot":{"used":1}}`, KindRateLimits},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := ParseInbound([]byte(tc.frame))
			if err != nil {
				t.Fatalf("ParseInbound: %v", err)
			}
			if msg.Kind != tc.kind {
				t.Fatalf("kind = %q, want %q", msg.Kind, tc.kind)
			}
			if string(msg.Raw) != tc.frame {
				t.Fatalf("raw = %q, want %q", msg.Raw, tc.frame)
			}
		})
	}
}

func TestParseInboundRejects(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"not json", `hello there`, ErrInvalidFrame},
		{"json array", `[1,2,3]`, ErrInvalidFrame},
		{"no type", `{"state":"ready"}`, ErrMissingField},
		{"unknown type", `{"type":"telemetry"}`, ErrUnknownMessage},
		{"status bad state", `{"type":"status","state":"paused"}`, ErrMissingField},
		{"output without run", `{"type":"output","text":"hi"}`, ErrMissingField},
		{"output without text", `{"type":"output","runId":"run-1"}`, ErrMissingField},
		{"event without payload", `{"type":"event","runId":"run-1"}`, ErrMissingField},
		{"done without run", `{"type":"done"}`, ErrMissingField},
		{"error without message", `{"type":"error"}`, ErrMissingField},
		{"delete all without ok", `{"type":"delete_all_sessions"}`, ErrMissingField},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := ParseInbound([]byte(tc.frame))
			if err == nil {
				t.Fatalf("ParseInbound accepted %q", tc.frame)
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if msg != nil {
				t.Fatalf("rejected frame returned message %+v", msg)
			}
		})
	}
}

func TestInboundPairing(t *testing.T) {
	msg, err := ParseInbound([]byte(`{"type":"status","state":"ready","pairedOk":false,"pairedMessage":"missing companion"}`))
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	pairing := msg.Pairing()
	if pairing == nil {
		t.Fatal("expected pairing info")
	}
	if !pairing.Blocked() {
		t.Fatal("pairedOk=false should block")
	}
	if pairing.Message != "missing companion" {
		t.Fatalf("message = %q", pairing.Message)
	}

	msg, err = ParseInbound([]byte(`{"type":"status","state":"ready"}`))
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if msg.Pairing() != nil {
		t.Fatal("expected no pairing info")
	}
}

func TestInboundPartialDefaults(t *testing.T) {
	msg, err := ParseInbound([]byte(`{"type":"cli_defaults","reasoningEffort":"high"}`))
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if msg.Model != nil {
		t.Fatal("absent model must stay nil")
	}
	if msg.ReasoningEffort == nil || *msg.ReasoningEffort != "high" {
		t.Fatalf("reasoningEffort = %v", msg.ReasoningEffort)
	}
}
