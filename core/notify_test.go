package core

import (
	"strings"
	"testing"
	"time"
)

func TestNotificationEligible(t *testing.T) {
	tests := []struct {
		name       string
		optedIn    bool
		permitted  bool
		elapsed    time.Duration
		minSeconds int
		want       bool
	}{
		{"not opted in", false, true, time.Minute, 30, false},
		{"no permission", true, false, time.Minute, 30, false},
		{"too fast", true, true, 10 * time.Second, 30, false},
		{"slow enough", true, true, 45 * time.Second, 30, true},
		{"exactly threshold", true, true, 30 * time.Second, 30, true},
		{"zero means always", true, true, time.Millisecond, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := notificationEligible(tc.optedIn, tc.permitted, tc.elapsed, tc.minSeconds)
			if got != tc.want {
				t.Fatalf("notificationEligible = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuildNotification(t *testing.T) {
	exit2 := 2
	exit0 := 0

	n := buildNotification("a.ipynb", &exit0, false, 42*time.Second)
	if n.Title != "Codex finished" || !strings.Contains(n.Body, "a.ipynb") {
		t.Fatalf("success notification = %+v", n)
	}

	n = buildNotification("a.ipynb", &exit2, false, time.Minute)
	if n.Title != "Codex run failed" || !strings.Contains(n.Body, "exit 2") {
		t.Fatalf("failure notification = %+v", n)
	}

	n = buildNotification("a.ipynb", nil, true, time.Minute)
	if n.Title != "Codex run cancelled" {
		t.Fatalf("cancelled notification = %+v", n)
	}

	n = buildNotification("", &exit0, false, time.Second)
	if !strings.Contains(n.Body, "notebook") {
		t.Fatalf("empty path should fall back to a generic label, got %+v", n)
	}
}
