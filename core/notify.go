package core

import (
	"fmt"
	"time"

	"pkt.systems/nbmux/schema"
)

// Notification is one desktop notice about a finished run.
type Notification struct {
	Title string
	Body  string
}

// notificationEligible decides whether a finished run warrants a
// notification. The user must have opted in and granted permission, and
// the run must have taken at least minSeconds; zero means always notify.
func notificationEligible(optedIn, permitted bool, elapsed time.Duration, minSeconds int) bool {
	if !optedIn || !permitted {
		return false
	}
	if minSeconds <= 0 {
		return true
	}
	return elapsed >= time.Duration(minSeconds)*time.Second
}

// buildNotification renders the notice for a finished run.
func buildNotification(notebookPath string, exitCode *int, cancelled bool, elapsed time.Duration) Notification {
	label := schema.TruncateLabel(notebookPath, 48)
	if label == "" {
		label = "notebook"
	}
	n := Notification{Title: "Codex finished"}
	switch {
	case cancelled:
		n.Title = "Codex run cancelled"
		n.Body = fmt.Sprintf("%s (after %s)", label, elapsed.Round(time.Second))
	case exitCode != nil && *exitCode != 0:
		n.Title = "Codex run failed"
		n.Body = fmt.Sprintf("%s (exit %d, %s)", label, *exitCode, elapsed.Round(time.Second))
	default:
		n.Body = fmt.Sprintf("%s (%s)", label, elapsed.Round(time.Second))
	}
	return n
}
