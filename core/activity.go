package core

import (
	"regexp"
	"strings"

	"pkt.systems/nbmux/schema"
)

var exitSuffix = regexp.MustCompile(`\s*\(exit -?\d+\)$`)

// normalizeActivityDetail reduces an activity detail to the comparable
// form used for pairing: first line, exit-code suffix stripped.
func normalizeActivityDetail(detail string) string {
	return exitSuffix.ReplaceAllString(schema.FirstLine(detail), "")
}

// normalizeActivityTitle reduces a title to the comparable form used for
// pairing, dropping the in-flight ellipsis and exit-code suffix.
func normalizeActivityTitle(title string) string {
	title = strings.TrimSuffix(strings.TrimSpace(title), "…")
	return exitSuffix.ReplaceAllString(title, "")
}

// AppendActivity surfaces one activity item in the conversation. A
// completed item upgrades its earlier started twin in place instead of
// appending a second row; consecutive identical reasoning items collapse
// into one.
func (r *Registry) AppendActivity(key schema.SessionKey, item schema.ActivityItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if !ok {
		return
	}

	if item.Category == schema.ActivityReasoning && s.dedupReasoning(item) {
		return
	}
	if item.Phase == schema.PhaseCompleted && s.upgradeStarted(item) {
		return
	}
	s.append(schema.ActivityEntry(item))
}

// dedupReasoning reports whether the item repeats the immediately
// preceding reasoning entry. Reasoning deltas often restate the same
// headline many times per run.
func (s *session) dedupReasoning(item schema.ActivityItem) bool {
	if len(s.entries) == 0 {
		return false
	}
	last := s.entries[len(s.entries)-1]
	if last.Kind != schema.EntryActivity || last.Activity == nil {
		return false
	}
	return last.Activity.Category == schema.ActivityReasoning &&
		last.Activity.Phase == item.Phase &&
		last.Activity.Title == item.Title &&
		last.Activity.Detail == item.Detail
}

// upgradeStarted scans backwards for the started twin of a completed
// item and mutates it in place. The scan stops at the previous run
// divider; a completion never pairs across runs.
func (s *session) upgradeStarted(item schema.ActivityItem) bool {
	wantTitle := normalizeActivityTitle(item.Title)
	wantDetail := normalizeActivityDetail(item.Detail)
	for i := len(s.entries) - 1; i >= 0; i-- {
		entry := s.entries[i]
		if entry.Kind == schema.EntryRunDivider {
			return false
		}
		if entry.Kind != schema.EntryActivity || entry.Activity == nil {
			continue
		}
		act := entry.Activity
		if act.Phase != schema.PhaseStarted || act.Category != item.Category {
			continue
		}
		matched := false
		if item.Category == schema.ActivityCommand {
			// Commands pair on the command line itself; the backend
			// rewords the title between phases.
			matched = wantDetail != "" && normalizeActivityDetail(act.Detail) == wantDetail
		} else {
			matched = normalizeActivityTitle(act.Title) == wantTitle &&
				normalizeActivityDetail(act.Detail) == wantDetail
		}
		if !matched {
			continue
		}
		act.Phase = schema.PhaseCompleted
		act.Title = item.Title
		if item.Detail != "" {
			act.Detail = item.Detail
		}
		if item.Raw != "" {
			act.Raw = item.Raw
		}
		return true
	}
	return false
}
