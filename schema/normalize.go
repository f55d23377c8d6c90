package schema

import "strings"

// CoerceString trims a value the way the backend normalizes client
// payload strings.
func CoerceString(value string) string {
	return strings.TrimSpace(value)
}

// CoerceBool interprets loose truthy strings ("1", "true", "y", "yes",
// "on", any case) as true; everything else is false.
func CoerceBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "y", "yes", "on":
		return true
	}
	return false
}

// NormalizeRole maps unknown or empty roles to the assistant role.
func NormalizeRole(role Role) Role {
	if ValidRole(role) {
		return role
	}
	return RoleAssistant
}

// FirstLine returns the text before the first newline, trimmed.
func FirstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// TruncateLabel shortens a path-like label from the left, keeping the
// most specific trailing portion.
func TruncateLabel(label string, max int) string {
	if max <= 0 || len(label) <= max {
		return label
	}
	if max <= 1 {
		return label[len(label)-max:]
	}
	return "…" + label[len(label)-max+1:]
}
