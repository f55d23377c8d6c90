package core

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"pkt.systems/nbmux/schema"
)

// noiseEvents are lifecycle chatter with no standalone display value.
// Their information reaches the user through status/output frames.
var noiseEvents = map[string]struct{}{
	"thread.started":        {},
	"turn.started":          {},
	"turn.completed":        {},
	"token_count":           {},
	"agent_message_delta":   {},
	"agent_reasoning_delta": {},
}

// SummarizeEvent distills a raw backend event payload into a display
// activity item. Returns false for noise events and payloads with no
// usable type. The payload schema is deliberately loose: fields are
// probed with gjson rather than bound to structs, so unknown event
// shapes degrade to a generic item instead of being dropped.
func SummarizeEvent(payload []byte) (schema.ActivityItem, bool) {
	root := gjson.ParseBytes(payload)
	kind := root.Get("type").String()
	if kind == "" {
		return schema.ActivityItem{}, false
	}
	if _, noise := noiseEvents[kind]; noise {
		return schema.ActivityItem{}, false
	}

	switch kind {
	case "item.started", "item.completed":
		phase := schema.PhaseStarted
		if kind == "item.completed" {
			phase = schema.PhaseCompleted
		}
		return summarizeItem(root.Get("item"), phase), true
	case "agent_reasoning", "agent_reasoning_section_break":
		return reasoningItem(root.Get("text").String()), true
	}

	item := schema.ActivityItem{
		Category: schema.ActivityEvent,
		Phase:    schema.PhaseNone,
		Title:    fallbackTitle(root, kind),
		Raw:      root.Raw,
	}
	return item, true
}

func summarizeItem(item gjson.Result, phase schema.ActivityPhase) schema.ActivityItem {
	itemType := item.Get("type").String()
	if itemType == "" {
		itemType = item.Get("item_type").String()
	}
	switch itemType {
	case "reasoning":
		out := reasoningItem(item.Get("text").String())
		out.Raw = item.Raw
		return out
	case "command_execution":
		return commandItem(item, phase)
	case "file_change":
		return fileItem(item, phase)
	case "mcp_tool_call", "web_search":
		return toolItem(item, phase)
	}
	return schema.ActivityItem{
		Category: schema.ActivityEvent,
		Phase:    phase,
		Title:    fallbackTitle(item, itemType),
		Raw:      item.Raw,
	}
}

func reasoningItem(text string) schema.ActivityItem {
	title := strings.Trim(schema.FirstLine(text), "*# ")
	if title == "" {
		title = "Thinking…"
	}
	return schema.ActivityItem{
		Category: schema.ActivityReasoning,
		Phase:    schema.PhaseNone,
		Title:    title,
	}
}

func commandItem(item gjson.Result, phase schema.ActivityPhase) schema.ActivityItem {
	cmd := commandLine(item)
	title := "Running command…"
	detail := cmd
	if phase == schema.PhaseCompleted {
		title = "Ran command"
		if exit := item.Get("exit_code"); exit.Exists() {
			detail = fmt.Sprintf("%s (exit %d)", cmd, exit.Int())
		} else if exit := item.Get("exitCode"); exit.Exists() {
			detail = fmt.Sprintf("%s (exit %d)", cmd, exit.Int())
		}
	}
	return schema.ActivityItem{
		Category: schema.ActivityCommand,
		Phase:    phase,
		Title:    title,
		Detail:   detail,
		Raw:      item.Raw,
	}
}

// commandLine extracts the command from the assorted shapes backends
// emit: a plain string, an argv array, or alternate field names.
func commandLine(item gjson.Result) string {
	for _, field := range []string{"command", "cmd", "shell_command"} {
		val := item.Get(field)
		if !val.Exists() {
			continue
		}
		if val.IsArray() {
			parts := make([]string, 0, 4)
			val.ForEach(func(_, part gjson.Result) bool {
				parts = append(parts, part.String())
				return true
			})
			return strings.Join(parts, " ")
		}
		if s := schema.CoerceString(val.String()); s != "" {
			return s
		}
	}
	return ""
}

func fileItem(item gjson.Result, phase schema.ActivityPhase) schema.ActivityItem {
	title := "File changes…"
	if phase == schema.PhaseCompleted {
		title = "File changes"
	}
	paths := make([]string, 0, 4)
	item.Get("changes").ForEach(func(_, change gjson.Result) bool {
		if p := change.Get("path").String(); p != "" {
			paths = append(paths, schema.TruncateLabel(p, 60))
		}
		return true
	})
	if len(paths) == 0 {
		if p := item.Get("path").String(); p != "" {
			paths = append(paths, schema.TruncateLabel(p, 60))
		}
	}
	return schema.ActivityItem{
		Category: schema.ActivityFile,
		Phase:    phase,
		Title:    title,
		Detail:   strings.Join(paths, "\n"),
		Raw:      item.Raw,
	}
}

func toolItem(item gjson.Result, phase schema.ActivityPhase) schema.ActivityItem {
	name := ""
	for _, field := range []string{"tool", "tool_name", "name", "query"} {
		if s := schema.CoerceString(item.Get(field).String()); s != "" {
			name = s
			break
		}
	}
	if server := schema.CoerceString(item.Get("server").String()); server != "" && name != "" {
		name = server + "." + name
	}
	base := "Tool call"
	if item.Get("type").String() == "web_search" {
		base = "Web search"
	}
	title := base + "…"
	if phase == schema.PhaseCompleted {
		title = base
	}
	return schema.ActivityItem{
		Category: schema.ActivityTool,
		Phase:    phase,
		Title:    title,
		Detail:   name,
		Raw:      item.Raw,
	}
}

// fallbackTitle picks the most descriptive label available on an
// unrecognized payload.
func fallbackTitle(item gjson.Result, kind string) string {
	for _, field := range []string{"name", "label", "tool_name"} {
		if s := schema.CoerceString(item.Get(field).String()); s != "" {
			return s
		}
	}
	if cmd := commandLine(item); cmd != "" {
		return schema.FirstLine(cmd)
	}
	if p := schema.CoerceString(item.Get("path").String()); p != "" {
		return schema.TruncateLabel(p, 60)
	}
	return kind
}
