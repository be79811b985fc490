package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wesm/sessionctl/internal/parser"
)

// RenderLine renders one raw JSONL line of a session into its
// prefixed-body form per §4.6, or "" if the line carries nothing
// worth rendering (metadata, snapshot, empty text).
func RenderLine(agent parser.AgentType, lineIndex int, raw string) string {
	ev := parser.ClassifyLine(agent, lineIndex, raw)

	switch ev.Kind {
	case parser.EventUser:
		return prefixWrap("> ", ev.Text)
	case parser.EventAssistant, parser.EventReasoning:
		if ev.Text == "" {
			return ""
		}
		return prefixWrap("⏺ ", ev.Text)
	case parser.EventToolUse:
		return renderAssistantWithToolUse(agent, raw)
	case parser.EventToolResult:
		return renderToolResult(agent, raw, ev)
	default:
		return ""
	}
}

// prefixWrap puts prefix before the first line and aligns
// continuation lines flush with the prefix's own indentation (bare,
// per §4.6 — the prefix itself is not repeated).
func prefixWrap(prefix, text string) string {
	lines := strings.Split(text, "\n")
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(lines[0])
	for _, l := range lines[1:] {
		b.WriteByte('\n')
		b.WriteString(l)
	}
	return b.String()
}

// renderAssistantWithToolUse renders a turn that mixes prose with one
// or more tool calls. Codex surfaces tool calls as their own
// function_call events, so there's exactly one call per line; Claude
// packs text and tool_use blocks into a single message, so each
// block becomes its own output line joined by newlines.
func renderAssistantWithToolUse(agent parser.AgentType, raw string) string {
	if agent == parser.AgentCodex {
		name, input := toolUseNameAndInput(agent, raw)
		if name == "" {
			return ""
		}
		return fmt.Sprintf("⏺ %s(%s)", name, compactArgs(input))
	}

	var out []string
	gjson.Parse(raw).Get("message.content").ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").Str {
		case "text":
			if text := block.Get("text").Str; text != "" {
				out = append(out, prefixWrap("⏺ ", text))
			}
		case "tool_use":
			if name := block.Get("name").Str; name != "" {
				out = append(out, fmt.Sprintf("⏺ %s(%s)", name, compactArgs(block.Get("input"))))
			}
		}
		return true
	})
	return strings.Join(out, "\n")
}

func renderToolResult(agent parser.AgentType, raw string, ev parser.Event) string {
	text := toolResultText(agent, raw, ev)
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	var b strings.Builder
	b.WriteString("  ⎿  ")
	b.WriteString(lines[0])
	for _, l := range lines[1:] {
		b.WriteString("\n     ")
		b.WriteString(l)
	}
	return b.String()
}

// toolResultText pulls a tool result's actual output text. For the
// Codex dialect it returns Event.Text; for the Claude dialect it
// re-reads the text of the first "tool_result" content block from the
// raw line.
func toolResultText(agent parser.AgentType, raw string, ev parser.Event) string {
	if agent == parser.AgentCodex {
		return ev.Text
	}

	var text string
	gjson.Parse(raw).Get("message.content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").Str != "tool_result" {
			return true
		}
		content := block.Get("content")
		if content.Type == gjson.String {
			text = content.Str
		} else if content.IsArray() {
			var parts []string
			content.ForEach(func(_, b gjson.Result) bool {
				if t := b.Get("text").Str; t != "" {
					parts = append(parts, t)
				}
				return true
			})
			text = strings.Join(parts, "\n")
		}
		return false
	})
	return text
}

func toolUseNameAndInput(agent parser.AgentType, raw string) (string, gjson.Result) {
	v := gjson.Parse(raw)
	return v.Get("payload.name").Str, v.Get("payload.arguments")
}

// compactArgs renders a tool's input object per §4.6's compact-args
// rules: a single short string argument renders bare; multiple
// arguments render as "k=v, k=v" with quoting when a value contains
// a space or comma; non-string values fall back to JSON encoding.
func compactArgs(input gjson.Result) string {
	if !input.Exists() || !input.IsObject() {
		if input.Exists() {
			return input.Raw
		}
		return ""
	}

	type kv struct {
		key string
		val gjson.Result
	}
	var pairs []kv
	input.ForEach(func(k, v gjson.Result) bool {
		pairs = append(pairs, kv{k.Str, v})
		return true
	})
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	if len(pairs) == 1 && pairs[0].val.Type == gjson.String {
		return pairs[0].val.Str
	}

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = fmt.Sprintf("%s=%s", p.key, formatArgValue(p.val))
	}
	return strings.Join(parts, ", ")
}

func formatArgValue(v gjson.Result) string {
	if v.Type == gjson.String {
		return quoteIfNeeded(v.Str)
	}
	b, err := json.Marshal(v.Value())
	if err != nil {
		return v.Raw
	}
	return string(b)
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, " ,\t\n") {
		return strconv.Quote(s)
	}
	return s
}
