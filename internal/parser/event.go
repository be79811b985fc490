package parser

import (
	"strings"

	"github.com/tidwall/gjson"
)

// EventKind classifies a single JSONL line for the purposes the
// core cares about: which lines are protected from trimming, which
// carry textual content worth feeding to the analysis pipeline, and
// which identify the session itself.
type EventKind string

const (
	EventUser        EventKind = "user"
	EventAssistant   EventKind = "assistant"
	EventToolUse     EventKind = "tool_use"
	EventToolResult  EventKind = "tool_result"
	EventReasoning   EventKind = "reasoning"
	EventSessionMeta EventKind = "session_meta"
	EventSnapshot    EventKind = "snapshot"
	EventQueueOp     EventKind = "queue_op"
	EventUnknown     EventKind = "unknown"
)

// Event is a single classified line from a session file. Raw
// preserves the exact source bytes so derivation can round-trip
// fields it doesn't understand; Text holds the extracted textual
// content used by length-threshold checks and the analysis
// pipeline.
type Event struct {
	LineIndex int
	Kind      EventKind
	Raw       string
	Text      string
	IsMeta    bool // isMeta / compact-summary / system-ish lines
	Sidechain bool
}

// Protected reports whether e is a kind that §4.3.2 step 1 forbids
// from ever appearing in a smart-trim plan: user messages, pure
// reasoning, session/system metadata, and sidechain markers. Tool
// kinds and assistant text are trimmable.
func (e Event) Protected() bool {
	switch e.Kind {
	case EventUser, EventReasoning, EventSessionMeta, EventSnapshot, EventQueueOp:
		return true
	}
	return e.Sidechain
}

// ClassifyLine classifies one raw JSONL line according to agent's
// dialect and extracts its textual content per §4.3.3.
func ClassifyLine(agent AgentType, lineIndex int, raw string) Event {
	switch agent {
	case AgentCodex:
		return classifyCodexLine(lineIndex, raw)
	default:
		return classifyClaudeLine(lineIndex, raw)
	}
}

func classifyClaudeLine(lineIndex int, raw string) Event {
	v := gjson.Parse(raw)
	typ := v.Get("type").Str

	e := Event{LineIndex: lineIndex, Raw: raw}
	e.IsMeta = v.Get("isMeta").Bool() || v.Get("isCompactSummary").Bool()
	e.Sidechain = v.Get("isSidechain").Bool()

	switch typ {
	case "user":
		e.Kind = EventUser
		e.Text = extractClaudeMessageText(v.Get("message.content"))
	case "assistant":
		e.Kind = EventAssistant
		text, _, hasToolUse, _, _ := ExtractTextContent(v.Get("message.content"))
		e.Text = text
		if hasToolUse {
			e.Kind = EventToolUse
		}
	case "queue-operation":
		e.Kind = EventQueueOp
	case "summary":
		e.Kind = EventSnapshot
	case "system":
		e.Kind = EventSessionMeta
	default:
		e.Kind = EventUnknown
	}

	// A standalone tool_result lives inside a "user" message's
	// content blocks in the Claude dialect; if that's all the
	// message carries, reclassify as a tool-result event and pull
	// its actual output text (ExtractTextContent only measures
	// tool_result length, it doesn't surface the text itself) so
	// trim can target it independently of plain user text.
	if typ == "user" {
		_, _, _, _, toolResults := ExtractTextContent(v.Get("message.content"))
		if len(toolResults) > 0 && strings.TrimSpace(e.Text) == "" {
			e.Kind = EventToolResult
			e.Text = ToolResultText(v.Get("message.content"))
		}
	}
	if v.Get("thinking").Exists() || v.Get("message.content.0.type").Str == "thinking" {
		if e.Kind == EventAssistant {
			e.Kind = EventReasoning
		}
	}
	return e
}

func extractClaudeMessageText(content gjson.Result) string {
	text, _, _, _, _ := ExtractTextContent(content)
	return text
}

func classifyCodexLine(lineIndex int, raw string) Event {
	v := gjson.Parse(raw)
	typ := v.Get("type").Str

	e := Event{LineIndex: lineIndex, Raw: raw}

	switch typ {
	case "session_meta":
		e.Kind = EventSessionMeta
	case "response_item":
		payload := v.Get("payload")
		switch payload.Get("type").Str {
		case "message":
			role := payload.Get("role").Str
			if role == "user" {
				e.Kind = EventUser
			} else {
				e.Kind = EventAssistant
			}
			e.Text = extractCodexContent(payload.Get("content"))
		case "reasoning":
			e.Kind = EventReasoning
			e.Text = extractCodexContent(payload.Get("content"))
		case "function_call":
			e.Kind = EventToolUse
			e.Text = payload.Get("arguments").Raw
		case "function_call_output":
			e.Kind = EventToolResult
			e.Text = payload.Get("output").Str
			if e.Text == "" {
				e.Text = payload.Get("output").Raw
			}
		case "custom_tool_call", "custom_tool_call_output":
			if strings.HasSuffix(payload.Get("type").Str, "_output") {
				e.Kind = EventToolResult
			} else {
				e.Kind = EventToolUse
			}
			e.Text = payload.Get("output").Str
		default:
			// Agent B's older, top-level layout (no "payload"
			// wrapper): message / function_call_output directly.
			if v.Get("message").Exists() {
				e.Kind = EventAssistant
				e.Text = extractCodexContent(v.Get("message"))
			} else if v.Get("output").Exists() {
				e.Kind = EventToolResult
				e.Text = v.Get("output").Str
			} else {
				e.Kind = EventUnknown
			}
		}
	default:
		e.Kind = EventUnknown
	}
	return e
}

func extractCodexContent(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.Str
	}
	var parts []string
	content.ForEach(func(_, block gjson.Result) bool {
		for _, key := range []string{"input_text", "output_text", "text"} {
			if s := block.Get(key).Str; s != "" {
				parts = append(parts, s)
				return true
			}
		}
		return true
	})
	return strings.Join(parts, "\n")
}
