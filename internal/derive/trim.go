// Package derive implements the Derivation Engine (§4.3):
// deterministic trim, LLM-guided smart-trim, and clone, each
// producing a new session file with correct cross-references,
// rewritten identity, and injected parent metadata.
package derive

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/wesm/sessionctl/internal/parser"
	"github.com/wesm/sessionctl/internal/session"
	"github.com/wesm/sessionctl/internal/sessionerr"
)

// AssistantPolicy selects which assistant messages trim replaces.
type AssistantPolicy string

const (
	AssistantPolicyNone          AssistantPolicy = "none"
	AssistantPolicyFirstN        AssistantPolicy = "first_n"
	AssistantPolicyAllExceptLast AssistantPolicy = "all_except_last_n"
)

// TrimOptions parameterizes a deterministic trim per §4.3.1.
type TrimOptions struct {
	ToolNames       []string // empty = all tools
	Threshold       int      // T: character threshold
	AssistantPolicy AssistantPolicy
	AssistantN      int
}

// TrimResult reports what a trim/smart-trim/clone produced.
type TrimResult struct {
	OutputPath string
	NewID      string
	Stats      session.TrimStats
}

const truncationNoticeFmt = "\n[... truncated; see %s line %d for full content]"

// Trim performs the deterministic transform of §4.3.1 against the
// parent session and writes a new file alongside it.
func Trim(parent *session.Session, opts TrimOptions) (*TrimResult, error) {
	lines, err := readAllLines(parent.FilePath)
	if err != nil {
		return nil, err
	}

	newID := parser.NewUUID()
	outPath := parser.DerivedFileName(parent.Agent, parent.FilePath, newID)

	targets := make(map[string]bool, len(opts.ToolNames))
	for _, t := range opts.ToolNames {
		targets[t] = true
	}

	assistantIdx := selectAssistantIndices(parent.Agent, lines, opts)
	toolNames := buildToolNameIndex(parent.Agent, lines)
	uuidMap := parser.BuildUUIDMap(parent.Agent, lines)

	var stats session.TrimStats
	out := make([]string, len(lines))
	for i, line := range lines {
		ev := parser.ClassifyLine(parent.Agent, i, line)
		rewritten := line

		switch {
		case ev.Kind == parser.EventToolResult &&
			matchesToolTarget(parent.Agent, line, toolNames, targets) &&
			len(ev.Text) >= opts.Threshold && opts.Threshold > 0:
			replaced, saved, ok := truncateToolResult(parent.Agent, line, ev, opts.Threshold, parent.FilePath, i)
			if ok {
				rewritten = replaced
				stats.ToolsTrimmed++
				stats.CharsSaved += int64(saved)
			}
		case ev.Kind == parser.EventAssistant && assistantIdx[i] &&
			len(ev.Text) >= opts.Threshold:
			replaced, saved := replaceAssistantMessage(parent.Agent, line, parent.FilePath, i, len(ev.Text))
			rewritten = replaced
			stats.AssistantsTrimmed++
			stats.CharsSaved += int64(saved)
		}

		rewritten, err = parser.RewriteIdentity(parent.Agent, rewritten, newID)
		if err != nil {
			return nil, sessionerr.Wrap(sessionerr.IOError, "rewriting identity", err)
		}
		rewritten, err = parser.RemapUUIDs(rewritten, uuidMap)
		if err != nil {
			return nil, sessionerr.Wrap(sessionerr.IOError, "remapping uuid", err)
		}
		out[i] = rewritten
	}

	stats.EstTokensSaved = stats.CharsSaved / 4

	if len(out) > 0 {
		out[0], err = injectTrimMetadata(out[0], parent.FilePath, opts, stats)
		if err != nil {
			return nil, err
		}
	}

	if err := writeLines(outPath, out); err != nil {
		return nil, err
	}
	return &TrimResult{OutputPath: outPath, NewID: newID, Stats: stats}, nil
}

func matchesToolTarget(agent parser.AgentType, line string, toolNames map[string]string, targets map[string]bool) bool {
	if len(targets) == 0 {
		return true
	}
	return targets[toolNameOf(agent, line, toolNames)]
}

// buildToolNameIndex pre-scans a Claude-dialect session for tool_use
// blocks and returns a tool_use_id -> tool name map, since a
// tool_result line only carries the id, not the name; the name lives
// on the earlier assistant message's tool_use block. Returns nil for
// the Codex dialect, whose function_call_output lines already carry
// the tool name via the preceding function_call's payload.name.
func buildToolNameIndex(agent parser.AgentType, lines []string) map[string]string {
	if agent != parser.AgentClaude {
		return nil
	}
	index := make(map[string]string)
	for _, line := range lines {
		if gjson.Get(line, "type").Str != "assistant" {
			continue
		}
		_, _, _, toolCalls, _ := parser.ExtractTextContent(gjson.Get(line, "message.content"))
		for _, tc := range toolCalls {
			if tc.ToolUseID != "" {
				index[tc.ToolUseID] = tc.ToolName
			}
		}
	}
	return index
}

func toolNameOf(agent parser.AgentType, line string, toolNames map[string]string) string {
	v := gjson.Parse(line)
	if agent == parser.AgentCodex {
		return v.Get("payload.name").Str
	}
	tuid := v.Get(`message.content.#(type=="tool_result").tool_use_id`).Str
	return toolNames[tuid]
}

// truncateToolResult replaces a tool-result's textual content with
// its first T characters plus a truncation notice, per §4.3.1 rule
//4. If that would not save space, the original is returned
// unchanged (ok=false).
func truncateToolResult(
	agent parser.AgentType, line string, ev parser.Event,
	threshold int, parentPath string, lineNum int,
) (string, int, bool) {
	notice := fmt.Sprintf(truncationNoticeFmt, parentPath, lineNum+1)
	if threshold >= len(ev.Text) {
		return line, 0, false
	}
	newText := ev.Text[:threshold] + notice
	if len(newText) >= len(ev.Text) {
		return line, 0, false
	}

	path := contentPathFor(agent, ev.Kind)
	out, err := sjson.Set(line, path, newText)
	if err != nil {
		return line, 0, false
	}
	return out, len(ev.Text) - len(newText), true
}

func replaceAssistantMessage(
	agent parser.AgentType, line, parentPath string, lineNum, origLen int,
) (string, int) {
	placeholder := fmt.Sprintf(
		"[assistant message trimmed; see %s line %d for full content]",
		parentPath, lineNum+1,
	)
	path := contentPathFor(agent, parser.EventAssistant)
	out, err := sjson.Set(line, path, placeholder)
	if err != nil {
		return line, 0
	}
	saved := origLen - len(placeholder)
	if saved < 0 {
		saved = 0
	}
	return out, saved
}

// contentPathFor returns the gjson/sjson path to the primary
// textual field trim rewrites wholesale. In the Claude dialect that is
// the whole message.content value, so an array of content blocks
// there is replaced by a single plain string.
func contentPathFor(agent parser.AgentType, kind parser.EventKind) string {
	if agent == parser.AgentCodex {
		if kind == parser.EventToolResult {
			return "payload.output"
		}
		return "payload.content"
	}
	return "message.content"
}

func selectAssistantIndices(
	agent parser.AgentType, lines []string, opts TrimOptions,
) map[int]bool {
	if opts.AssistantPolicy == "" || opts.AssistantPolicy == AssistantPolicyNone {
		return nil
	}
	var candidates []int
	for i, line := range lines {
		ev := parser.ClassifyLine(agent, i, line)
		if ev.Kind == parser.EventAssistant && len(ev.Text) >= opts.Threshold {
			candidates = append(candidates, i)
		}
	}

	n := opts.AssistantN
	if n > len(candidates) {
		n = len(candidates)
	}

	selected := make(map[int]bool)
	switch opts.AssistantPolicy {
	case AssistantPolicyFirstN:
		for _, idx := range candidates[:n] {
			selected[idx] = true
		}
	case AssistantPolicyAllExceptLast:
		keep := n
		cut := len(candidates) - keep
		if cut < 0 {
			cut = 0
		}
		for _, idx := range candidates[:cut] {
			selected[idx] = true
		}
	}
	return selected
}

func injectTrimMetadata(
	firstLine, parentPath string, opts TrimOptions, stats session.TrimStats,
) (string, error) {
	meta := map[string]any{
		"parent_file":        parentPath,
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"tool_names":         opts.ToolNames,
		"threshold":          opts.Threshold,
		"assistant_policy":   string(opts.AssistantPolicy),
		"assistant_n":        opts.AssistantN,
		"tools_trimmed":      stats.ToolsTrimmed,
		"assistants_trimmed": stats.AssistantsTrimmed,
		"chars_saved":        stats.CharsSaved,
		"est_tokens_saved":   stats.EstTokensSaved,
	}
	out, err := sjson.Set(firstLine, "trim_metadata", meta)
	if err != nil {
		return firstLine, sessionerr.Wrap(sessionerr.IOError, "injecting trim_metadata", err)
	}
	return out, nil
}

func readAllLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sessionerr.Wrap(sessionerr.IOError, "open "+path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, sessionerr.Wrap(sessionerr.IOError, "reading "+path, err)
	}
	return lines, nil
}

// writeLines writes to a temp path and renames into place, per the
// §5 concurrency rule: writes are to a temp path then moved, so a
// Ctrl-C mid-write never leaves a half-written file at the final
// path.
func writeLines(path string, lines []string) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return sessionerr.Wrap(sessionerr.IOError, "creating "+tmp, err)
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line); err != nil {
			f.Close()
			os.Remove(tmp)
			return sessionerr.Wrap(sessionerr.IOError, "writing "+tmp, err)
		}
		if _, err := w.WriteString("\n"); err != nil {
			f.Close()
			os.Remove(tmp)
			return sessionerr.Wrap(sessionerr.IOError, "writing "+tmp, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return sessionerr.Wrap(sessionerr.IOError, "flushing "+tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return sessionerr.Wrap(sessionerr.IOError, "closing "+tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return sessionerr.Wrap(sessionerr.IOError, "renaming into place", err)
	}
	return nil
}
