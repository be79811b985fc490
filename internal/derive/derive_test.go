package derive

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/wesm/sessionctl/internal/analysis"
	"github.com/wesm/sessionctl/internal/parser"
	"github.com/wesm/sessionctl/internal/session"
	"github.com/wesm/sessionctl/internal/testjsonl"
)

// claudeToolUseJSON returns a Claude assistant message with a single
// tool_use block, as a raw JSON string.
func claudeToolUseJSON(id, name, timestamp string) string {
	return testjsonl.ClaudeAssistantJSON([]map[string]any{
		{"type": "tool_use", "id": id, "name": name, "input": map[string]any{}},
	}, timestamp)
}

// claudeToolResultJSON returns a Claude user message with a single
// tool_result block referencing toolUseID, as a raw JSON string.
func claudeToolResultJSON(toolUseID, content, timestamp string) string {
	m := map[string]any{
		"type":      "user",
		"timestamp": timestamp,
		"message": map[string]any{
			"content": []map[string]any{
				{"type": "tool_result", "tool_use_id": toolUseID, "content": content},
			},
		},
	}
	b, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func codexFunctionCallOutput(name, output, timestamp string) string {
	return `{"type":"response_item","timestamp":"` + timestamp + `","payload":{"type":"function_call_output","name":"` + name + `","output":"` + output + `"}}`
}

func codexSessionMeta(id, timestamp string) string {
	return testjsonl.CodexSessionMetaJSON(id, "/home/u/proj", "codex", timestamp)
}

func TestTrim_TruncatesToolResultAboveThresholdAndInjectsMetadata(t *testing.T) {
	root := t.TempDir()
	longOutput := strings.Repeat("x", 300)
	path := filepath.Join(root, "rollout-2026-01-01T00-00-00-orig.jsonl")
	writeFixture(t, path,
		codexSessionMeta("orig", "2026-01-01T00:00:00Z")+"\n"+
			codexFunctionCallOutput("Bash", longOutput, "2026-01-01T00:00:01Z")+"\n")

	parent := &session.Session{Agent: parser.AgentCodex, FilePath: path}
	result, err := Trim(parent, TrimOptions{Threshold: 50})
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if result.Stats.ToolsTrimmed != 1 {
		t.Fatalf("ToolsTrimmed = %d, want 1", result.Stats.ToolsTrimmed)
	}
	if result.Stats.CharsSaved <= 0 {
		t.Errorf("CharsSaved = %d, want > 0", result.Stats.CharsSaved)
	}

	data, err := os.ReadFile(result.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	first := gjson.Parse(lines[0])
	if first.Get("payload.id").Str != result.NewID {
		t.Errorf("session_meta id not rewritten: %q, want %q", first.Get("payload.id").Str, result.NewID)
	}
	meta := first.Get("trim_metadata")
	if !meta.Exists() {
		t.Fatal("trim_metadata missing from first line")
	}
	if meta.Get("parent_file").Str != path {
		t.Errorf("trim_metadata.parent_file = %q, want %q", meta.Get("parent_file").Str, path)
	}
	if meta.Get("tools_trimmed").Int() != 1 {
		t.Errorf("trim_metadata.tools_trimmed = %d, want 1", meta.Get("tools_trimmed").Int())
	}

	second := gjson.Parse(lines[1])
	out := second.Get("payload.output").Str
	if !strings.Contains(out, "truncated; see") {
		t.Errorf("output not truncated: %q", out)
	}
	if len(out) >= len(longOutput) {
		t.Errorf("truncated output (%d chars) not shorter than original (%d)", len(out), len(longOutput))
	}
}

func TestTrim_ReplacesAssistantMessagesUnderFirstNPolicy(t *testing.T) {
	root := t.TempDir()
	longText := strings.Repeat("y", 300)
	path := filepath.Join(root, "orig.jsonl")
	writeFixture(t, path,
		testjsonl.ClaudeAssistantJSON(longText, "2026-01-01T00:00:00Z")+"\n"+
			testjsonl.ClaudeAssistantJSON(longText, "2026-01-01T00:00:01Z")+"\n")

	parent := &session.Session{Agent: parser.AgentClaude, FilePath: path}
	result, err := Trim(parent, TrimOptions{
		Threshold:       200,
		AssistantPolicy: AssistantPolicyFirstN,
		AssistantN:      1,
	})
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if result.Stats.AssistantsTrimmed != 1 {
		t.Fatalf("AssistantsTrimmed = %d, want 1", result.Stats.AssistantsTrimmed)
	}

	data, err := os.ReadFile(result.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	first := gjson.Get(lines[0], "message.content").Str
	if !strings.Contains(first, "assistant message trimmed") {
		t.Errorf("first assistant message not replaced: %q", first)
	}
	second := gjson.Get(lines[1], "message.content").Str
	if second != longText {
		t.Errorf("second assistant message should be untouched, got %q", second)
	}
}

func TestTrim_AllExceptLastNPolicyKeepsTail(t *testing.T) {
	root := t.TempDir()
	longText := strings.Repeat("z", 300)
	path := filepath.Join(root, "orig.jsonl")
	writeFixture(t, path,
		testjsonl.ClaudeAssistantJSON(longText, "2026-01-01T00:00:00Z")+"\n"+
			testjsonl.ClaudeAssistantJSON(longText, "2026-01-01T00:00:01Z")+"\n")

	parent := &session.Session{Agent: parser.AgentClaude, FilePath: path}
	result, err := Trim(parent, TrimOptions{
		Threshold:       200,
		AssistantPolicy: AssistantPolicyAllExceptLast,
		AssistantN:      1,
	})
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if result.Stats.AssistantsTrimmed != 1 {
		t.Fatalf("AssistantsTrimmed = %d, want 1", result.Stats.AssistantsTrimmed)
	}

	data, err := os.ReadFile(result.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if gjson.Get(lines[1], "message.content").Str != longText {
		t.Errorf("last assistant message should be kept intact")
	}
	if !strings.Contains(gjson.Get(lines[0], "message.content").Str, "trimmed") {
		t.Errorf("earlier assistant message should have been replaced")
	}
}

func TestTrim_ClaudeToolNamesResolvesToolUseIDToToolName(t *testing.T) {
	root := t.TempDir()
	longOutput := strings.Repeat("b", 300)
	path := filepath.Join(root, "orig.jsonl")
	writeFixture(t, path,
		claudeToolUseJSON("toolu_bash", "Bash", "2026-01-01T00:00:00Z")+"\n"+
			claudeToolResultJSON("toolu_bash", longOutput, "2026-01-01T00:00:01Z")+"\n"+
			claudeToolUseJSON("toolu_read", "Read", "2026-01-01T00:00:02Z")+"\n"+
			claudeToolResultJSON("toolu_read", longOutput, "2026-01-01T00:00:03Z")+"\n")

	parent := &session.Session{Agent: parser.AgentClaude, FilePath: path}
	result, err := Trim(parent, TrimOptions{ToolNames: []string{"Bash"}, Threshold: 50})
	require.NoError(t, err)
	require.Equal(t, 1, result.Stats.ToolsTrimmed, "only the Bash tool_result should be trimmed")

	data, err := os.ReadFile(result.OutputPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 4)

	bashLine := gjson.Parse(lines[1])
	require.Equal(t, gjson.String, bashLine.Get("message.content").Type, "trimmed content collapses to a plain string")
	bashResult := bashLine.Get("message.content").Str
	require.Contains(t, bashResult, "truncated; see", "Bash tool_result should be truncated")
	require.Less(t, len(bashResult), len(longOutput))

	readResult := gjson.Parse(lines[3]).Get(`message.content.0.content`).Str
	require.Equal(t, longOutput, readResult, "Read tool_result should be untouched")
}

func TestClone_CopiesWithNewIdentityAndNoMetadata(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "orig.jsonl")
	writeFixture(t, path,
		testjsonl.ClaudeUserWithSessionIDJSON("hello", "2026-01-01T00:00:00Z", "old-id")+"\n"+
			testjsonl.ClaudeAssistantJSON("hi back", "2026-01-01T00:00:01Z")+"\n")

	parent := &session.Session{Agent: parser.AgentClaude, FilePath: path}
	result, err := Clone(parent)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	data, err := os.ReadFile(result.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	first := gjson.Parse(lines[0])
	if first.Get("sessionId").Str != result.NewID {
		t.Errorf("sessionId = %q, want %q", first.Get("sessionId").Str, result.NewID)
	}
	if first.Get("trim_metadata").Exists() {
		t.Error("clone should carry no trim_metadata")
	}
	if first.Get("message.content").Str != "hello" {
		t.Errorf("clone should not alter message content: %q", first.Raw)
	}
}

// fakeSmartWorker returns the same fixed verdicts for every chunk it
// is handed, letting SmartTrim tests drive the plan deterministically
// without a real model call.
type fakeSmartWorker struct {
	verdicts analysis.ChunkVerdicts
}

func (w *fakeSmartWorker) Analyze(ctx context.Context, req analysis.ChunkRequest) (analysis.ChunkVerdicts, error) {
	return w.verdicts, nil
}

func TestSmartTrim_AlreadyOptimalWhenCandidatePoolEmpty(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "orig.jsonl")
	writeFixture(t, path, testjsonl.ClaudeAssistantJSON("short", "2026-01-01T00:00:00Z")+"\n")

	parent := &session.Session{Agent: parser.AgentClaude, FilePath: path}
	result, err := SmartTrim(context.Background(), parent, SmartTrimOptions{
		Worker:      &fakeSmartWorker{},
		ReserveTail: 1,
	})
	if err != nil {
		t.Fatalf("SmartTrim: %v", err)
	}
	if !result.AlreadyOptimal {
		t.Error("expected AlreadyOptimal with an empty candidate pool")
	}
	if result.TrimResult != nil {
		t.Errorf("TrimResult should be nil when already optimal, got %+v", result.TrimResult)
	}
}

func TestSmartTrim_CollapsesPlannedLineAndSkipsProtectedVerdict(t *testing.T) {
	root := t.TempDir()
	longText := strings.Repeat("w", 300)
	path := filepath.Join(root, "orig.jsonl")
	writeFixture(t, path,
		testjsonl.ClaudeAssistantJSON(longText, "2026-01-01T00:00:00Z")+"\n"+ // index 0: eligible, will be trimmed
			testjsonl.ClaudeUserJSON(longText, "2026-01-01T00:00:01Z")+"\n"+ // index 1: protected, verdict ignored
			testjsonl.ClaudeAssistantJSON(longText, "2026-01-01T00:00:02Z")+"\n") // index 2: excluded by reserve tail

	parent := &session.Session{Agent: parser.AgentClaude, FilePath: path}
	worker := &fakeSmartWorker{verdicts: analysis.ChunkVerdicts{
		{LineIndex: 0, Rationale: "stale"},
		{LineIndex: 1, Rationale: "should be dropped, user message is protected"},
	}}
	result, err := SmartTrim(context.Background(), parent, SmartTrimOptions{
		Worker:      worker,
		ReserveTail: 1,
		AnalyzedBy:  "test-model",
	})
	if err != nil {
		t.Fatalf("SmartTrim: %v", err)
	}
	if result.AlreadyOptimal {
		t.Fatal("should not be AlreadyOptimal when a verdict survives")
	}
	if result.Stats.ToolsTrimmed != 1 {
		t.Fatalf("ToolsTrimmed = %d, want 1 (only the non-protected verdict)", result.Stats.ToolsTrimmed)
	}

	data, err := os.ReadFile(result.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	first := gjson.Parse(lines[0])
	if !first.Get("trimmed_line").Bool() {
		t.Fatalf("line 0 should be collapsed wholesale to a trimmed_line marker: %s", first.Raw)
	}
	if first.Get("original_length").Int() != int64(len(longText)) {
		t.Errorf("original_length = %d, want %d", first.Get("original_length").Int(), len(longText))
	}
	if first.Get("type").Exists() {
		t.Errorf("collapsed line should carry no original envelope fields, got: %s", first.Raw)
	}

	second := gjson.Parse(lines[1])
	if second.Get("trimmed_line").Exists() {
		t.Error("protected user message should not have been collapsed")
	}

	meta := first.Get("trim_metadata")
	if meta.Get("analyzed_by").Str != "test-model" {
		t.Errorf("trim_metadata.analyzed_by = %q, want test-model", meta.Get("analyzed_by").Str)
	}
}

func TestRepair_FixesDisagreeingSessionID(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "canonical-id.jsonl")
	writeFixture(t, path,
		testjsonl.ClaudeUserWithSessionIDJSON("hi", "2026-01-01T00:00:00Z", "stale-id")+"\n"+
			testjsonl.ClaudeUserWithSessionIDJSON("hi again", "2026-01-01T00:00:01Z", "stale-id")+"\n")

	result, err := Repair(path)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if result.AlreadyClean {
		t.Error("should not be AlreadyClean when sessionId fields disagree")
	}
	if result.CanonicalID != "canonical-id" {
		t.Errorf("CanonicalID = %q, want canonical-id", result.CanonicalID)
	}
	if result.LinesFixed != 2 {
		t.Fatalf("LinesFixed = %d, want 2", result.LinesFixed)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if got := gjson.Get(line, "sessionId").Str; got != "canonical-id" {
			t.Errorf("sessionId = %q, want canonical-id", got)
		}
	}
}

func TestRepair_AlreadyCleanIsIdempotent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "canonical-id.jsonl")
	content := testjsonl.ClaudeUserWithSessionIDJSON("hi", "2026-01-01T00:00:00Z", "canonical-id") + "\n"
	writeFixture(t, path, content)

	result, err := Repair(path)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if !result.AlreadyClean {
		t.Error("should be AlreadyClean when sessionId already matches the filename")
	}
	if result.LinesFixed != 0 {
		t.Errorf("LinesFixed = %d, want 0", result.LinesFixed)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != content {
		t.Error("AlreadyClean repair should leave the file byte-for-byte untouched")
	}
}
