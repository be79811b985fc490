package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/sessionctl/internal/parser"
	"github.com/wesm/sessionctl/internal/session"
	"github.com/wesm/sessionctl/internal/testjsonl"
)

func writeSessionFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write session file: %v", err)
	}
	return path
}

func claudeFixture() string {
	b := testjsonl.NewSessionBuilder()
	b.AddClaudeUser("2026-01-01T00:00:00Z", "fix the flaky retry test")
	b.AddRaw(testjsonl.ClaudeAssistantJSON([]map[string]any{
		{"type": "text", "text": "Looking at the retry logic now."},
		{"type": "tool_use", "name": "Bash", "input": map[string]any{"command": "go test ./..."}},
	}, "2026-01-01T00:00:01Z"))
	b.AddRaw(`{"type":"user","timestamp":"2026-01-01T00:00:02Z","message":{"content":[` +
		`{"type":"tool_result","tool_use_id":"t1","content":"ok   1 passed"}]}}`)
	return b.String()
}

func newTestSession(t *testing.T, dir string) *session.Session {
	t.Helper()
	path := writeSessionFile(t, dir, "abc123.jsonl", claudeFixture())
	return &session.Session{
		ID:        "abc123",
		Agent:     parser.AgentClaude,
		FilePath:  path,
		Cwd:       dir,
		Project:   "sessionctl",
		LineCount: 3,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRender_ProducesFrontMatterAndPrefixedBody(t *testing.T) {
	dir := t.TempDir()
	sess := newTestSession(t, dir)

	out, err := Render(sess, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "---\n") {
		t.Fatalf("output does not start with front-matter delimiter:\n%s", out)
	}
	if !strings.Contains(out, "session_id: abc123") {
		t.Errorf("missing session_id in front matter:\n%s", out)
	}
	if !strings.Contains(out, "> fix the flaky retry test") {
		t.Errorf("missing rendered user line:\n%s", out)
	}
	if !strings.Contains(out, "⏺ Looking at the retry logic now.") {
		t.Errorf("missing rendered assistant line:\n%s", out)
	}
	if !strings.Contains(out, "⏺ Bash(go test ./...)") {
		t.Errorf("missing rendered tool-use line:\n%s", out)
	}
}

func TestRender_IsDeterministic(t *testing.T) {
	dir := t.TempDir()
	sess := newTestSession(t, dir)

	a, err := Render(sess, "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Render(sess, "")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("Render is not deterministic across calls")
	}
}

func TestParse_RoundTripsRenderedFrontMatter(t *testing.T) {
	dir := t.TempDir()
	sess := newTestSession(t, dir)
	sess.GitBranch = "main"
	sess.Derivation = session.DerivationTrimmed
	sess.TrimStats = &session.TrimStats{ToolsTrimmed: 2, CharsSaved: 900}

	rendered, err := Render(sess, "original-id")
	if err != nil {
		t.Fatal(err)
	}

	front, body, err := Parse(rendered)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := FrontMatter{
		SessionID:         sess.ID,
		Agent:             string(sess.Agent),
		FilePath:          sess.FilePath,
		Project:           sess.Project,
		Branch:            sess.GitBranch,
		Cwd:               sess.Cwd,
		Lines:             sess.LineCount,
		Created:           sess.CreatedAt.Format(time.RFC3339),
		DerivationType:    string(sess.Derivation),
		OriginalSessionID: "original-id",
		TrimStats:         sess.TrimStats,
	}
	if diff := cmp.Diff(want, front); diff != "" {
		t.Errorf("front matter round-trip mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(body, "fix the flaky retry test") {
		t.Errorf("parsed body missing expected content:\n%s", body)
	}
}

func TestExport_SkipsWhenDestinationUpToDate(t *testing.T) {
	dir := t.TempDir()
	sess := newTestSession(t, dir)
	dest := filepath.Join(dir, "out.txt")

	if _, err := Export(sess, "", dest, false); err != nil {
		t.Fatal(err)
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(dest, future, future); err != nil {
		t.Fatal(err)
	}

	res, err := Export(sess, "", dest, false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped {
		t.Error("expected export to be skipped when destination is newer than source")
	}
}

func TestExport_ForceOverridesSkip(t *testing.T) {
	dir := t.TempDir()
	sess := newTestSession(t, dir)
	dest := filepath.Join(dir, "out.txt")

	if _, err := Export(sess, "", dest, false); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(dest, future, future); err != nil {
		t.Fatal(err)
	}

	res, err := Export(sess, "", dest, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped {
		t.Error("force=true should never skip")
	}
}

func TestDestinationPath_RootsUnderSessionCwd(t *testing.T) {
	sess := &session.Session{ID: "xyz", Agent: parser.AgentClaude, Cwd: "/work/proj"}
	got := DestinationPath(sess)
	want := filepath.Join("/work/proj", "exported-sessions", "claude", "xyz.txt")
	if got != want {
		t.Errorf("DestinationPath = %q, want %q", got, want)
	}
}

func TestExportAll_TalliesFailuresWithoutAbortingRun(t *testing.T) {
	dir := t.TempDir()
	good := newTestSession(t, dir)
	bad := &session.Session{ID: "missing", Agent: parser.AgentClaude, FilePath: filepath.Join(dir, "nope.jsonl"), Cwd: dir}

	bulk := ExportAll([]*session.Session{good, bad}, nil, false)
	if bulk.Exported != 1 || bulk.Failed != 1 {
		t.Errorf("ExportAll = %+v, want 1 exported, 1 failed", bulk)
	}
	if len(bulk.Diagnostics) != 1 {
		t.Errorf("expected one diagnostic, got %v", bulk.Diagnostics)
	}
}

func TestRenderLine_ToolResultWrapsWithAlignedIndent(t *testing.T) {
	line := `{"type":"user","timestamp":"2026-01-01T00:00:00Z","message":{"content":[` +
		`{"type":"tool_result","tool_use_id":"t1","content":"line one\nline two"}]}}`
	rendered := RenderLine(parser.AgentClaude, 0, line)
	if !strings.HasPrefix(rendered, "  ⎿  line one") {
		t.Errorf("tool result rendering = %q", rendered)
	}
	if !strings.Contains(rendered, "\n     line two") {
		t.Errorf("continuation line not aligned: %q", rendered)
	}
}

func TestCompactArgs_SingleStringArgRendersBare(t *testing.T) {
	line := testjsonl.ClaudeAssistantJSON([]map[string]any{
		{"type": "tool_use", "name": "Read", "input": map[string]any{"file_path": "main.go"}},
	}, "2026-01-01T00:00:00Z")
	rendered := RenderLine(parser.AgentClaude, 0, line)
	if rendered != "⏺ Read(main.go)" {
		t.Errorf("RenderLine = %q, want ⏺ Read(main.go)", rendered)
	}
}

func TestCompactArgs_MultiArgQuotesSpacedValues(t *testing.T) {
	line := testjsonl.ClaudeAssistantJSON([]map[string]any{
		{"type": "tool_use", "name": "Grep", "input": map[string]any{"pattern": "foo bar", "path": "."}},
	}, "2026-01-01T00:00:00Z")
	rendered := RenderLine(parser.AgentClaude, 0, line)
	if rendered != `⏺ Grep(path=., pattern="foo bar")` {
		t.Errorf("RenderLine = %q", rendered)
	}
}
