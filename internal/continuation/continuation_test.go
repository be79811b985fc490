package continuation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/wesm/sessionctl/internal/config"
	"github.com/wesm/sessionctl/internal/parser"
	"github.com/wesm/sessionctl/internal/session"
	"github.com/wesm/sessionctl/internal/store"
	"github.com/wesm/sessionctl/internal/testjsonl"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestBuildSummarizationPrompt_SingleFileInstructsParallelExploration(t *testing.T) {
	parent := &session.Session{FilePath: "/sessions/a.jsonl"}
	prompt := BuildSummarizationPrompt([]*session.Session{parent}, "")

	if !strings.Contains(prompt, "/sessions/a.jsonl") {
		t.Errorf("prompt missing file reference: %q", prompt)
	}
	if !strings.Contains(prompt, "parallel sub-agents") {
		t.Errorf("single-file prompt should instruct parallel exploration: %q", prompt)
	}
	if !strings.Contains(prompt, "state your understanding") {
		t.Errorf("prompt should require stating understanding back: %q", prompt)
	}
}

func TestBuildSummarizationPrompt_MultiFileListsOrderAndFlagsLatest(t *testing.T) {
	chain := []*session.Session{
		{FilePath: "/sessions/oldest.jsonl"},
		{FilePath: "/sessions/middle.jsonl"},
		{FilePath: "/sessions/latest.jsonl"},
	}
	prompt := BuildSummarizationPrompt(chain, "")

	oldestIdx := strings.Index(prompt, "oldest.jsonl")
	middleIdx := strings.Index(prompt, "middle.jsonl")
	latestIdx := strings.Index(prompt, "latest.jsonl")
	if oldestIdx < 0 || middleIdx < 0 || latestIdx < 0 {
		t.Fatalf("prompt missing one of the lineage files: %q", prompt)
	}
	if !(oldestIdx < middleIdx && middleIdx < latestIdx) {
		t.Errorf("lineage files not listed oldest-first: %q", prompt)
	}
	if !strings.Contains(prompt, "carries the current state") {
		t.Errorf("multi-file prompt should call out the latest file as authoritative: %q", prompt)
	}
}

func TestBuildSummarizationPrompt_AppendsCustomInstructionsDelimited(t *testing.T) {
	parent := &session.Session{FilePath: "/sessions/a.jsonl"}
	prompt := BuildSummarizationPrompt([]*session.Session{parent}, "focus on the retry bug")

	if !strings.Contains(prompt, "focus on the retry bug") {
		t.Errorf("custom instructions missing: %q", prompt)
	}
	if !strings.Contains(prompt, "--- custom instructions ---") {
		t.Errorf("custom instructions should be clearly delimited: %q", prompt)
	}
}

func TestOldestFirst_ReversesNewestFirstChain(t *testing.T) {
	newestFirst := []*session.Session{
		{ID: "c"}, {ID: "b"}, {ID: "a"},
	}
	got := oldestFirst(newestFirst)
	if got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "c" {
		t.Errorf("oldestFirst = %v, want [a b c]", got)
	}
}

func TestStampContinuation_SetsMetadataOnFirstEventOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.jsonl")
	writeFile(t, path,
		testjsonl.ClaudeUserJSON("ok", "2026-01-01T00:00:00Z")+"\n"+
			testjsonl.ClaudeAssistantJSON("got it", "2026-01-01T00:00:01Z")+"\n")

	parent := &session.Session{ID: "parent-123", FilePath: filepath.Join(dir, "parent.jsonl")}
	if err := stampContinuation(path, parent); err != nil {
		t.Fatalf("stampContinuation: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	first := gjson.Parse(lines[0])
	if first.Get("continue_metadata.parent_session_id").Str != "parent-123" {
		t.Errorf("parent_session_id = %q", first.Get("continue_metadata.parent_session_id").Str)
	}
	wantAbs, _ := filepath.Abs(parent.FilePath)
	if first.Get("continue_metadata.parent_session_file").Str != wantAbs {
		t.Errorf("parent_session_file = %q, want %q", first.Get("continue_metadata.parent_session_file").Str, wantAbs)
	}
	if first.Get("continue_metadata.continued_at").Str == "" {
		t.Error("continued_at should be set")
	}
	if first.Get("message.content").Str != "ok" {
		t.Errorf("first event's original content was disturbed: %q", first.Raw)
	}

	second := gjson.Parse(lines[1])
	if second.Get("continue_metadata").Exists() {
		t.Error("continue_metadata should only be stamped on the first event")
	}
}

func TestAvailable_FalseWhenNeitherPathNorConfigDirExists(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PATH", t.TempDir())

	cfg, err := config.Default()
	if err != nil {
		t.Fatal(err)
	}
	if Available(parser.AgentClaude, &cfg) {
		t.Error("Available should be false with no PATH entry or config dir")
	}
}

func TestAvailable_TrueWhenConfigDirExists(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PATH", t.TempDir())
	if err := os.MkdirAll(filepath.Join(home, ".claude"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Default()
	if err != nil {
		t.Fatal(err)
	}
	if !Available(parser.AgentClaude, &cfg) {
		t.Error("Available should be true when the agent's config directory exists")
	}
}

// fakeOrchestrator wires an Orchestrator whose Spawn stub drops a
// new session file into the store's root, simulating a successful
// external spawn, so Run can be exercised end to end without
// invoking a real agent CLI.
func fakeOrchestrator(t *testing.T, claudeRoot string) (*Orchestrator, *store.Store, *config.Config) {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatal(err)
	}
	cfg.AgentDirs = map[parser.AgentType][]string{
		parser.AgentClaude: {claudeRoot},
	}

	st := store.New(cfg.AgentDirs)
	o := New(st, &cfg)

	var injectedPrompt string
	var attached bool

	o.Spawn = func(ctx context.Context, agent parser.AgentType) error {
		writeFile(t, filepath.Join(claudeRoot, "proj", "new-session.jsonl"),
			testjsonl.ClaudeUserJSON("ok", "2026-01-02T00:00:00Z", claudeRoot)+"\n")
		return nil
	}
	o.Inject = func(ctx context.Context, agent parser.AgentType, prompt, model string) error {
		injectedPrompt = prompt
		return nil
	}
	o.Attach = func(ctx context.Context, agent parser.AgentType, sess *session.Session, model string) error {
		attached = true
		return nil
	}
	t.Cleanup(func() {
		if injectedPrompt == "" {
			t.Error("Inject was never called")
		}
		if !attached {
			t.Error("Attach was never called")
		}
	})
	return o, st, &cfg
}

func TestRun_StampsLineageAndMarksContinuedDerivation(t *testing.T) {
	claudeRoot := filepath.Join(t.TempDir(), "projects")
	parentPath := filepath.Join(claudeRoot, "proj", "parent.jsonl")
	writeFile(t, parentPath,
		testjsonl.ClaudeUserJSON("do the thing", "2026-01-01T00:00:00Z", claudeRoot)+"\n"+
			testjsonl.ClaudeAssistantJSON("done", "2026-01-01T00:00:01Z")+"\n")

	o, st, _ := fakeOrchestrator(t, claudeRoot)
	parent, err := store.Classify(parser.AgentClaude, parentPath)
	if err != nil {
		t.Fatalf("classifying parent: %v", err)
	}

	outcome, err := o.Run(context.Background(), Request{
		Session:     parent,
		TargetAgent: parser.AgentClaude,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if outcome.Degraded {
		t.Error("should not degrade when the requested agent matches the parent's")
	}
	if outcome.NewSession.Derivation != session.DerivationContinued {
		t.Errorf("derivation = %q, want continued", outcome.NewSession.Derivation)
	}
	if outcome.NewSession.ParentSessionID != parent.ID {
		t.Errorf("ParentSessionID = %q, want %q", outcome.NewSession.ParentSessionID, parent.ID)
	}

	data, err := os.ReadFile(outcome.NewSession.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	firstLine := strings.SplitN(string(data), "\n", 2)[0]
	if !gjson.Get(firstLine, "continue_metadata").Exists() {
		t.Error("new session's first event should carry continue_metadata")
	}

	_ = st // store already exercised via o.Store
}

func TestRun_DegradesToParentAgentWhenTargetUnavailable(t *testing.T) {
	claudeRoot := filepath.Join(t.TempDir(), "projects")
	parentPath := filepath.Join(claudeRoot, "proj", "parent.jsonl")
	writeFile(t, parentPath, testjsonl.ClaudeUserJSON("hi", "2026-01-01T00:00:00Z", claudeRoot)+"\n")

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PATH", t.TempDir()) // codex nowhere on PATH, no ~/.codex dir

	o, _, _ := fakeOrchestrator(t, claudeRoot)
	parent, err := store.Classify(parser.AgentClaude, parentPath)
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := o.Run(context.Background(), Request{
		Session:     parent,
		TargetAgent: parser.AgentCodex,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Degraded {
		t.Error("should degrade when codex is unavailable")
	}
	if outcome.EffectiveAgent != parser.AgentClaude {
		t.Errorf("EffectiveAgent = %q, want claude after degrade", outcome.EffectiveAgent)
	}
}
