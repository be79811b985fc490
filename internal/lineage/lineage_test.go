package lineage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wesm/sessionctl/internal/parser"
	"github.com/wesm/sessionctl/internal/session"
	"github.com/wesm/sessionctl/internal/store"
	"github.com/wesm/sessionctl/internal/testjsonl"
)

func writeSession(t *testing.T, root, project, name, content string) string {
	t.Helper()
	path := filepath.Join(root, project, name+".jsonl")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func conversation() string {
	return testjsonl.ClaudeUserJSON("continue where we left off", "2026-01-01T00:00:00Z") + "\n" +
		testjsonl.ClaudeAssistantJSON("sure", "2026-01-01T00:00:01Z") + "\n"
}

func trimmedFirstLine(parentFile string) string {
	return `{"type":"user","timestamp":"2026-01-02T00:00:00Z","trim_metadata":{"parent_file":"` + parentFile + `","tools_trimmed":1,"assistants_trimmed":0,"chars_saved":10,"est_tokens_saved":3},"message":{"content":"hi"}}`
}

func TestAncestors_SingleOriginalSessionIsItsOwnChain(t *testing.T) {
	root := t.TempDir()
	path := writeSession(t, root, "proj", "root", conversation())
	st := store.New(map[parser.AgentType][]string{parser.AgentClaude: {root}})

	sess, err := store.Classify(parser.AgentClaude, path)
	if err != nil {
		t.Fatal(err)
	}
	chain, err := Ancestors(st, sess)
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 1 || chain[0].FilePath != path {
		t.Fatalf("chain = %v, want [%s]", chain, path)
	}
}

func TestAncestors_FollowsTrimParentChainNewestFirst(t *testing.T) {
	root := t.TempDir()
	grandparent := writeSession(t, root, "proj", "grandparent", conversation())
	parent := writeSession(t, root, "proj", "parent", trimmedFirstLine(grandparent)+"\n"+testjsonl.ClaudeAssistantJSON("ack", "2026-01-02T00:00:01Z")+"\n")
	child := writeSession(t, root, "proj", "child", trimmedFirstLine(parent)+"\n"+testjsonl.ClaudeAssistantJSON("ack2", "2026-01-03T00:00:01Z")+"\n")

	st := store.New(map[parser.AgentType][]string{parser.AgentClaude: {root}})
	sess, err := store.Classify(parser.AgentClaude, child)
	if err != nil {
		t.Fatal(err)
	}

	chain, err := Ancestors(st, sess)
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 3 {
		t.Fatalf("chain length = %d, want 3", len(chain))
	}
	if chain[0].FilePath != child || chain[1].FilePath != parent || chain[2].FilePath != grandparent {
		t.Fatalf("chain order = %v, want [child parent grandparent]", chain)
	}
}

func TestAncestors_StopsAtUnreadableParentWithoutFailing(t *testing.T) {
	root := t.TempDir()
	missingParent := filepath.Join(root, "proj", "gone.jsonl")
	child := writeSession(t, root, "proj", "child", trimmedFirstLine(missingParent)+"\n"+testjsonl.ClaudeAssistantJSON("ack", "2026-01-02T00:00:01Z")+"\n")

	st := store.New(map[parser.AgentType][]string{parser.AgentClaude: {root}})
	sess, err := store.Classify(parser.AgentClaude, child)
	if err != nil {
		t.Fatal(err)
	}

	chain, err := Ancestors(st, sess)
	if err != nil {
		t.Fatalf("Ancestors should not fail on an unreadable parent: %v", err)
	}
	if len(chain) != 1 || chain[0].FilePath != child {
		t.Fatalf("chain = %v, want just [child]", chain)
	}
}

func TestOriginalOf_ReturnsRootOfChain(t *testing.T) {
	root := t.TempDir()
	grandparent := writeSession(t, root, "proj", "grandparent", conversation())
	child := writeSession(t, root, "proj", "child", trimmedFirstLine(grandparent)+"\n"+testjsonl.ClaudeAssistantJSON("ack", "2026-01-02T00:00:01Z")+"\n")

	st := store.New(map[parser.AgentType][]string{parser.AgentClaude: {root}})
	sess, err := store.Classify(parser.AgentClaude, child)
	if err != nil {
		t.Fatal(err)
	}

	original, err := OriginalOf(st, sess)
	if err != nil {
		t.Fatal(err)
	}
	if original.FilePath != grandparent {
		t.Errorf("OriginalOf = %q, want %q", original.FilePath, grandparent)
	}
}

func TestDescendants_FindsChildrenByParentFile(t *testing.T) {
	root := t.TempDir()
	parent := writeSession(t, root, "proj", "parent", conversation())
	child := writeSession(t, root, "proj", "child", trimmedFirstLine(parent)+"\n"+testjsonl.ClaudeAssistantJSON("ack", "2026-01-02T00:00:01Z")+"\n")
	writeSession(t, root, "proj", "unrelated", conversation())

	st := store.New(map[parser.AgentType][]string{parser.AgentClaude: {root}})
	sess, err := store.Classify(parser.AgentClaude, parent)
	if err != nil {
		t.Fatal(err)
	}

	children := Descendants(st, sess)
	if len(children) != 1 || children[0].FilePath != child {
		t.Fatalf("Descendants = %v, want [%s]", children, child)
	}
}

func TestFullChain_AnnotatesEachNodeWithItsDerivation(t *testing.T) {
	root := t.TempDir()
	grandparent := writeSession(t, root, "proj", "grandparent", conversation())
	child := writeSession(t, root, "proj", "child", trimmedFirstLine(grandparent)+"\n"+testjsonl.ClaudeAssistantJSON("ack", "2026-01-02T00:00:01Z")+"\n")

	st := store.New(map[parser.AgentType][]string{parser.AgentClaude: {root}})
	sess, err := store.Classify(parser.AgentClaude, child)
	if err != nil {
		t.Fatal(err)
	}

	nodes, err := FullChain(st, sess)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 {
		t.Fatalf("nodes = %v, want 2", nodes)
	}
	if nodes[0].Derivation != session.DerivationTrimmed {
		t.Errorf("nodes[0].Derivation = %q, want trimmed", nodes[0].Derivation)
	}
	if nodes[1].Derivation != session.DerivationOriginal {
		t.Errorf("nodes[1].Derivation = %q, want original", nodes[1].Derivation)
	}
}
