// Package testsession builds ready-to-use *session.Session fixtures
// backed by a real temp file, one layer above testjsonl's raw JSONL
// line builders: tests that need a Session to hand to derive/export/
// continuation do not each need to repeat the write-file-then-
// construct-struct boilerplate.
package testsession

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wesm/sessionctl/internal/parser"
	"github.com/wesm/sessionctl/internal/session"
)

// Write creates a session file named name under dir containing
// content, and returns a minimally-populated *session.Session
// pointing at it. Callers fill in any additional fields (Cwd,
// Derivation, ParentSessionID, ...) the test needs.
func Write(t *testing.T, dir, name string, agent parser.AgentType, content string) *session.Session {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return &session.Session{
		ID:         parser.SessionIDFromPath(agent, path),
		Agent:      agent,
		FilePath:   path,
		Derivation: session.DerivationOriginal,
	}
}

// Claude writes a Claude-dialect session fixture under t.TempDir(),
// using id as the filename stem, which is also the Claude dialect's
// canonical identifier (Invariant I1).
func Claude(t *testing.T, id, content string) *session.Session {
	t.Helper()
	return Write(t, t.TempDir(), id+".jsonl", parser.AgentClaude, content)
}

// Codex writes a Codex-dialect rollout fixture under t.TempDir(). id
// must be a real UUID (e.g. parser.NewUUID()) since the filename
// convention's identifier is extracted with a UUID regex, not taken
// verbatim from the name.
func Codex(t *testing.T, id, content string) *session.Session {
	t.Helper()
	name := "rollout-2026-01-01T00-00-00-" + id + ".jsonl"
	sess := Write(t, t.TempDir(), name, parser.AgentCodex, content)
	sess.ID = id
	return sess
}
