package testsession

import (
	"os"
	"testing"

	"github.com/wesm/sessionctl/internal/parser"
)

func TestClaude_FilenameStemBecomesID(t *testing.T) {
	sess := Claude(t, "my-session-id", `{"type":"user"}`+"\n")
	if sess.ID != "my-session-id" {
		t.Errorf("ID = %q, want my-session-id", sess.ID)
	}
	if sess.Agent != parser.AgentClaude {
		t.Errorf("Agent = %q, want claude", sess.Agent)
	}
	if data, err := os.ReadFile(sess.FilePath); err != nil || string(data) != `{"type":"user"}`+"\n" {
		t.Fatalf("file contents = %q, %v", data, err)
	}
}

func TestCodex_EmbedsUUIDInRolloutFilename(t *testing.T) {
	id := parser.NewUUID()
	sess := Codex(t, id, `{"type":"session_meta"}`+"\n")
	if sess.ID != id {
		t.Errorf("ID = %q, want %q", sess.ID, id)
	}
	if parser.SessionIDFromPath(parser.AgentCodex, sess.FilePath) != id {
		t.Errorf("filename does not encode a recoverable UUID: %s", sess.FilePath)
	}
}
