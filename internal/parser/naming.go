package parser

import (
	"crypto/rand"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// NewUUID mints a random RFC 4122 v4 UUID string, used to mint
// fresh session identifiers for trim/smart-trim/clone output.
func NewUUID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf(
		"%x-%x-%x-%x-%x",
		b[0:4], b[4:6], b[6:8], b[8:10], b[10:16],
	)
}

// DerivedFileName builds the output filename for a new session in
// agent's native convention, placed next to parentPath (same
// per-project/per-date directory, per §4.3.1 rule 1).
func DerivedFileName(agent AgentType, parentPath, newID string) string {
	dir := filepath.Dir(parentPath)
	switch agent {
	case AgentCodex:
		ts := time.Now().UTC().Format("2006-01-02T15-04-05")
		return filepath.Join(dir, fmt.Sprintf("rollout-%s-%s.jsonl", ts, newID))
	default:
		return filepath.Join(dir, newID+".jsonl")
	}
}

// DetectAgentFromPath guesses which dialect produced a file purely
// from its name, for cases (continuation lineage) where a parent
// may belong to a different agent than its child.
func DetectAgentFromPath(path string) AgentType {
	if strings.HasPrefix(filepath.Base(path), "rollout-") {
		return AgentCodex
	}
	return AgentClaude
}

// SessionIDFromPath extracts the session identifier a filename
// encodes, per Invariant I1: the filename stem for Agent A, or the
// UUID embedded in the stem's timestamp convention for Agent B.
func SessionIDFromPath(agent AgentType, path string) string {
	name := filepath.Base(path)
	switch agent {
	case AgentCodex:
		return extractUUIDFromRollout(name)
	default:
		stem := name
		if ext := filepath.Ext(stem); ext == ".jsonl" {
			stem = stem[:len(stem)-len(ext)]
		}
		return stem
	}
}
