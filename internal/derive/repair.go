package derive

import (
	"github.com/wesm/sessionctl/internal/parser"
)

// RepairResult reports what Repair found and fixed.
type RepairResult struct {
	Path         string
	CanonicalID  string
	LinesFixed   int
	AlreadyClean bool
}

// Repair enforces Invariant I2 on the file at path: every embedded
// session-identifier field must agree with the filename stem (I1).
// It rewrites only the lines that disagree, leaving everything else
// byte-for-byte untouched, and is idempotent — a second run against
// an already-repaired file reports AlreadyClean with zero fixes.
//
// Repair does not cascade into descendants: a derived session's own
// parent_file/trim_metadata pointers are left as they were, since
// those record which file was read at derivation time, not a claim
// about that file's current identity.
func Repair(path string) (*RepairResult, error) {
	agent := parser.DetectAgentFromPath(path)
	canonical := parser.SessionIDFromPath(agent, path)

	lines, err := readAllLines(path)
	if err != nil {
		return nil, err
	}

	fixed := 0
	out := make([]string, len(lines))
	for i, line := range lines {
		embedded := parser.EmbeddedSessionID(agent, line)
		if embedded == "" || embedded == canonical {
			out[i] = line
			continue
		}
		rewritten, err := parser.RewriteIdentity(agent, line, canonical)
		if err != nil {
			return nil, err
		}
		out[i] = rewritten
		fixed++
	}

	if fixed == 0 {
		return &RepairResult{Path: path, CanonicalID: canonical, AlreadyClean: true}, nil
	}

	if err := writeLines(path, out); err != nil {
		return nil, err
	}
	return &RepairResult{Path: path, CanonicalID: canonical, LinesFixed: fixed}, nil
}
