package derive

import (
	"github.com/wesm/sessionctl/internal/parser"
	"github.com/wesm/sessionctl/internal/session"
)

// Clone implements §4.3.4: trim with no trims applied. It copies
// the file, mints a new identifier, rewrites identity fields, and
// omits trim_metadata entirely, so the result records no lineage
// pointer back to parent and reads as an original session.
func Clone(parent *session.Session) (*TrimResult, error) {
	lines, err := readAllLines(parent.FilePath)
	if err != nil {
		return nil, err
	}

	newID := parser.NewUUID()
	outPath := parser.DerivedFileName(parent.Agent, parent.FilePath, newID)
	uuidMap := parser.BuildUUIDMap(parent.Agent, lines)

	out := make([]string, len(lines))
	for i, line := range lines {
		rewritten, err := parser.RewriteIdentity(parent.Agent, line, newID)
		if err != nil {
			return nil, err
		}
		rewritten, err = parser.RemapUUIDs(rewritten, uuidMap)
		if err != nil {
			return nil, err
		}
		out[i] = rewritten
	}

	if err := writeLines(outPath, out); err != nil {
		return nil, err
	}
	return &TrimResult{OutputPath: outPath, NewID: newID}, nil
}
