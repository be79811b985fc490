package analysis

import (
	"fmt"
	"strings"
)

// HelperFingerprint is the marker text §4.8 says identifies a
// helper session: a line containing this exact sentence is how
// listing/indexing code recognizes a session created solely to run
// an analysis or summarization prompt, in addition to the
// structured _helper marker key.
const HelperFingerprint = "sessionctl-internal-analysis-worker"

// BuildPrompt renders the chunk prompt shared by both worker modes:
// a delimited header, the chunk body (`LINE N [len=X]: [KIND]:
// <preview>` entries), and the required JSON output format.
func BuildPrompt(req ChunkRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "--- %s ---\n", HelperFingerprint)
	fmt.Fprintf(&b, "Chunk %d of %d.\n", req.ChunkIndex+1, req.TotalChunks)
	fmt.Fprintf(&b, "Protected-line policy: %s\n", req.ProtectedPolicy)
	fmt.Fprintf(&b, "Character threshold: %d\n", req.Threshold)
	if req.Instructions != "" {
		fmt.Fprintf(&b, "Custom instructions:\n%s\n", req.Instructions)
	}
	b.WriteString("---\n\n")

	for _, c := range req.Chunk {
		fmt.Fprintf(&b, "LINE %d [len=%d]: [%s]: %s\n\n", c.LineIndex, c.Length, c.Kind, c.Preview)
	}

	b.WriteString(
		"Respond with a JSON array of line numbers to trim, e.g. [12, 47, 203].\n" +
			"You may instead respond with verbose tuples: " +
			"[[line, \"rationale\", \"description\"], ...].\n",
	)
	return b.String()
}

// ParseVerdicts locates the outermost balanced `[...]` in text and
// parses it per §4.5's two accepted shapes, silently dropping
// malformed entries rather than failing the whole chunk.
func ParseVerdicts(text string) ChunkVerdicts {
	start := strings.IndexByte(text, '[')
	if start < 0 {
		return nil
	}
	end := matchingBracket(text, start)
	if end < 0 {
		return nil
	}
	return parseVerdictArray(text[start : end+1])
}

// matchingBracket returns the index of the ']' matching the '[' at
// start, tracking nesting and skipping bracket characters inside
// string literals.
func matchingBracket(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
