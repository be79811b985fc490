package analysis

import (
	"github.com/wesm/sessionctl/internal/parser"
)

// MinCandidateLength is the per-event extraction floor of §4.3.2
// step 2: events with less extractable text are dropped from the
// candidate pool entirely.
const MinCandidateLength = 200

// DefaultChunkSize is the per-worker chunk size C of §4.3.2.
const DefaultChunkSize = 100

// DefaultReserveTail is the default T (last-T-events protection).
const DefaultReserveTail = 10

// BuildCandidatePool classifies every line and returns the subset
// eligible for smart-trim: not protected, not within the first
// reserveHead or last reserveTail events, and with extractable text
// of at least MinCandidateLength characters.
func BuildCandidatePool(
	agent parser.AgentType, lines []string, reserveHead, reserveTail int,
) []Candidate {
	n := len(lines)
	var pool []Candidate
	for i, line := range lines {
		if i < reserveHead || i >= n-reserveTail {
			continue
		}
		ev := parser.ClassifyLine(agent, i, line)
		if ev.Protected() {
			continue
		}
		if len(ev.Text) < MinCandidateLength {
			continue
		}
		pool = append(pool, Candidate{
			LineIndex: i,
			Kind:      string(ev.Kind),
			Length:    len(ev.Text),
			Preview:   preview(ev.Text),
		})
	}
	return pool
}

func preview(s string) string {
	const max = 160
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// Chunks partitions pool into chunks of size chunkSize, in original
// order, per §4.3.2 step 3.
func Chunks(pool []Candidate, chunkSize int) [][]Candidate {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	var chunks [][]Candidate
	for i := 0; i < len(pool); i += chunkSize {
		end := i + chunkSize
		if end > len(pool) {
			end = len(pool)
		}
		chunks = append(chunks, pool[i:end])
	}
	return chunks
}
