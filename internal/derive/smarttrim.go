package derive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/sjson"

	"github.com/wesm/sessionctl/internal/analysis"
	"github.com/wesm/sessionctl/internal/parser"
	"github.com/wesm/sessionctl/internal/session"
	"github.com/wesm/sessionctl/internal/sessionerr"
)

// SmartTrimOptions parameterizes the LLM-guided trim of §4.3.2.
type SmartTrimOptions struct {
	Worker       analysis.Worker
	ReserveHead  int
	ReserveTail  int
	ChunkSize    int
	Threshold    int // hard floor: a verdict below this many chars is dropped
	Instructions string
	ChunkTimeout time.Duration
	AnalyzedBy   string // model or CLI name recorded in trim_metadata
}

// SmartTrimResult reports what smart-trim produced, or that the
// session was already optimal (no verdicts survived).
type SmartTrimResult struct {
	*TrimResult
	AlreadyOptimal bool
}

// SmartTrim runs the candidate-pool → chunk → dispatch → verdict-union
// pipeline of §4.3.2 against parent and writes a new file with each
// planned line collapsed to a `{trimmed_line: true, ...}` placeholder.
func SmartTrim(ctx context.Context, parent *session.Session, opts SmartTrimOptions) (*SmartTrimResult, error) {
	lines, err := readAllLines(parent.FilePath)
	if err != nil {
		return nil, err
	}

	reserveTail := opts.ReserveTail
	if reserveTail == 0 {
		reserveTail = analysis.DefaultReserveTail
	}
	pool := analysis.BuildCandidatePool(parent.Agent, lines, opts.ReserveHead, reserveTail)
	if len(pool) == 0 {
		return &SmartTrimResult{AlreadyOptimal: true}, nil
	}

	chunks := analysis.Chunks(pool, opts.ChunkSize)
	verdicts := analysis.Dispatch(ctx, opts.Worker, chunks, opts.Threshold, opts.Instructions, opts.ChunkTimeout)

	plan := planFromVerdicts(parent.Agent, lines, verdicts, opts)
	if len(plan) == 0 {
		return &SmartTrimResult{AlreadyOptimal: true}, nil
	}

	newID := parser.NewUUID()
	outPath := parser.DerivedFileName(parent.Agent, parent.FilePath, newID)
	uuidMap := parser.BuildUUIDMap(parent.Agent, lines)

	var stats session.TrimStats
	out := make([]string, len(lines))
	for i, line := range lines {
		rewritten := line
		if pl, ok := plan[i]; ok {
			replaced, saved, err := collapseLine(line, i, pl.origLen)
			if err != nil {
				return nil, sessionerr.Wrap(sessionerr.IOError, "collapsing trimmed line", err)
			}
			rewritten = replaced
			stats.ToolsTrimmed++
			stats.CharsSaved += int64(saved)
		}
		rewritten, err = parser.RewriteIdentity(parent.Agent, rewritten, newID)
		if err != nil {
			return nil, sessionerr.Wrap(sessionerr.IOError, "rewriting identity", err)
		}
		rewritten, err = parser.RemapUUIDs(rewritten, uuidMap)
		if err != nil {
			return nil, sessionerr.Wrap(sessionerr.IOError, "remapping uuid", err)
		}
		out[i] = rewritten
	}
	stats.EstTokensSaved = stats.CharsSaved / 4

	if len(out) > 0 {
		out[0], err = injectSmartTrimMetadata(out[0], parent.FilePath, opts, stats)
		if err != nil {
			return nil, err
		}
	}

	if err := writeLines(outPath, out); err != nil {
		return nil, err
	}
	return &SmartTrimResult{
		TrimResult: &TrimResult{OutputPath: outPath, NewID: newID, Stats: stats},
	}, nil
}

type plannedLine struct {
	origLen int
}

// planFromVerdicts turns the union of worker verdicts into a
// line-index plan, dropping any verdict that targets a protected
// line or a line whose text falls below the hard floor, per §4.3.2
// step 5.
func planFromVerdicts(
	agent parser.AgentType, lines []string, verdicts analysis.ChunkVerdicts, opts SmartTrimOptions,
) map[int]plannedLine {
	plan := make(map[int]plannedLine)
	seen := make(map[int]bool)
	for _, v := range verdicts {
		if seen[v.LineIndex] || v.LineIndex < 0 || v.LineIndex >= len(lines) {
			continue
		}
		seen[v.LineIndex] = true

		ev := parser.ClassifyLine(agent, v.LineIndex, lines[v.LineIndex])
		if ev.Protected() {
			continue
		}
		if opts.Threshold > 0 && len(ev.Text) < opts.Threshold {
			continue
		}
		plan[v.LineIndex] = plannedLine{origLen: len(ev.Text)}
	}
	return plan
}

// collapseLine replaces the entire line with a `trimmed_line`
// marker object carrying its original length, discarding the rest
// of the event envelope outright — the placeholder shape §4.3.2
// specifies for smart-trimmed lines (as opposed to deterministic
// trim's truncated-in-place text, which keeps the envelope intact).
func collapseLine(line string, lineIndex, origLen int) (string, int, error) {
	marker := map[string]any{
		"trimmed_line":    true,
		"original_length": origLen,
		"line_number":     lineIndex + 1,
	}
	out, err := json.Marshal(marker)
	if err != nil {
		return line, 0, fmt.Errorf("marshaling trimmed_line marker: %w", err)
	}
	saved := len(line) - len(out)
	if saved < 0 {
		saved = 0
	}
	return string(out), saved, nil
}

func injectSmartTrimMetadata(
	firstLine, parentPath string, opts SmartTrimOptions, stats session.TrimStats,
) (string, error) {
	meta := map[string]any{
		"parent_file":      parentPath,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"analyzed_by":      opts.AnalyzedBy,
		"threshold":        opts.Threshold,
		"lines_trimmed":    stats.ToolsTrimmed,
		"chars_saved":      stats.CharsSaved,
		"est_tokens_saved": stats.EstTokensSaved,
	}
	out, err := sjson.Set(firstLine, "trim_metadata", meta)
	if err != nil {
		return firstLine, sessionerr.Wrap(sessionerr.IOError, "injecting trim_metadata", err)
	}
	return out, nil
}
