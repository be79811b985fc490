// Package analysis implements the Analysis Pipeline (§4.5):
// partitioning a session's trimmable candidate events into chunks
// and dispatching each to an LLM worker — either an in-process SDK
// client or a subprocess CLI — merging their verdicts into a single
// trim plan.
package analysis

import "context"

// Candidate is one trimmable event offered to a worker.
type Candidate struct {
	LineIndex int
	Kind      string
	Length    int
	Preview   string
}

// ChunkRequest is everything one worker invocation needs, per the
// prompt shape in §4.5.
type ChunkRequest struct {
	Chunk           []Candidate
	ChunkIndex      int
	TotalChunks     int
	Threshold       int
	Instructions    string
	ProtectedPolicy string
}

// Verdict is one line the worker recommends for the trim plan.
type Verdict struct {
	LineIndex   int
	Rationale   string
	Description string
}

// ChunkVerdicts is the result of analyzing one chunk.
type ChunkVerdicts []Verdict

// Worker is the contract both execution modes of §4.5 satisfy.
type Worker interface {
	Analyze(ctx context.Context, req ChunkRequest) (ChunkVerdicts, error)
}
