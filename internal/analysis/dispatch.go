package analysis

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// DefaultChunkTimeout is the per-chunk deadline of §4.5: "default
// 5-10 minutes".
const DefaultChunkTimeout = 7 * time.Minute

// Dispatch fans out one ChunkRequest per chunk to worker, bounded
// to GOMAXPROCS*2 concurrent goroutines (the teacher's worker-pool
// cap pattern, generalized from file-sync jobs to analysis chunks).
// A chunk whose worker errors or times out contributes no verdicts
// and does not fail the overall operation, per §4.5's cancellation
// policy.
func Dispatch(
	ctx context.Context, worker Worker, chunks [][]Candidate,
	threshold int, instructions string, timeout time.Duration,
) ChunkVerdicts {
	if timeout <= 0 {
		timeout = DefaultChunkTimeout
	}

	maxWorkers := runtime.GOMAXPROCS(0) * 2
	if maxWorkers > len(chunks) {
		maxWorkers = len(chunks)
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	type job struct {
		idx   int
		chunk []Candidate
	}
	jobs := make(chan job)
	results := make(chan ChunkVerdicts, len(chunks))

	var wg sync.WaitGroup
	for w := 0; w < maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				cctx, cancel := context.WithTimeout(ctx, timeout)
				req := ChunkRequest{
					Chunk:           j.chunk,
					ChunkIndex:      j.idx,
					TotalChunks:     len(chunks),
					Threshold:       threshold,
					Instructions:    instructions,
					ProtectedPolicy: "user messages, reasoning, metadata, sidechains, and the reserved head/tail window are never trimmed",
				}
				verdicts, err := worker.Analyze(cctx, req)
				cancel()
				if err != nil {
					// WorkerTimeout / WorkerReplyUnparseable: the
					// chunk contributes nothing, per §4.5.
					results <- nil
					continue
				}
				results <- verdicts
			}
		}()
	}

	go func() {
		for i, c := range chunks {
			jobs <- job{idx: i, chunk: c}
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var union ChunkVerdicts
	for v := range results {
		union = append(union, v...)
	}
	return union
}
