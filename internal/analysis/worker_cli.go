package analysis

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/wesm/sessionctl/internal/sessionerr"
	"github.com/wesm/sessionctl/internal/shelltools"
)

// CLIWorker is the subprocess worker mode of §4.5 Mode 2: the chunk
// prompt is written to a temp file and handed to a configured agent
// CLI running in non-interactive batch mode, the same launch-template
// mechanism the Continuation Orchestrator uses to spawn a fresh
// session, here pointed at a one-shot analysis invocation instead.
type CLIWorker struct {
	// CommandTemplate is a shlex-tokenized template such as
	// `claude -p {prompt_file}` or `codex exec --file {prompt_file}`.
	CommandTemplate string
}

func NewCLIWorker(commandTemplate string) *CLIWorker {
	return &CLIWorker{CommandTemplate: commandTemplate}
}

func (w *CLIWorker) Analyze(ctx context.Context, req ChunkRequest) (ChunkVerdicts, error) {
	prompt := BuildPrompt(req)

	f, err := os.CreateTemp("", "sessionctl-analysis-*.txt")
	if err != nil {
		return nil, sessionerr.Wrap(sessionerr.IOError, "creating chunk prompt file", err)
	}
	promptPath := f.Name()
	defer os.Remove(promptPath)

	if _, err := f.WriteString(prompt); err != nil {
		f.Close()
		return nil, sessionerr.Wrap(sessionerr.IOError, "writing chunk prompt file", err)
	}
	if err := f.Close(); err != nil {
		return nil, sessionerr.Wrap(sessionerr.IOError, "closing chunk prompt file", err)
	}

	argv, err := shelltools.BuildArgv(w.CommandTemplate, map[string]string{
		"prompt_file": promptPath,
	})
	if err != nil {
		return nil, sessionerr.Wrap(sessionerr.DependencyMissing, "building worker command", err)
	}
	if len(argv) == 0 {
		return nil, sessionerr.New(sessionerr.DependencyMissing, "worker command template is empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, sessionerr.Wrap(sessionerr.WorkerTimeout,
				fmt.Sprintf("chunk %d worker did not complete in time", req.ChunkIndex), ctx.Err())
		}
		return nil, sessionerr.Wrap(sessionerr.Unavailable,
			fmt.Sprintf("chunk %d: %s exited with error (%s)", req.ChunkIndex, argv[0], strings.TrimSpace(stderr.String())), err)
	}

	verdicts := ParseVerdicts(stdout.String())
	if verdicts == nil && strings.TrimSpace(stdout.String()) != "" {
		return nil, sessionerr.New(sessionerr.WorkerReplyUnparseable,
			fmt.Sprintf("chunk %d: worker output had no parseable verdict array", req.ChunkIndex))
	}
	return verdicts, nil
}
