// Command sessionctl finds, trims, exports, and resumes coding-agent
// conversation logs across the Claude Code and Codex on-disk
// dialects.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/fatih/color"

	"github.com/wesm/sessionctl/internal/config"
	"github.com/wesm/sessionctl/internal/logging"
	"github.com/wesm/sessionctl/internal/sessionerr"
	"github.com/wesm/sessionctl/internal/store"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "find":
		return runFind(rest, nil)
	case "find-claude":
		return runFind(rest, []string{"claude"})
	case "find-codex":
		return runFind(rest, []string{"codex"})
	case "find-original":
		return runFindDerivation(rest, "original")
	case "find-derived":
		return runFindDerivation(rest, "derived")
	case "menu":
		return runMenu(rest)
	case "trim":
		return runTrim(rest)
	case "smart-trim":
		return runSmartTrim(rest)
	case "clone":
		return runClone(rest)
	case "export":
		return runExport(rest, nil)
	case "export-claude":
		return runExport(rest, []string{"claude"})
	case "export-codex":
		return runExport(rest, []string{"codex"})
	case "search":
		return runSearch(rest)
	case "delete":
		return runDelete(rest)
	case "resume":
		return runResume(rest)
	case "repair":
		return runRepair(rest)
	case "gc":
		return runGC(rest)
	case "version":
		return runVersion(rest)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "sessionctl: unknown command %q\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`sessionctl - manage Claude Code and Codex conversation logs

Usage:
  sessionctl find [--agent NAME] [--project CWD] [--keyword WORD...]
  sessionctl find-claude | find-codex         Agent-scoped find
  sessionctl find-original | find-derived     Derivation-scoped find
  sessionctl menu [--project CWD]             Print candidates, non-interactive
  sessionctl trim <session> [--tool NAME...] [--threshold N]
  sessionctl smart-trim <session> [--threshold N] [--instructions TEXT]
  sessionctl clone <session>
  sessionctl export <session> [--out PATH] [--force]
  sessionctl export-claude | export-codex [--force]
  sessionctl search <query> [--project NAME] [--limit N]
  sessionctl delete <session> [--yes]
  sessionctl resume <session> [--shell] [--continue-on AGENT] [--instructions TEXT]
  sessionctl repair <path>
  sessionctl gc [--dry-run]
  sessionctl version
  sessionctl help

Flags common to most commands:
  --shell     Emit a 'cd'+launch command line to stdout for eval,
              instead of attaching interactively.

Environment variables:
  CLAUDE_CONFIG_DIR     Claude Code projects directory override
  CODEX_CONFIG_DIR      Codex sessions directory override
  SESSIONCTL_DATA_DIR   State directory (default ~/.sessionctl)
  ANTHROPIC_API_KEY     Used by the smart-trim analysis worker
  OPENAI_API_KEY        Used by the smart-trim analysis worker

Data is stored in ~/.sessionctl/ by default.
`)
}

// appContext bundles the config and store every subcommand needs,
// built once at entry per §9's "no package-level globals" note.
type appContext struct {
	Config *config.Config
	Store  *store.Store
	Log    *log.Logger
}

func newAppContext() (*appContext, error) {
	cfg, err := config.LoadMinimal()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	logger, closer, err := logging.Setup(cfg.StateDir())
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	_ = closer // intentionally leaked for the process lifetime, closed by OS on exit

	st := store.New(cfg.AgentDirs)
	return &appContext{Config: &cfg, Store: st, Log: logger}, nil
}

// exitCodeFor maps a sessionerr.Kind (or a generic error) onto the
// process's exit code: 0 success, 1 general failure. Ctrl-C is
// handled separately by the caller via onInterrupt.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var se *sessionerr.Error
	if errors.As(err, &se) {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), se)
		if se.Kind == sessionerr.Ambiguous {
			for _, c := range se.Candidates {
				fmt.Fprintf(os.Stderr, "  %s\n", c)
			}
		}
		return 1
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), err)
	return 1
}

func parseFlags(name string, args []string, register func(fs *flag.FlagSet)) (*flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if register != nil {
		register(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs, nil
}

// onInterrupt installs a SIGINT handler that exits 130, so a blocking
// operation (spawn, interactive attach) ends cleanly instead of
// leaving a dangling subprocess. The returned stop func ends the
// handler's goroutine.
func onInterrupt() (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\ninterrupted")
			os.Exit(130)
		case <-done:
		}
	}()
	return func() { close(done) }
}
