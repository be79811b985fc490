package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/fatih/color"

	"github.com/wesm/sessionctl/internal/continuation"
	"github.com/wesm/sessionctl/internal/parser"
	"github.com/wesm/sessionctl/internal/session"
	"github.com/wesm/sessionctl/internal/shelltools"
)

func runResume(args []string) int {
	var (
		shellMode  bool
		continueOn string
		instr      string
	)
	fs, err := parseFlags("resume", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&shellMode, "shell", false, "Print a cd+launch command line instead of attaching")
		fs.StringVar(&continueOn, "continue-on", "", "Continue this session onto a different agent")
		fs.StringVar(&instr, "instructions", "", "Extra instructions for the continuation's summary")
	})
	if err != nil {
		return exitCodeFor(err)
	}
	if fs.NArg() < 1 {
		fmt.Println("usage: sessionctl resume <session> [--shell] [--continue-on AGENT] [--instructions TEXT]")
		return 1
	}

	app, err := newAppContext()
	if err != nil {
		return exitCodeFor(err)
	}
	sess, err := resolveArg(app, fs.Arg(0))
	if err != nil {
		return exitCodeFor(err)
	}

	if continueOn != "" {
		return runContinuation(app, sess, parser.AgentType(continueOn), instr)
	}

	template := app.Config.LaunchTemplates[sess.Agent]
	if template == "" {
		return exitCodeFor(fmt.Errorf("no launch template configured for %s", sess.Agent))
	}
	argv, err := shelltools.BuildArgv(template, map[string]string{"model": app.Config.RolloverDefaultModel})
	if err != nil {
		return exitCodeFor(err)
	}

	if shellMode {
		fmt.Printf("cd %s && %s\n", shelltools.Quote(sess.Cwd), strings.Join(quoteArgv(argv), " "))
		return 0
	}

	stop := onInterrupt()
	defer stop()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = sess.Cwd
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return exitCodeFor(err)
	}
	return 0
}

func quoteArgv(argv []string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = shelltools.Quote(a)
	}
	return out
}

// runContinuation drives the Continuation Orchestrator for
// `resume --continue-on`, handing the freshly-spawned session off
// interactively once seeded per §4.4.
func runContinuation(app *appContext, sess *session.Session, target parser.AgentType, instructions string) int {
	orchestrator := continuation.New(app.Store, app.Config)

	stop := onInterrupt()
	defer stop()

	outcome, err := orchestrator.Run(context.Background(), continuation.Request{
		Session:            sess,
		TargetAgent:        target,
		CustomInstructions: instructions,
	})
	if err != nil {
		return exitCodeFor(err)
	}
	if outcome.Degraded {
		fmt.Fprintf(color.Error, "note: %s unavailable, continued on %s instead\n", target, outcome.EffectiveAgent)
	}
	fmt.Printf("%s %s\n", color.GreenString("continued:"), outcome.NewSession.FilePath)
	return 0
}
