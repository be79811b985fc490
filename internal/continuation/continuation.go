// Package continuation implements the Continuation Orchestrator
// (§4.4): spawning a fresh session on a target agent, seeding it
// with a lineage-bounded summary of a session being continued, and
// handing the user off to it interactively.
package continuation

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wesm/sessionctl/internal/config"
	"github.com/wesm/sessionctl/internal/lineage"
	"github.com/wesm/sessionctl/internal/parser"
	"github.com/wesm/sessionctl/internal/session"
	"github.com/wesm/sessionctl/internal/sessionerr"
	"github.com/wesm/sessionctl/internal/shelltools"
	"github.com/wesm/sessionctl/internal/store"
)

// dummySeedMessage is sent to mint the fresh session's identifier
// in step 2, before the real summarization prompt is injected.
const dummySeedMessage = "ok"

// Orchestrator runs the continuation algorithm against a store and
// configuration. The three process-boundary steps (spawn, inject,
// attach) are exposed as overridable funcs, the same seam the
// Analysis Pipeline's Worker interface gives its CLI/SDK split, so
// tests can exercise the algorithm without shelling out to a real
// agent CLI.
type Orchestrator struct {
	Store  *store.Store
	Config *config.Config

	// Spawn runs step 2: mint a fresh session on agent. Defaults to
	// launching the agent under the user's login shell.
	Spawn func(ctx context.Context, agent parser.AgentType) error

	// Inject runs step 4: deliver prompt to the new session's agent
	// non-interactively. Defaults to the agent's batch CLI mode.
	Inject func(ctx context.Context, agent parser.AgentType, prompt, model string) error

	// Attach runs the interactive handoff (step 6). Defaults to
	// exec'ing the target agent's launch command against the new
	// session.
	Attach func(ctx context.Context, agent parser.AgentType, sess *session.Session, model string) error
}

// New builds an Orchestrator with the default spawn/inject/attach
// behavior, each shelling out to the configured agent CLI.
func New(st *store.Store, cfg *config.Config) *Orchestrator {
	o := &Orchestrator{Store: st, Config: cfg}
	o.Spawn = o.defaultSpawn
	o.Inject = o.defaultInject
	o.Attach = o.defaultAttach
	return o
}

// Request bundles the Continuation Orchestrator's inputs (spec.md
// §4.4): the session to continue, the agent it should resume under,
// and optional custom summarization instructions.
type Request struct {
	Session            *session.Session
	TargetAgent        parser.AgentType
	CustomInstructions string
}

// Outcome reports what the orchestrator did: the new session, the
// agent it actually ran on (after degrade), and whether it degraded
// from the caller's requested agent.
type Outcome struct {
	NewSession     *session.Session
	EffectiveAgent parser.AgentType
	Degraded       bool
}

// Run executes the full algorithm of §4.4.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	ancestors, err := lineage.Ancestors(o.Store, req.Session)
	if err != nil {
		return nil, err
	}
	lineageFiles := oldestFirst(ancestors)

	agent := req.TargetAgent
	degraded := false
	if agent != req.Session.Agent && !Available(agent, o.Config) {
		agent = req.Session.Agent
		degraded = true
	}

	before := o.existingFiles(agent)
	if err := o.Spawn(ctx, agent); err != nil {
		return nil, err
	}
	newPath, err := o.findNewFile(agent, before)
	if err != nil {
		return nil, err
	}

	prompt := BuildSummarizationPrompt(lineageFiles, req.CustomInstructions)
	if err := o.Inject(ctx, agent, prompt, o.Config.RolloverAnalysisModel); err != nil {
		return nil, err
	}

	if err := stampContinuation(newPath, req.Session); err != nil {
		return nil, err
	}

	newSess, err := store.Classify(agent, newPath)
	if err != nil {
		return nil, err
	}
	newSess.Derivation = session.DerivationContinued
	newSess.ParentFile = req.Session.FilePath
	newSess.ParentSessionID = req.Session.ID

	if err := o.Attach(ctx, agent, newSess, o.Config.RolloverDefaultModel); err != nil {
		return nil, err
	}

	return &Outcome{NewSession: newSess, EffectiveAgent: agent, Degraded: degraded}, nil
}

// oldestFirst reverses lineage.Ancestors' newest-first chain into
// the oldest-first order §4.4 step 1 and step 3 want.
func oldestFirst(chain []*session.Session) []*session.Session {
	out := make([]*session.Session, len(chain))
	for i, s := range chain {
		out[len(chain)-1-i] = s
	}
	return out
}

// BuildSummarizationPrompt implements §4.4 step 3: single-file
// lineages get a parallel-sub-agent exploration instruction,
// multi-file lineages get the ordered file list with the most
// recent file called out as authoritative. Custom instructions are
// appended verbatim, clearly delimited.
func BuildSummarizationPrompt(lineageFiles []*session.Session, custom string) string {
	var b strings.Builder
	if len(lineageFiles) <= 1 {
		path := ""
		if len(lineageFiles) == 1 {
			path = lineageFiles[0].FilePath
		}
		fmt.Fprintf(&b, "You are picking up a prior session recorded in this file:\n\n  %s\n\n", path)
		b.WriteString("Explore it using parallel sub-agents to build a complete picture of what was done and why.\n")
	} else {
		b.WriteString("You are picking up a prior session. Its history spans these files, oldest first:\n\n")
		for i, s := range lineageFiles {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, s.FilePath)
		}
		fmt.Fprintf(&b, "\nThe last file (%s) carries the current state; treat earlier files as background only.\n",
			lineageFiles[len(lineageFiles)-1].FilePath)
	}

	if strings.TrimSpace(custom) != "" {
		b.WriteString("\n--- custom instructions ---\n")
		b.WriteString(custom)
		b.WriteString("\n--- end custom instructions ---\n")
	}

	b.WriteString("\nBefore doing any new work, state your understanding of where things stand back to the user.\n")
	return b.String()
}

// defaultSpawn runs step 2: mint a fresh session by running the
// target agent's launch command, seeded with a minimal dummy
// message, inside the user's login shell so aliases are honored.
func (o *Orchestrator) defaultSpawn(ctx context.Context, agent parser.AgentType) error {
	template := o.Config.LaunchTemplates[agent]
	if template == "" {
		return sessionerr.New(sessionerr.DependencyMissing, fmt.Sprintf("no launch template configured for %s", agent))
	}
	argv, err := shelltools.BuildArgv(template, map[string]string{"prompt": dummySeedMessage})
	if err != nil {
		return sessionerr.Wrap(sessionerr.DependencyMissing, "building launch command", err)
	}
	command := strings.Join(quoteAll(argv), " ")
	shellArgv := shelltools.LoginShellArgv(o.Config.Shell, command)

	cmd := exec.CommandContext(ctx, shellArgv[0], shellArgv[1:]...)
	cmd.Stdin = strings.NewReader(dummySeedMessage + "\n")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return sessionerr.Wrap(sessionerr.Unavailable,
			fmt.Sprintf("spawning %s session (%s)", agent, strings.TrimSpace(stderr.String())), err)
	}
	return nil
}

// defaultInject runs step 4: shell out to the target agent's
// non-interactive print-mode CLI, discarding its output — the point
// is only to seed the conversation, not to surface the model's reply.
func (o *Orchestrator) defaultInject(ctx context.Context, agent parser.AgentType, prompt, model string) error {
	template := o.Config.BatchTemplates[agent]
	if template == "" {
		return sessionerr.New(sessionerr.DependencyMissing, fmt.Sprintf("no batch template configured for %s", agent))
	}

	f, err := os.CreateTemp("", "sessionctl-continuation-*.txt")
	if err != nil {
		return sessionerr.Wrap(sessionerr.IOError, "creating summarization prompt file", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(prompt); err != nil {
		f.Close()
		return sessionerr.Wrap(sessionerr.IOError, "writing summarization prompt file", err)
	}
	f.Close()

	argv, err := shelltools.BuildArgv(template, map[string]string{
		"prompt_file": f.Name(),
		"model":       model,
	})
	if err != nil {
		return sessionerr.Wrap(sessionerr.DependencyMissing, "building batch command", err)
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return sessionerr.Wrap(sessionerr.Unavailable,
			fmt.Sprintf("injecting summarization prompt (%s)", strings.TrimSpace(stderr.String())), err)
	}
	return nil
}

func (o *Orchestrator) defaultAttach(ctx context.Context, agent parser.AgentType, sess *session.Session, model string) error {
	template := o.Config.LaunchTemplates[agent]
	argv, err := shelltools.BuildArgv(template, map[string]string{"model": model})
	if err != nil {
		return sessionerr.Wrap(sessionerr.DependencyMissing, "building attach command", err)
	}
	command := strings.Join(quoteAll(argv), " ")
	shellArgv := shelltools.LoginShellArgv(o.Config.Shell, command)

	cmd := exec.CommandContext(ctx, shellArgv[0], shellArgv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Dir = sess.Cwd
	return cmd.Run()
}

func quoteAll(argv []string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = shelltools.Quote(a)
	}
	return out
}

// existingFiles snapshots the session files currently on disk for
// agent, used to spot the one spawn created.
func (o *Orchestrator) existingFiles(agent parser.AgentType) map[string]bool {
	seen := make(map[string]bool)
	for sess := range o.Store.Discover(store.Filter{Agents: []parser.AgentType{agent}}) {
		seen[sess.FilePath] = true
	}
	return seen
}

// findNewFile locates the session file that appeared since before,
// preferring the most recently modified candidate when more than
// one is new (concurrent activity on the host).
func (o *Orchestrator) findNewFile(agent parser.AgentType, before map[string]bool) (string, error) {
	type candidate struct {
		path  string
		mtime time.Time
	}
	var fresh []candidate
	for sess := range o.Store.Discover(store.Filter{Agents: []parser.AgentType{agent}}) {
		if before[sess.FilePath] {
			continue
		}
		info, err := os.Stat(sess.FilePath)
		if err != nil {
			continue
		}
		fresh = append(fresh, candidate{sess.FilePath, info.ModTime()})
	}
	if len(fresh) == 0 {
		return "", sessionerr.New(sessionerr.Unavailable, fmt.Sprintf("no new %s session appeared after spawn", agent))
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].mtime.After(fresh[j].mtime) })
	return fresh[0].path, nil
}

// stampContinuation implements §4.4 step 5: rewrite the new
// session's first line to carry a continue_metadata object with the
// parent session's identity and the UTC stamp time.
func stampContinuation(path string, parent *session.Session) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return sessionerr.Wrap(sessionerr.IOError, "reading new session for stamping", err)
	}
	lines := strings.SplitN(string(data), "\n", 2)
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return sessionerr.New(sessionerr.Malformed, "new session file has no first event to stamp")
	}

	absParent, err := filepath.Abs(parent.FilePath)
	if err != nil {
		absParent = parent.FilePath
	}
	stamped, err := injectContinueMetadata(lines[0], parent.ID, absParent)
	if err != nil {
		return err
	}

	rest := ""
	if len(lines) > 1 {
		rest = "\n" + lines[1]
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(stamped+rest), 0o644); err != nil {
		return sessionerr.Wrap(sessionerr.IOError, "writing stamped session", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return sessionerr.Wrap(sessionerr.IOError, "renaming stamped session into place", err)
	}
	return nil
}
