package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/wesm/sessionctl/internal/parser"
	"github.com/wesm/sessionctl/internal/session"
	"github.com/wesm/sessionctl/internal/store"
)

type findFlags struct {
	agent       string
	project     string
	keywords    stringSlice
	minLines    int
	excludeTrim bool
	watch       bool
}

// stringSlice lets --keyword be repeated on the command line.
type stringSlice []string

func (s *stringSlice) String() string { return strings.Join(*s, ",") }
func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func registerFindFlags(fs *flag.FlagSet, ff *findFlags) {
	fs.StringVar(&ff.agent, "agent", "", "Restrict to one agent (claude|codex)")
	fs.StringVar(&ff.project, "project", "", "Restrict to sessions whose cwd equals this path (sessions with no recorded cwd also match)")
	fs.Var(&ff.keywords, "keyword", "Require this word in the session file (repeatable)")
	fs.IntVar(&ff.minLines, "min-lines", 0, "Require at least this many events")
	fs.BoolVar(&ff.excludeTrim, "exclude-trimmed", false, "Exclude trimmed sessions")
	fs.BoolVar(&ff.watch, "watch", false, "Keep running, reprinting the table as sessions change")
}

func buildFilter(ff findFlags, agents []string) store.Filter {
	var want []parser.AgentType
	for _, a := range agents {
		want = append(want, parser.AgentType(a))
	}
	if ff.agent != "" {
		want = append(want, parser.AgentType(ff.agent))
	}
	return store.Filter{
		Agents:          want,
		ProjectScopeCwd: ff.project,
		Keywords:        ff.keywords,
		MinLines:        ff.minLines,
		ExcludeTrimmed:  ff.excludeTrim,
	}
}

func runFind(args []string, agents []string) int {
	var ff findFlags
	fs, err := parseFlags("find", args, func(fs *flag.FlagSet) { registerFindFlags(fs, &ff) })
	if err != nil {
		return exitCodeFor(err)
	}
	_ = fs

	app, err := newAppContext()
	if err != nil {
		return exitCodeFor(err)
	}

	filter := buildFilter(ff, agents)
	listOnce := func() []*session.Session {
		var sessions []*session.Session
		for sess := range app.Store.Discover(filter) {
			if sess.IsSidechain || sess.IsHelper {
				continue
			}
			sessions = append(sessions, sess)
		}
		return sessions
	}

	printSessionTable(listOnce())
	if !ff.watch {
		return 0
	}
	return watchAndReprint(app, listOnce)
}

// watchAndReprint re-lists and reprints the session table whenever
// a watched agent directory settles after a burst of writes, until
// interrupted.
func watchAndReprint(app *appContext, list func() []*session.Session) int {
	var roots []string
	for _, dirs := range app.Config.AgentDirs {
		roots = append(roots, dirs...)
	}

	w, err := store.NewWatcher(500*time.Millisecond, func([]string) {
		fmt.Println()
		printSessionTable(list())
	})
	if err != nil {
		return exitCodeFor(err)
	}
	if err := w.WatchRoots(roots); err != nil {
		return exitCodeFor(err)
	}
	w.Start()
	defer w.Stop()

	stop := onInterrupt()
	defer stop()
	select {}
}

func runFindDerivation(args []string, kind string) int {
	var ff findFlags
	fs, err := parseFlags("find-"+kind, args, func(fs *flag.FlagSet) { registerFindFlags(fs, &ff) })
	if err != nil {
		return exitCodeFor(err)
	}
	_ = fs

	app, err := newAppContext()
	if err != nil {
		return exitCodeFor(err)
	}

	filter := buildFilter(ff, nil)
	if kind == "original" {
		filter.OriginalOnly = true
	}
	var sessions []*session.Session
	for sess := range app.Store.Discover(filter) {
		if sess.IsSidechain || sess.IsHelper {
			continue
		}
		if kind == "derived" && sess.Derivation == session.DerivationOriginal {
			continue
		}
		sessions = append(sessions, sess)
	}
	printSessionTable(sessions)
	return 0
}

// runMenu prints the candidate list and exits, per the Open Question
// decision recorded in DESIGN.md: no interactive picker in the core.
func runMenu(args []string) int {
	return runFind(args, nil)
}

func printSessionTable(sessions []*session.Session) {
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, s := range sessions {
		tag := color.New(color.FgCyan).Sprint(string(s.Agent))
		derivation := ""
		if s.Derivation != session.DerivationOriginal {
			derivation = color.YellowString(" [" + string(s.Derivation) + "]")
		}
		fmt.Printf("%s  %-8s %-20s %4d lines  %s%s\n",
			s.ModifiedAt.Format("2006-01-02 15:04"),
			tag,
			shortID(s.ID),
			s.LineCount,
			s.LastUserMessagePreview,
			derivation,
		)
	}
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

// resolveArg resolves a session selector (ID, path, or substring)
// against the store, returning a non-nil error on any resolution
// failure; exitCodeFor prints an Ambiguous error's candidates.
func resolveArg(app *appContext, selector string) (*session.Session, error) {
	cwd, _ := os.Getwd()
	return app.Store.Resolve(selector, cwd)
}
