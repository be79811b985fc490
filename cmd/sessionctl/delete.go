package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/wesm/sessionctl/internal/session"
)

// confirm prompts msg on w and reports whether r's next line is an
// affirmative response, the same yes/no gate the teacher's prune
// command uses before a destructive filesystem operation.
func confirm(r io.Reader, w io.Writer, msg string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", msg)
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func runDelete(args []string) int {
	var yes bool
	fs, err := parseFlags("delete", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	})
	if err != nil {
		return exitCodeFor(err)
	}
	if fs.NArg() < 1 {
		fmt.Println("usage: sessionctl delete <session> [--yes]")
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

	if !yes && !confirm(os.Stdin, os.Stdout, fmt.Sprintf("Delete %s (%s, %d lines)?", shortID(sess.ID), sess.Agent, sess.LineCount)) {
		fmt.Println("aborted")
		return 1
	}

	if err := deleteSessionFile(sess); err != nil {
		return exitCodeFor(err)
	}
	app.Log.Printf("delete: removed %s (%s)", sess.FilePath, sess.Agent)
	fmt.Printf("%s %s\n", color.GreenString("deleted:"), sess.FilePath)
	return 0
}

// deleteSessionFile removes a session's backing file, matching the
// teacher's prune.go cleanup: best-effort directory removal is left
// to gc, not attempted per single-session delete.
func deleteSessionFile(sess *session.Session) error {
	return os.Remove(sess.FilePath)
}
