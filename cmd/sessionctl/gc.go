package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/wesm/sessionctl/internal/session"
	"github.com/wesm/sessionctl/internal/store"
)

// runGC sweeps the fingerprinted, near-empty helper sessions §4.8's
// Store.isHelperSession detects — the supplemented equivalent of the
// original project's delete_helper_sessions.py.
func runGC(args []string) int {
	var dryRun bool
	fs, err := parseFlags("gc", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&dryRun, "dry-run", false, "List what would be deleted without removing anything")
	})
	if err != nil {
		return exitCodeFor(err)
	}
	_ = fs

	app, err := newAppContext()
	if err != nil {
		return exitCodeFor(err)
	}

	var helpers []*session.Session
	for sess := range app.Store.Discover(store.Filter{}) {
		if sess.IsHelper {
			helpers = append(helpers, sess)
		}
	}
	if len(helpers) == 0 {
		fmt.Println("No helper sessions found.")
		return 0
	}

	var freed int64
	for _, sess := range helpers {
		if info, err := os.Stat(sess.FilePath); err == nil {
			freed += info.Size()
		}
		if dryRun {
			fmt.Printf("would delete: %s  %s  %d lines\n", sess.FilePath, sess.Agent, sess.LineCount)
			continue
		}
		if err := os.Remove(sess.FilePath); err != nil {
			fmt.Fprintf(color.Error, "  %s: %v\n", sess.FilePath, err)
			continue
		}
		app.Log.Printf("gc: removed helper session %s (%s, %d lines)", sess.FilePath, sess.Agent, sess.LineCount)
		fmt.Printf("deleted: %s\n", sess.FilePath)
	}

	verb := "deleted"
	if dryRun {
		verb = "would delete"
	}
	fmt.Printf("%s %d helper session(s), %s\n", verb, len(helpers), formatBytes(freed))
	return 0
}

// formatBytes renders a byte count in the largest whole unit, the
// same GB/MB/KB/B ladder the teacher's prune command reports with.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
