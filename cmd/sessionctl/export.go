package main

import (
	"flag"
	"fmt"

	"github.com/fatih/color"

	"github.com/wesm/sessionctl/internal/export"
	"github.com/wesm/sessionctl/internal/session"
)

func runExport(args []string, agents []string) int {
	var (
		out   string
		force bool
		ff    findFlags
	)
	fs, err := parseFlags("export", args, func(fs *flag.FlagSet) {
		fs.StringVar(&out, "out", "", "Destination file (single-session export only)")
		fs.BoolVar(&force, "force", false, "Overwrite an up-to-date export")
		registerFindFlags(fs, &ff)
	})
	if err != nil {
		return exitCodeFor(err)
	}

	app, err := newAppContext()
	if err != nil {
		return exitCodeFor(err)
	}

	if fs.NArg() >= 1 {
		return exportOne(app, fs.Arg(0), out, force)
	}
	return exportBulk(app, ff, agents, force)
}

func exportOne(app *appContext, selector, out string, force bool) int {
	sess, err := resolveArg(app, selector)
	if err != nil {
		return exitCodeFor(err)
	}
	originalID := sess.ID
	if sess.ParentSessionID != "" {
		originalID = sess.ParentSessionID
	}
	dest := out
	if dest == "" {
		dest = export.DestinationPath(sess)
	}
	result, err := export.Export(sess, originalID, dest, force)
	if err != nil {
		return exitCodeFor(err)
	}
	if result.Skipped {
		fmt.Printf("up to date: %s\n", result.Path)
		return 0
	}
	fmt.Printf("%s %s\n", color.GreenString("exported:"), result.Path)
	return 0
}

func exportBulk(app *appContext, ff findFlags, agents []string, force bool) int {
	filter := buildFilter(ff, agents)
	var sessions []*session.Session
	originalIDs := make(map[string]string)
	for sess := range app.Store.Discover(filter) {
		if sess.IsSidechain || sess.IsHelper {
			continue
		}
		sessions = append(sessions, sess)
		originalID := sess.ID
		if sess.ParentSessionID != "" {
			originalID = sess.ParentSessionID
		}
		originalIDs[sess.FilePath] = originalID
	}

	result := export.ExportAll(sessions, remapByID(sessions, originalIDs), force)
	fmt.Printf("exported %d, skipped %d, failed %d\n", result.Exported, result.Skipped, result.Failed)
	for _, d := range result.Diagnostics {
		fmt.Fprintf(color.Error, "  %s\n", d)
	}
	return 0
}

// remapByID keys originalIDs by session ID, matching ExportAll's
// expectation, since discovery keeps the map keyed by file path.
func remapByID(sessions []*session.Session, byPath map[string]string) map[string]string {
	out := make(map[string]string, len(sessions))
	for _, s := range sessions {
		out[s.ID] = byPath[s.FilePath]
	}
	return out
}
