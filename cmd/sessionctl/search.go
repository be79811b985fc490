package main

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/wesm/sessionctl/internal/search"
)

func runSearch(args []string) int {
	var (
		project string
		limit   int
		rebuild bool
	)
	fs, err := parseFlags("search", args, func(fs *flag.FlagSet) {
		fs.StringVar(&project, "project", "", "Restrict to sessions whose project name equals this value")
		fs.IntVar(&limit, "limit", 20, "Maximum results")
		fs.BoolVar(&rebuild, "rebuild", false, "Force a full reindex before querying")
	})
	if err != nil {
		return exitCodeFor(err)
	}

	app, err := newAppContext()
	if err != nil {
		return exitCodeFor(err)
	}

	dbPath := filepath.Join(app.Config.StateDir(), "search.db")
	db, err := search.Open(dbPath)
	if err != nil {
		return exitCodeFor(err)
	}
	defer db.Close()

	statePath := filepath.Join(app.Config.StateDir(), "search-index-state.json")
	if stats, err := search.BuildFromRawSessions(db, statePath, app.Store, rebuild); err != nil {
		return exitCodeFor(err)
	} else if stats.Indexed > 0 {
		fmt.Fprintf(color.Output, "indexed %d new/changed sessions\n", stats.Indexed)
	}

	query := ""
	if fs.NArg() >= 1 {
		query = fs.Arg(0)
	}
	results, err := search.Query(db, query, search.QueryOptions{Project: project, Limit: limit})
	if err != nil {
		return exitCodeFor(err)
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return 0
	}
	for _, r := range results {
		fmt.Printf("%s  %s  %-8s %s\n",
			r.Modified, color.CyanString(shortID(r.SessionID)), r.Agent, r.Snippet)
	}
	return 0
}
