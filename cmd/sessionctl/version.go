package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/mod/semver"
)

// latestReleaseURL points at the tag list a real install would poll;
// kept as a var so tests can point it at a fixture server.
var latestReleaseURL = "https://api.github.com/repos/wesm/sessionctl/tags"

func runVersion(args []string) int {
	var check bool
	fs, err := parseFlags("version", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&check, "check", false, "Compare the running build against the latest tagged release")
	})
	if err != nil {
		return exitCodeFor(err)
	}
	_ = fs

	fmt.Printf("sessionctl %s (commit %s)\n", version, commit)
	if !check {
		return 0
	}

	current := versionTag(version)
	if !semver.IsValid(current) {
		fmt.Println("running a dev build; skipping update check")
		return 0
	}

	latest, err := fetchLatestTag()
	if err != nil {
		fmt.Printf("update check failed: %v\n", err)
		return 0
	}
	switch semver.Compare(current, latest) {
	case -1:
		fmt.Printf("a newer release is available: %s (you have %s)\n", latest, current)
	case 0:
		fmt.Println("up to date")
	case 1:
		fmt.Println("running ahead of the latest tagged release")
	}
	return 0
}

// versionTag normalizes a bare build version into the "vX.Y.Z" form
// golang.org/x/mod/semver requires.
func versionTag(v string) string {
	if len(v) > 0 && v[0] != 'v' {
		return "v" + v
	}
	return v
}

func fetchLatestTag() (string, error) {
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(latestReleaseURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", err
	}
	tag := gjson.GetBytes(body, "0.name").Str
	if tag == "" {
		return "", fmt.Errorf("no tags found in response")
	}
	return tag, nil
}
