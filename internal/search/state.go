package search

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/wesm/sessionctl/internal/sessionerr"
)

// fileStat is what the incremental sidecar state file tracks per
// indexed path: the two cheap signals that changed content must
// also change (§4.7's "mtime or size changed" rule).
type fileStat struct {
	ModTime int64 `json:"mtime"`
	Size    int64 `json:"size"`
}

// State is the sidecar incremental-indexing state: indexed path →
// (mtime, size) at the time it was last indexed.
type State map[string]fileStat

func loadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return State{}, nil
	}
	if err != nil {
		return nil, sessionerr.Wrap(sessionerr.IOError, "reading search state", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, sessionerr.Wrap(sessionerr.IOError, "parsing search state", err)
	}
	return s, nil
}

// saveState rewrites the sidecar state file atomically via
// temp+rename, matching the write pattern used across derivation
// and export.
func saveState(path string, s State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return sessionerr.Wrap(sessionerr.IOError, "marshaling search state", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return sessionerr.Wrap(sessionerr.IOError, "creating search state directory", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return sessionerr.Wrap(sessionerr.IOError, "writing search state", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return sessionerr.Wrap(sessionerr.IOError, "renaming search state into place", err)
	}
	return nil
}

// needsIndex reports whether path has changed since it was last
// indexed (or was never indexed), per the mtime-or-size rule.
func needsIndex(s State, path string, modTime int64, size int64, force bool) bool {
	if force {
		return true
	}
	prev, ok := s[path]
	return !ok || prev.ModTime != modTime || prev.Size != size
}
