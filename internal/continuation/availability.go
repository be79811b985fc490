package continuation

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/wesm/sessionctl/internal/config"
	"github.com/wesm/sessionctl/internal/parser"
)

// binaryNames gives the executable sessionctl looks for on PATH
// when probing whether an agent is usable, keyed by AgentType.
var binaryNames = map[parser.AgentType]string{
	parser.AgentClaude: "claude",
	parser.AgentCodex:  "codex",
}

// Available implements §4.4's agent availability policy: an agent is
// usable if its CLI is on PATH (checked case-insensitively, since a
// host's shell completion or install script may have cased it
// differently) or its config directory exists under $HOME.
func Available(agent parser.AgentType, cfg *config.Config) bool {
	if onPathCaseInsensitive(binaryNames[agent]) {
		return true
	}
	return configDirExists(agent)
}

func onPathCaseInsensitive(name string) bool {
	if name == "" {
		return false
	}
	pathEnv := os.Getenv("PATH")
	for _, dir := range filepath.SplitList(pathEnv) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if strings.EqualFold(e.Name(), name) {
				return true
			}
		}
	}
	return false
}

func configDirExists(agent parser.AgentType) bool {
	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	for _, def := range parser.Registry {
		if def.Type != agent || len(def.DefaultDirs) == 0 {
			continue
		}
		// DefaultDirs[0] is the deepest well-known subdirectory
		// (e.g. ".claude/projects"); its parent is the agent's
		// config directory (e.g. ".claude").
		configDir := filepath.Dir(filepath.Join(home, def.DefaultDirs[0]))
		if info, err := os.Stat(configDir); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}
