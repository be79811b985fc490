// Package config loads sessionctl's single configuration object:
// defaults, layered with a config file, environment variables, and
// explicitly-set CLI flags, in that order.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/wesm/sessionctl/internal/parser"
)

// WorkerMode selects how the Analysis Pipeline talks to a model.
type WorkerMode string

const (
	WorkerModeSDK WorkerMode = "sdk"
	WorkerModeCLI WorkerMode = "cli"
)

// Config holds all application configuration.
type Config struct {
	DataDir string `json:"data_dir"`

	// AgentDirs maps each AgentType to its configured
	// directories. Single-dir agents store a one-element
	// slice; unconfigured agents use nil.
	AgentDirs map[parser.AgentType][]string `json:"-"`

	// agentDirSource tracks how each agent's dirs were
	// set so loadFile doesn't override env-set values.
	agentDirSource map[parser.AgentType]dirSource

	// SubagentModel is the model the Analysis Pipeline's worker
	// targets for smart-trim chunk analysis (§4.5). A "claude-"
	// prefix selects the Anthropic SDK backend; anything else is
	// routed to the OpenAI-compatible backend.
	SubagentModel string `json:"subagent_model"`

	// RolloverAnalysisModel is the (usually cheaper) model used to
	// summarize lineage for a continuation's seed prompt (§4.4).
	RolloverAnalysisModel string `json:"rollover_analysis_model"`

	// RolloverDefaultModel is the model the freshly-spawned,
	// interactively-attached continuation session itself runs.
	RolloverDefaultModel string `json:"rollover_default_model"`

	WorkerMode          WorkerMode `json:"worker_mode"`
	AnalysisCLITemplate string     `json:"analysis_cli_template"`

	// LaunchTemplates gives the interactive launch command for each
	// agent, used by the Continuation Orchestrator's spawn step
	// (§4.4 step 2) and by `resume`/`--shell` mode.
	LaunchTemplates map[parser.AgentType]string `json:"-"`

	// BatchTemplates gives each agent's non-interactive print-mode
	// invocation, used for §4.4 step 4's summarization injection.
	BatchTemplates map[parser.AgentType]string `json:"-"`

	AnthropicAPIKey string `json:"-"`
	OpenAIAPIKey    string `json:"-"`
	OpenAIBaseURL   string `json:"openai_base_url,omitempty"`

	// Shell is the login shell a continuation's fresh session is
	// spawned inside; defaults to $SHELL.
	Shell string `json:"shell,omitempty"`

	// ChunkSize, Threshold and ChunkTimeout parameterize smart-trim's
	// candidate-pool chunking (§4.3.2). A zero ChunkSize or
	// ChunkTimeout means "use the package default"; a zero Threshold
	// applies no hard floor to worker verdicts.
	ChunkSize    int           `json:"chunk_size,omitempty"`
	Threshold    int           `json:"threshold,omitempty"`
	ChunkTimeout time.Duration `json:"-"`
}

type dirSource int

const (
	dirDefault dirSource = iota
	dirEnv
)

// ResolveDirs returns the effective directories for an agent.
func (c *Config) ResolveDirs(agent parser.AgentType) []string {
	return c.AgentDirs[agent]
}

// StateDir is where logs, the search-index sidecar state file, and
// the cursor/session bookkeeping files live.
func (c *Config) StateDir() string {
	return c.DataDir
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("determining home directory: %w", err)
	}
	dataDir := filepath.Join(home, ".sessionctl")

	agentDirs := make(map[parser.AgentType][]string)
	agentDirSource := make(map[parser.AgentType]dirSource)
	for _, def := range parser.Registry {
		dirs := make([]string, len(def.DefaultDirs))
		for i, rel := range def.DefaultDirs {
			dirs[i] = filepath.Join(home, rel)
		}
		agentDirs[def.Type] = dirs
		agentDirSource[def.Type] = dirDefault
	}

	return Config{
		DataDir:               dataDir,
		AgentDirs:             agentDirs,
		agentDirSource:        agentDirSource,
		SubagentModel:         "claude-haiku-4-5",
		RolloverAnalysisModel: "claude-haiku-4-5",
		RolloverDefaultModel:  "claude-sonnet-4-5",
		WorkerMode:            WorkerModeSDK,
		Shell:                 os.Getenv("SHELL"),
		LaunchTemplates: map[parser.AgentType]string{
			parser.AgentClaude: "claude",
			parser.AgentCodex:  "codex",
		},
		BatchTemplates: map[parser.AgentType]string{
			parser.AgentClaude: "claude -p {prompt_file} --model {model}",
			parser.AgentCodex:  "codex exec --model {model} {prompt_file}",
		},
	}, nil
}

// Load builds a Config by layering: defaults < config file < env < flags.
// The provided FlagSet must already be parsed by the caller.
// Only flags that were explicitly set override the lower layers.
func Load(fs *flag.FlagSet) (Config, error) {
	cfg, err := LoadMinimal()
	if err != nil {
		return cfg, err
	}
	applyFlags(&cfg, fs)
	return cfg, nil
}

// LoadMinimal builds a Config from defaults, env, and config file,
// without parsing CLI flags. Use this for subcommands that manage
// their own flag sets.
func LoadMinimal() (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	cfg.loadEnv()
	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) configPath() string {
	return filepath.Join(c.DataDir, "config.json")
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.configPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var file struct {
		SubagentModel         string `json:"subagent_model"`
		RolloverAnalysisModel string `json:"rollover_analysis_model"`
		RolloverDefaultModel  string `json:"rollover_default_model"`
		WorkerMode            string `json:"worker_mode"`
		AnalysisCLITemplate   string `json:"analysis_cli_template"`
		OpenAIBaseURL         string `json:"openai_base_url"`
		Shell                 string            `json:"shell"`
		ChunkSize             int               `json:"chunk_size"`
		Threshold             int               `json:"threshold"`
		LaunchTemplates       map[string]string `json:"launch_templates"`
		BatchTemplates        map[string]string `json:"batch_templates"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if file.SubagentModel != "" && os.Getenv("SESSIONCTL_SUBAGENT_MODEL") == "" {
		c.SubagentModel = file.SubagentModel
	}
	if file.RolloverAnalysisModel != "" {
		c.RolloverAnalysisModel = file.RolloverAnalysisModel
	}
	if file.RolloverDefaultModel != "" {
		c.RolloverDefaultModel = file.RolloverDefaultModel
	}
	if file.WorkerMode != "" {
		c.WorkerMode = WorkerMode(file.WorkerMode)
	}
	if file.AnalysisCLITemplate != "" {
		c.AnalysisCLITemplate = file.AnalysisCLITemplate
	}
	if file.OpenAIBaseURL != "" {
		c.OpenAIBaseURL = file.OpenAIBaseURL
	}
	if file.Shell != "" {
		c.Shell = file.Shell
	}
	for k, v := range file.LaunchTemplates {
		c.LaunchTemplates[parser.AgentType(k)] = v
	}
	for k, v := range file.BatchTemplates {
		c.BatchTemplates[parser.AgentType(k)] = v
	}
	if file.ChunkSize != 0 {
		c.ChunkSize = file.ChunkSize
	}
	if file.Threshold != 0 {
		c.Threshold = file.Threshold
	}

	// Parse config-file dir arrays for agents that have a
	// ConfigKey. Only apply when not already set by env var.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing config raw: %w", err)
	}
	for _, def := range parser.Registry {
		if def.ConfigKey == "" {
			continue
		}
		rawVal, exists := raw[def.ConfigKey]
		if !exists {
			continue
		}
		if c.agentDirSource[def.Type] == dirEnv {
			continue
		}
		var dirs []string
		if err := json.Unmarshal(rawVal, &dirs); err != nil {
			log.Printf("config: %s: expected string array: %v", def.ConfigKey, err)
			continue
		}
		if len(dirs) > 0 {
			c.AgentDirs[def.Type] = dirs
		}
	}
	return nil
}

func (c *Config) loadEnv() {
	for _, def := range parser.Registry {
		if v := os.Getenv(def.EnvVar); v != "" {
			c.AgentDirs[def.Type] = []string{v}
			c.agentDirSource[def.Type] = dirEnv
		}
	}
	if v := os.Getenv("SESSIONCTL_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAIAPIKey = v
	}
	if v := os.Getenv("SESSIONCTL_SUBAGENT_MODEL"); v != "" {
		c.SubagentModel = v
	}
}

// RegisterTrimFlags registers smart-trim-command flags on fs.
func RegisterTrimFlags(fs *flag.FlagSet) {
	fs.Int("chunk-size", 0, "Override the analysis chunk size")
	fs.Int("threshold", 0, "Override the character-count trim threshold")
	fs.String("model", "", "Override the analysis worker model")
}

// applyFlags copies explicitly-set flags from fs into cfg.
func applyFlags(cfg *Config, fs *flag.FlagSet) {
	if fs == nil {
		return
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "chunk-size":
			cfg.ChunkSize, _ = strconv.Atoi(f.Value.String())
		case "threshold":
			cfg.Threshold, _ = strconv.Atoi(f.Value.String())
		case "model":
			cfg.SubagentModel = f.Value.String()
		}
	})
}

// ResolveDataDir returns the effective data directory by applying
// defaults and environment overrides, without reading any files.
func ResolveDataDir() (string, error) {
	cfg, err := Default()
	if err != nil {
		return "", err
	}
	if v := os.Getenv("SESSIONCTL_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	return cfg.DataDir, nil
}
