package parser

// AgentType identifies the AI agent that produced a session.
type AgentType string

const (
	AgentClaude AgentType = "claude"
	AgentCodex  AgentType = "codex"
)

// AgentDef describes one supported dialect's default filesystem
// layout and configuration hooks.
type AgentDef struct {
	Type        AgentType
	DefaultDirs []string // relative to $HOME
	EnvVar      string
	ConfigKey   string
}

// Registry lists the supported dialects. Narrowed from the wider
// agentsview lineup to the two dialects this tool understands:
// Claude Code's DAG-shaped JSONL and Codex's linear rollout JSONL.
var Registry = []AgentDef{
	{
		Type:        AgentClaude,
		DefaultDirs: []string{".claude/projects"},
		EnvVar:      "CLAUDE_CONFIG_DIR",
		ConfigKey:   "claude_dirs",
	},
	{
		Type:        AgentCodex,
		DefaultDirs: []string{".codex/sessions"},
		EnvVar:      "CODEX_CONFIG_DIR",
		ConfigKey:   "codex_dirs",
	},
}

// ParsedToolCall holds a single tool invocation extracted from
// a message.
type ParsedToolCall struct {
	ToolUseID string // tool_use block id from session data
	ToolName  string // raw name from session data
	Category  string // normalized: Read, Edit, Write, Bash, etc.
	InputJSON string // raw JSON of the input object
	SkillName string // skill name when ToolName is "Skill"
}

// ParsedToolResult holds metadata about a tool result block in a
// user message (the response to a prior tool_use).
type ParsedToolResult struct {
	ToolUseID     string
	ContentLength int
}

