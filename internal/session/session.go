// Package session defines the uniform Session record (§3 of the
// spec this tool implements) that the rest of the core operates on,
// independent of which of the two on-disk JSONL dialects produced
// it.
package session

import (
	"time"

	"github.com/wesm/sessionctl/internal/parser"
)

// Derivation classifies how a session came to exist.
type Derivation string

const (
	DerivationOriginal  Derivation = "original"
	DerivationTrimmed   Derivation = "trimmed"
	DerivationContinued Derivation = "continued"
)

// TrimStats holds the savings statistics trim/smart-trim record in
// trim_metadata, surfaced in export front matter.
type TrimStats struct {
	ToolsTrimmed      int   `json:"tools_trimmed" yaml:"tools_trimmed"`
	AssistantsTrimmed int   `json:"assistants_trimmed" yaml:"assistants_trimmed"`
	CharsSaved        int64 `json:"chars_saved" yaml:"chars_saved"`
	EstTokensSaved    int64 `json:"est_tokens_saved" yaml:"est_tokens_saved"`
}

// Session is the uniform in-memory record described by §3: id, cwd,
// branch, lines, timestamps, derivation, sidechain.
type Session struct {
	ID       string
	Agent    parser.AgentType
	FilePath string

	Cwd       string
	GitBranch string

	CreatedAt  time.Time
	ModifiedAt time.Time
	LineCount  int

	FirstUserMessagePreview string
	LastUserMessagePreview  string

	Project string

	Derivation      Derivation
	ParentFile      string
	ParentSessionID string

	IsSidechain bool
	IsHelper    bool
	IsMalformed bool

	TrimStats *TrimStats
}

// Valid reports whether s is resumable per Invariant I3: it must
// contain at least one conversational event, and must not be
// malformed.
func (s *Session) Valid() bool {
	return !s.IsMalformed
}

// Resumable reports whether s should ever be offered as a `resume`
// target: valid, not a sidechain, not a helper session.
func (s *Session) Resumable() bool {
	return s.Valid() && !s.IsSidechain && !s.IsHelper
}
