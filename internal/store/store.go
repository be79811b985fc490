// Package store implements the Session Store Adapter (§4.1): a
// uniform, lazy view over both agent dialects' on-disk session
// files, with filtering, cheap classification, and reference
// resolution.
package store

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/wesm/sessionctl/internal/analysis"
	"github.com/wesm/sessionctl/internal/parser"
	"github.com/wesm/sessionctl/internal/sessionerr"
	"github.com/wesm/sessionctl/internal/session"
)

// sidechainScanWindow and cwdScanWindow bound how many leading
// lines classify() reads before falling back to a streaming pass,
// per §4.1: "first K events (K≈30 for sidechain detection, first 5
// for cwd discovery)".
const (
	sidechainScanWindow = 30
	cwdScanWindow       = 5
)

// Filter narrows Discover's results per §4.1.
type Filter struct {
	Agents           []parser.AgentType
	ProjectScopeCwd  string // non-empty restricts to sessions whose Cwd matches
	Keywords         []string
	ModifiedAfter    time.Time
	ModifiedBefore   time.Time
	MinLines         int
	ExcludeTrimmed   bool
	ExcludeContinued bool
	ExcludeSidechain bool
	OriginalOnly     bool
}

// Store adapts a set of per-agent root directories into the
// uniform Session model.
type Store struct {
	Roots map[parser.AgentType][]string
}

// New builds a Store from the agent→directories map a config
// object resolves.
func New(roots map[parser.AgentType][]string) *Store {
	return &Store{Roots: roots}
}

func (s *Store) discoverFiles(agents []parser.AgentType) []parser.DiscoveredFile {
	want := agents
	if len(want) == 0 {
		want = []parser.AgentType{parser.AgentClaude, parser.AgentCodex}
	}
	var out []parser.DiscoveredFile
	for _, agent := range want {
		for _, root := range s.Roots[agent] {
			switch agent {
			case parser.AgentClaude:
				out = append(out, parser.DiscoverClaudeProjects(root)...)
			case parser.AgentCodex:
				out = append(out, parser.DiscoverCodexSessions(root)...)
			}
		}
	}
	return out
}

// Discover returns session records matching filter, newest-modified
// first. It sorts by file mtime (a cheap stat, not a parse) before
// classifying lazily, so large trees are only fully parsed for the
// sessions the caller actually consumes.
func (s *Store) Discover(filter Filter) func(yield func(*session.Session) bool) {
	files := s.discoverFiles(filter.Agents)

	type statted struct {
		f     parser.DiscoveredFile
		mtime time.Time
	}
	withMtime := make([]statted, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			continue
		}
		withMtime = append(withMtime, statted{f, info.ModTime()})
	}
	sort.Slice(withMtime, func(i, j int) bool {
		return withMtime[i].mtime.After(withMtime[j].mtime)
	})

	return func(yield func(*session.Session) bool) {
		for _, sm := range withMtime {
			sess, err := Classify(sm.f.Agent, sm.f.Path)
			if err != nil {
				continue // unreadable/malformed: skip with diagnostic, never fatal
			}
			sess.Project = sm.f.Project
			if !matches(sess, filter) {
				continue
			}
			if !yield(sess) {
				return
			}
		}
	}
}

func matches(sess *session.Session, filter Filter) bool {
	if sess.IsMalformed {
		return false
	}
	if filter.OriginalOnly && sess.Derivation != session.DerivationOriginal {
		return false
	}
	if filter.ExcludeTrimmed && sess.Derivation == session.DerivationTrimmed {
		return false
	}
	if filter.ExcludeContinued && sess.Derivation == session.DerivationContinued {
		return false
	}
	if filter.ExcludeSidechain && sess.IsSidechain {
		return false
	}
	if filter.ProjectScopeCwd != "" && sess.Cwd != "" &&
		sess.Cwd != filter.ProjectScopeCwd {
		return false
	}
	if sess.LineCount < filter.MinLines {
		return false
	}
	if !filter.ModifiedAfter.IsZero() && sess.ModifiedAt.Before(filter.ModifiedAfter) {
		return false
	}
	if !filter.ModifiedBefore.IsZero() && sess.ModifiedAt.After(filter.ModifiedBefore) {
		return false
	}
	if len(filter.Keywords) > 0 && !containsAllKeywords(sess.FilePath, filter.Keywords) {
		return false
	}
	return true
}

// containsAllKeywords performs a case-folded AND substring match on
// the raw file text, per §4.1's keyword filter.
func containsAllKeywords(path string, keywords []string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	lower := strings.ToLower(string(data))
	for _, kw := range keywords {
		if !strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

// Classify reads file as little as possible and returns the
// uniform Session record for it, per §4.1 and §3.
func Classify(agent parser.AgentType, path string) (*session.Session, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, sessionerr.Wrap(sessionerr.IOError, "stat "+path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, sessionerr.Wrap(sessionerr.IOError, "open "+path, err)
	}
	defer f.Close()

	sess := &session.Session{
		Agent:      agent,
		FilePath:   path,
		ID:         parser.SessionIDFromPath(agent, path),
		ModifiedAt: info.ModTime(),
		Derivation: session.DerivationOriginal,
	}

	lr := parser.NewLineReader(f)
	var (
		lineIndex        int
		firstConvSeen    bool
		lastUserPreview  string
		createdSet       bool
		sawAnyLine       bool
	)
	for {
		line, err := lr.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, sessionerr.Wrap(sessionerr.IOError, "reading "+path, err)
		}
		if line == "" {
			continue
		}
		sawAnyLine = true

		if lineIndex == 0 {
			applyFirstLineMetadata(sess, agent, line)
		}
		if lineIndex < cwdScanWindow {
			applyCwdHints(sess, agent, line)
		}

		ev := parser.ClassifyLine(agent, lineIndex, line)
		if lineIndex < sidechainScanWindow && ev.Sidechain {
			sess.IsSidechain = true
		}
		if isConversational(ev) {
			firstConvSeen = true
		}
		if ev.Kind == parser.EventUser && !ev.IsMeta {
			lastUserPreview = preview(ev.Text)
		}

		if !createdSet {
			if ts := gjson.Get(line, "timestamp").Time(); !ts.IsZero() {
				sess.CreatedAt = ts
				createdSet = true
			}
		}
		lineIndex++
	}

	sess.LineCount = lineIndex
	sess.LastUserMessagePreview = lastUserPreview
	if !sawAnyLine || !firstConvSeen {
		sess.IsMalformed = true
	}
	sess.IsHelper = isHelperSession(sess, agent, path)
	return sess, nil
}

func isConversational(ev parser.Event) bool {
	switch ev.Kind {
	case parser.EventUser, parser.EventAssistant, parser.EventToolResult:
		return true
	}
	return false
}

func preview(text string) string {
	text = strings.TrimSpace(text)
	const max = 140
	if len(text) > max {
		return text[:max] + "…"
	}
	return text
}

func applyCwdHints(sess *session.Session, agent parser.AgentType, line string) {
	if sess.Cwd != "" {
		return
	}
	v := gjson.Parse(line)
	if agent == parser.AgentCodex {
		if cwd := v.Get("payload.cwd").Str; cwd != "" {
			sess.Cwd = cwd
		}
		return
	}
	if cwd := v.Get("cwd").Str; cwd != "" {
		sess.Cwd = cwd
	}
	if branch := v.Get("gitBranch").Str; branch != "" {
		sess.GitBranch = branch
	}
	if sess.Project == "" {
		if cwd := v.Get("cwd").Str; cwd != "" {
			sess.Project = parser.ExtractProjectFromCwdWithBranch(cwd, sess.GitBranch)
		}
	}
}

// applyFirstLineMetadata inspects the first line for trim_metadata
// / continue_metadata, establishing derivation per §3's "Lineage
// edge" rule.
func applyFirstLineMetadata(sess *session.Session, agent parser.AgentType, line string) {
	v := gjson.Parse(line)
	if tm := v.Get("trim_metadata"); tm.Exists() {
		sess.Derivation = session.DerivationTrimmed
		sess.ParentFile = tm.Get("parent_file").Str
		sess.TrimStats = &session.TrimStats{
			ToolsTrimmed:      int(tm.Get("tools_trimmed").Int()),
			AssistantsTrimmed: int(tm.Get("assistants_trimmed").Int()),
			CharsSaved:        tm.Get("chars_saved").Int(),
			EstTokensSaved:    tm.Get("est_tokens_saved").Int(),
		}
	}
	if cm := v.Get("continue_metadata"); cm.Exists() {
		sess.Derivation = session.DerivationContinued
		sess.ParentFile = cm.Get("parent_session_file").Str
		sess.ParentSessionID = cm.Get("parent_session_id").Str
	}
	_ = agent
}

// isHelperSession applies the §4.8 rule: a file containing only an
// analysis/seeding prompt matching the known fingerprint and at
// most 5 message-kind events is a helper, never a user session.
func isHelperSession(sess *session.Session, agent parser.AgentType, path string) bool {
	if sess.LineCount > 5 {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	msgEvents := 0
	fingerprinted := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if gjson.Get(line, "_helper").Bool() || strings.Contains(line, analysis.HelperFingerprint) {
			fingerprinted = true
		}
		ev := parser.ClassifyLine(agent, 0, line)
		switch ev.Kind {
		case parser.EventUser, parser.EventAssistant, parser.EventToolResult, parser.EventToolUse:
			msgEvents++
		}
	}
	return fingerprinted && msgEvents <= 5
}

// Resolve finds the unique session matching idOrPath, searching the
// current cwd scope first, then globally, per §4.1.
func (s *Store) Resolve(idOrPath, cwd string) (*session.Session, error) {
	if idOrPath == "" {
		return s.resolveLatest(cwd)
	}
	if info, err := os.Stat(idOrPath); err == nil && !info.IsDir() {
		return Classify(parser.DetectAgentFromPath(idOrPath), idOrPath)
	}

	files := s.discoverFiles(nil)
	var exact, scoped, global []parser.DiscoveredFile
	for _, f := range files {
		stem := strings.TrimSuffix(filepath.Base(f.Path), ".jsonl")
		if stem == idOrPath || parser.SessionIDFromPath(f.Agent, f.Path) == idOrPath {
			exact = append(exact, f)
			continue
		}
		if strings.Contains(stem, idOrPath) {
			global = append(global, f)
		}
	}
	if len(exact) == 1 {
		return Classify(exact[0].Agent, exact[0].Path)
	}
	if len(exact) > 1 {
		return nil, sessionerr.Ambiguousf(pathsOf(exact), "%q matches multiple sessions", idOrPath)
	}

	if cwd != "" {
		for _, f := range global {
			sess, err := Classify(f.Agent, f.Path)
			if err == nil && sess.Cwd == cwd {
				scoped = append(scoped, f)
			}
		}
	}
	if len(scoped) == 1 {
		return Classify(scoped[0].Agent, scoped[0].Path)
	}
	if len(scoped) > 1 {
		return nil, sessionerr.Ambiguousf(pathsOf(scoped), "%q matches multiple sessions in this project", idOrPath)
	}

	if len(global) == 1 {
		return Classify(global[0].Agent, global[0].Path)
	}
	if len(global) > 1 {
		return nil, sessionerr.Ambiguousf(pathsOf(global), "%q matches multiple sessions", idOrPath)
	}
	return nil, sessionerr.NotFoundf("no session matches %q", idOrPath)
}

func (s *Store) resolveLatest(cwd string) (*session.Session, error) {
	var latest *session.Session
	for sess := range s.Discover(Filter{ProjectScopeCwd: cwd, ExcludeSidechain: true}) {
		if latest == nil {
			latest = sess
		}
	}
	if latest == nil {
		return nil, sessionerr.NotFoundf("no sessions found")
	}
	return latest, nil
}

func pathsOf(files []parser.DiscoveredFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}
