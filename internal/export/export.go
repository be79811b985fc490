// Package export implements the Export Pipeline (§4.6): rendering a
// session file into a front-matter-plus-body text form, with
// incremental skip-if-up-to-date semantics.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesm/sessionctl/internal/parser"
	"github.com/wesm/sessionctl/internal/session"
	"github.com/wesm/sessionctl/internal/sessionerr"
)

// FrontMatter is the YAML header emitted above a session's exported
// body. Field order is pinned by struct declaration order (yaml.v3
// marshals struct fields in that order), satisfying the
// byte-determinism requirement for unchanged inputs.
type FrontMatter struct {
	SessionID         string             `yaml:"session_id"`
	Agent             string             `yaml:"agent"`
	FilePath          string             `yaml:"file_path"`
	Project           string             `yaml:"project,omitempty"`
	Branch            string             `yaml:"branch,omitempty"`
	Cwd               string             `yaml:"cwd,omitempty"`
	Lines             int                `yaml:"lines,omitempty"`
	Created           string             `yaml:"created,omitempty"`
	Modified          string             `yaml:"modified,omitempty"`
	DerivationType    string             `yaml:"derivation_type,omitempty"`
	ParentSessionID   string             `yaml:"parent_session_id,omitempty"`
	ParentSessionFile string             `yaml:"parent_session_file,omitempty"`
	OriginalSessionID string             `yaml:"original_session_id,omitempty"`
	TrimStats         *session.TrimStats `yaml:"trim_stats,omitempty"`
}

// Result reports the outcome of a single-session export.
type Result struct {
	Path    string
	Skipped bool
}

// BulkResult tallies a multi-session export run.
type BulkResult struct {
	Exported    int
	Skipped     int
	Failed      int
	Diagnostics []string
}

// DestinationPath computes the default export destination per §4.6:
// `<cwd>/exported-sessions/<agent>/<session_id>.txt`, rooted at the
// session's own cwd when known, else the current working directory.
func DestinationPath(sess *session.Session) string {
	root := sess.Cwd
	if root == "" {
		root, _ = os.Getwd()
	}
	return filepath.Join(root, "exported-sessions", string(sess.Agent), sess.ID+".txt")
}

// Export renders sess to its destination (or dest if non-empty),
// skipping the write when the destination is already at least as
// fresh as the source, unless force is set.
func Export(sess *session.Session, originalID string, dest string, force bool) (*Result, error) {
	if dest == "" {
		dest = DestinationPath(sess)
	}

	if !force {
		if up, err := destinationUpToDate(dest, sess.FilePath); err != nil {
			return nil, err
		} else if up {
			return &Result{Path: dest, Skipped: true}, nil
		}
	}

	content, err := Render(sess, originalID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, sessionerr.Wrap(sessionerr.IOError, "creating export directory", err)
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return nil, sessionerr.Wrap(sessionerr.IOError, "writing export file", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return nil, sessionerr.Wrap(sessionerr.IOError, "renaming export into place", err)
	}
	return &Result{Path: dest}, nil
}

// ExportAll runs Export over sessions, accumulating a BulkResult
// rather than failing the whole run on one session's error.
func ExportAll(sessions []*session.Session, originalIDs map[string]string, force bool) BulkResult {
	var bulk BulkResult
	for _, sess := range sessions {
		res, err := Export(sess, originalIDs[sess.ID], "", force)
		switch {
		case err != nil:
			bulk.Failed++
			bulk.Diagnostics = append(bulk.Diagnostics, fmt.Sprintf("%s: %v", sess.ID, err))
		case res.Skipped:
			bulk.Skipped++
		default:
			bulk.Exported++
		}
	}
	return bulk
}

func destinationUpToDate(dest, sourcePath string) (bool, error) {
	destInfo, err := os.Stat(dest)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, sessionerr.Wrap(sessionerr.IOError, "stat destination", err)
	}
	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		return false, sessionerr.Wrap(sessionerr.IOError, "stat source", err)
	}
	return !destInfo.ModTime().Before(srcInfo.ModTime()), nil
}

// Render produces the full export text: front matter delimited by
// `---` lines, followed by the prefixed-line body.
func Render(sess *session.Session, originalID string) (string, error) {
	fm := FrontMatter{
		SessionID:         sess.ID,
		Agent:             string(sess.Agent),
		FilePath:          sess.FilePath,
		Project:           sess.Project,
		Branch:            sess.GitBranch,
		Cwd:               sess.Cwd,
		Lines:             sess.LineCount,
		DerivationType:    string(sess.Derivation),
		ParentSessionID:   sess.ParentSessionID,
		ParentSessionFile: sess.ParentFile,
		OriginalSessionID: originalID,
		TrimStats:         sess.TrimStats,
	}
	if !sess.CreatedAt.IsZero() {
		fm.Created = sess.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !sess.ModifiedAt.IsZero() {
		fm.Modified = sess.ModifiedAt.UTC().Format(time.RFC3339)
	}

	header, err := yaml.Marshal(fm)
	if err != nil {
		return "", sessionerr.Wrap(sessionerr.IOError, "marshaling front matter", err)
	}

	body, err := renderBody(sess.Agent, sess.FilePath)
	if err != nil {
		return "", err
	}

	return "---\n" + string(header) + "---\n" + body, nil
}

// Parse splits a rendered export's text back into its FrontMatter
// and body, the inverse of Render. Used by the Search Index's
// from-exports build mode.
func Parse(text string) (FrontMatter, string, error) {
	const delim = "---\n"
	if !strings.HasPrefix(text, delim) {
		return FrontMatter{}, "", sessionerr.New(sessionerr.Malformed, "export file missing front-matter delimiter")
	}
	rest := text[len(delim):]
	end := strings.Index(rest, "\n"+delim)
	if end < 0 {
		return FrontMatter{}, "", sessionerr.New(sessionerr.Malformed, "export file missing closing front-matter delimiter")
	}
	yamlBlock := rest[:end+1]
	body := rest[end+1+len(delim):]

	var fm FrontMatter
	if err := yaml.Unmarshal([]byte(yamlBlock), &fm); err != nil {
		return FrontMatter{}, "", sessionerr.Wrap(sessionerr.Malformed, "parsing export front matter", err)
	}
	return fm, body, nil
}

func renderBody(agent parser.AgentType, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", sessionerr.Wrap(sessionerr.IOError, "opening "+path, err)
	}
	defer f.Close()

	lr := parser.NewLineReader(f)
	var out []byte
	i := 0
	for {
		line, err := lr.ReadLine()
		if err != nil {
			break
		}
		rendered := RenderLine(agent, i, line)
		if rendered != "" {
			out = append(out, rendered...)
			out = append(out, '\n')
		}
		i++
	}
	return string(out), nil
}
