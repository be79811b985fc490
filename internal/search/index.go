package search

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/wesm/sessionctl/internal/export"
	"github.com/wesm/sessionctl/internal/sessionerr"
	"github.com/wesm/sessionctl/internal/store"
)

// Document is one indexed session, mirroring §4.7's stored field
// set exactly (session_id, agent, project, branch, cwd, created,
// modified, lines, export_path, first/last msg role+content,
// derivation_type, is_sidechain, content).
type Document struct {
	SessionID       string
	Agent           string
	Project         string
	Branch          string
	Cwd             string
	Created         string
	Modified        string
	Lines           int
	ExportPath      string
	FirstMsgRole    string
	FirstMsgContent string
	LastMsgRole     string
	LastMsgContent  string
	DerivationType  string
	IsSidechain     bool
	Content         string
}

// BuildStats tallies an index build run.
type BuildStats struct {
	Indexed int
	Skipped int
	Failed  int
}

// BuildFromExports walks exportsRoot/<agent>/*.txt, parsing front
// matter and body per §4.7 build mode 1, and upserts a document per
// changed file.
func BuildFromExports(db *DB, statePath, exportsRoot string, force bool) (BuildStats, error) {
	state, err := loadState(statePath)
	if err != nil {
		return BuildStats{}, err
	}

	var stats BuildStats
	entries, err := os.ReadDir(exportsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, sessionerr.Wrap(sessionerr.IOError, "reading exports root", err)
	}

	for _, agentDir := range entries {
		if !agentDir.IsDir() {
			continue
		}
		dir := filepath.Join(exportsRoot, agentDir.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".txt") {
				continue
			}
			path := filepath.Join(dir, f.Name())
			info, err := f.Info()
			if err != nil {
				stats.Failed++
				continue
			}
			if !needsIndex(state, path, info.ModTime().Unix(), info.Size(), force) {
				stats.Skipped++
				continue
			}

			doc, err := documentFromExport(path)
			if err != nil {
				stats.Failed++
				continue
			}
			if err := upsert(db, doc); err != nil {
				stats.Failed++
				continue
			}
			state[path] = fileStat{ModTime: info.ModTime().Unix(), Size: info.Size()}
			stats.Indexed++
		}
	}

	if err := saveState(statePath, state); err != nil {
		return stats, err
	}
	return stats, nil
}

func documentFromExport(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, sessionerr.Wrap(sessionerr.IOError, "reading export", err)
	}
	fm, body, err := export.Parse(string(data))
	if err != nil {
		return Document{}, err
	}

	firstRole, firstContent := firstBodyLine(body)
	lastRole, lastContent := lastBodyLine(body)

	return Document{
		SessionID:       fm.SessionID,
		Agent:           fm.Agent,
		Project:         fm.Project,
		Branch:          fm.Branch,
		Cwd:             fm.Cwd,
		Created:         fm.Created,
		Modified:        fm.Modified,
		Lines:           fm.Lines,
		ExportPath:      path,
		FirstMsgRole:    firstRole,
		FirstMsgContent: firstContent,
		LastMsgRole:     lastRole,
		LastMsgContent:  lastContent,
		DerivationType:  fm.DerivationType,
		Content:         body,
	}, nil
}

// BuildFromRawSessions builds the index directly from the session
// store per §4.7 build mode 2, synthesizing a searchable body
// (prose plus tool-call markers) without requiring an export pass.
func BuildFromRawSessions(db *DB, statePath string, st *store.Store, force bool) (BuildStats, error) {
	state, err := loadState(statePath)
	if err != nil {
		return BuildStats{}, err
	}

	var stats BuildStats
	for sess := range st.Discover(store.Filter{}) {
		info, err := os.Stat(sess.FilePath)
		if err != nil {
			stats.Failed++
			continue
		}
		if !needsIndex(state, sess.FilePath, info.ModTime().Unix(), info.Size(), force) {
			stats.Skipped++
			continue
		}

		content, err := export.Render(sess, "")
		if err != nil {
			stats.Failed++
			continue
		}
		_, body, err := export.Parse(content)
		if err != nil {
			stats.Failed++
			continue
		}
		firstRole, firstContent := firstBodyLine(body)
		lastRole, lastContent := lastBodyLine(body)

		doc := Document{
			SessionID:       sess.ID,
			Agent:           string(sess.Agent),
			Project:         sess.Project,
			Branch:          sess.GitBranch,
			Cwd:             sess.Cwd,
			Created:         sess.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Modified:        sess.ModifiedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Lines:           sess.LineCount,
			FirstMsgRole:    firstRole,
			FirstMsgContent: firstContent,
			LastMsgRole:     lastRole,
			LastMsgContent:  lastContent,
			DerivationType:  string(sess.Derivation),
			IsSidechain:     sess.IsSidechain,
			Content:         body,
		}
		if err := upsert(db, doc); err != nil {
			stats.Failed++
			continue
		}
		state[sess.FilePath] = fileStat{ModTime: info.ModTime().Unix(), Size: info.Size()}
		stats.Indexed++
	}

	if err := saveState(statePath, state); err != nil {
		return stats, err
	}
	return stats, nil
}

// firstBodyLine and lastBodyLine extract a coarse role+content pair
// from a rendered body, used for the first/last-message preview
// fields. "> " marks a user line, "⏺ " an assistant/tool line.
func firstBodyLine(body string) (role, content string) {
	lines := strings.Split(body, "\n")
	for _, l := range lines {
		if l == "" {
			continue
		}
		return roleOf(l), strings.TrimSpace(strings.TrimLeft(l, "> ⏺"))
	}
	return "", ""
}

func lastBodyLine(body string) (role, content string) {
	lines := strings.Split(body, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i] == "" {
			continue
		}
		return roleOf(lines[i]), strings.TrimSpace(strings.TrimLeft(lines[i], "> ⏺"))
	}
	return "", ""
}

func roleOf(line string) string {
	switch {
	case strings.HasPrefix(line, ">"):
		return "user"
	case strings.HasPrefix(line, "⏺"):
		return "assistant"
	default:
		return ""
	}
}

func upsert(db *DB, doc Document) error {
	return db.Update(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO documents (
				session_id, agent, project, branch, cwd, created, modified,
				lines, export_path, first_msg_role, first_msg_content,
				last_msg_role, last_msg_content, derivation_type, is_sidechain, content
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				agent=excluded.agent, project=excluded.project, branch=excluded.branch,
				cwd=excluded.cwd, created=excluded.created, modified=excluded.modified,
				lines=excluded.lines, export_path=excluded.export_path,
				first_msg_role=excluded.first_msg_role, first_msg_content=excluded.first_msg_content,
				last_msg_role=excluded.last_msg_role, last_msg_content=excluded.last_msg_content,
				derivation_type=excluded.derivation_type, is_sidechain=excluded.is_sidechain,
				content=excluded.content
		`,
			doc.SessionID, doc.Agent, doc.Project, doc.Branch, doc.Cwd, doc.Created, doc.Modified,
			doc.Lines, doc.ExportPath, doc.FirstMsgRole, doc.FirstMsgContent,
			doc.LastMsgRole, doc.LastMsgContent, doc.DerivationType, boolToInt(doc.IsSidechain), doc.Content,
		)
		return err
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
