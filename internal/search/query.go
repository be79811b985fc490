package search

import (
	"database/sql"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/wesm/sessionctl/internal/sessionerr"
)

// DefaultHalfLifeDays is the recency-decay half-life used by the
// re-ranking formula when a caller doesn't override it.
const DefaultHalfLifeDays = 7.0

// Result is one ranked hit, with a snippet centered on the first
// query match in its content.
type Result struct {
	Document
	RawScore   float64
	FinalScore float64
	Snippet    string
}

// QueryOptions parameterizes Query.
type QueryOptions struct {
	Project      string
	Limit        int
	HalfLifeDays float64
}

// Query implements §4.7's query contract: an empty query returns
// the most-recent-by-modified N documents; a non-empty query
// fetches 2×N FTS hits, re-ranks by recency-adjusted score, and
// returns the top N with generated snippets.
func Query(db *DB, q string, opts QueryOptions) ([]Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	halfLife := opts.HalfLifeDays
	if halfLife <= 0 {
		halfLife = DefaultHalfLifeDays
	}

	q = strings.TrimSpace(q)
	if q == "" {
		return queryRecent(db, opts.Project, limit)
	}
	return queryFTS(db, q, opts.Project, limit, halfLife)
}

func queryRecent(db *DB, project string, limit int) ([]Result, error) {
	query := `SELECT session_id, agent, project, branch, cwd, created, modified, lines,
		export_path, first_msg_role, first_msg_content, last_msg_role, last_msg_content,
		derivation_type, is_sidechain, content FROM documents`
	var args []any
	if project != "" {
		query += " WHERE project = ?"
		args = append(args, project)
	}
	query += " ORDER BY modified DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.query(query, args...)
	if err != nil {
		return nil, sessionerr.Wrap(sessionerr.IOError, "querying recent documents", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, sessionerr.Wrap(sessionerr.IOError, "scanning document", err)
		}
		results = append(results, Result{Document: doc})
	}
	return results, rows.Err()
}

func queryFTS(db *DB, q, project string, limit int, halfLifeDays float64) ([]Result, error) {
	fetch := limit * 2
	query := `SELECT d.session_id, d.agent, d.project, d.branch, d.cwd, d.created, d.modified,
		d.lines, d.export_path, d.first_msg_role, d.first_msg_content, d.last_msg_role,
		d.last_msg_content, d.derivation_type, d.is_sidechain, d.content, bm25(documents_fts) AS rank
		FROM documents_fts
		JOIN documents d ON d.id = documents_fts.rowid
		WHERE documents_fts MATCH ?`
	args := []any{q}
	if project != "" {
		query += " AND d.project = ?"
		args = append(args, project)
	}
	query += " ORDER BY rank LIMIT ?"
	args = append(args, fetch)

	rows, err := db.query(query, args...)
	if err != nil {
		return nil, sessionerr.Wrap(sessionerr.IOError, "querying search index", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var doc Document
		var isSidechain int
		var rank float64
		if err := rows.Scan(
			&doc.SessionID, &doc.Agent, &doc.Project, &doc.Branch, &doc.Cwd, &doc.Created,
			&doc.Modified, &doc.Lines, &doc.ExportPath, &doc.FirstMsgRole, &doc.FirstMsgContent,
			&doc.LastMsgRole, &doc.LastMsgContent, &doc.DerivationType, &isSidechain, &doc.Content, &rank,
		); err != nil {
			return nil, sessionerr.Wrap(sessionerr.IOError, "scanning search hit", err)
		}
		doc.IsSidechain = isSidechain != 0

		// bm25() returns more-negative for a better match; flip the
		// sign so "raw" is larger-is-better, matching §4.7's formula.
		raw := -rank
		final := raw * (1 + math.Exp(-ageSeconds(doc.Modified)/(halfLifeDays*86400)))
		results = append(results, Result{
			Document:   doc,
			RawScore:   raw,
			FinalScore: final,
			Snippet:    snippet(doc.Content, q),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func ageSeconds(modified string) float64 {
	t, err := time.Parse(time.RFC3339, modified)
	if err != nil {
		return 0
	}
	age := time.Since(t).Seconds()
	if age < 0 {
		return 0
	}
	return age
}

func scanDocument(rows *sql.Rows) (Document, error) {
	var doc Document
	var isSidechain int
	err := rows.Scan(
		&doc.SessionID, &doc.Agent, &doc.Project, &doc.Branch, &doc.Cwd, &doc.Created,
		&doc.Modified, &doc.Lines, &doc.ExportPath, &doc.FirstMsgRole, &doc.FirstMsgContent,
		&doc.LastMsgRole, &doc.LastMsgContent, &doc.DerivationType, &isSidechain, &doc.Content,
	)
	doc.IsSidechain = isSidechain != 0
	return doc, err
}

// snippet finds the first case-folded match of the full query in
// content; failing that, the first match of any whitespace token.
// It centers a ~200-char window on the match, collapses whitespace,
// and brackets with ellipses on truncated sides, per §4.7.
func snippet(content, query string) string {
	const window = 200
	folded := strings.ToLower(content)
	idx := strings.Index(folded, strings.ToLower(query))
	matchLen := len(query)
	if idx < 0 {
		for _, tok := range strings.Fields(query) {
			if i := strings.Index(folded, strings.ToLower(tok)); i >= 0 {
				idx, matchLen = i, len(tok)
				break
			}
		}
	}
	if idx < 0 {
		idx, matchLen = 0, 0
	}

	center := idx + matchLen/2
	start := center - window/2
	truncatedLeft := start > 0
	if start < 0 {
		start = 0
	}
	end := start + window
	truncatedRight := end < len(content)
	if end > len(content) {
		end = len(content)
	}

	text := strings.Join(strings.Fields(content[start:end]), " ")
	if truncatedLeft {
		text = "…" + text
	}
	if truncatedRight {
		text = text + "…"
	}
	return text
}
