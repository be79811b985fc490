// Package lineage implements the Lineage Graph (§4.2): ancestor and
// descendant traversal over the parent/child edges embedded in
// session file metadata.
package lineage

import (
	"github.com/wesm/sessionctl/internal/parser"
	"github.com/wesm/sessionctl/internal/session"
	"github.com/wesm/sessionctl/internal/store"
)

// Node annotates a session with its position in a lineage chain.
type Node struct {
	Session    *session.Session
	Derivation session.Derivation
}

// Ancestors returns the chain [s, parent(s), …, root] newest-first,
// classifying each ancestor file with store.Classify, which reads the
// whole file. A visited-set
// guards against cycles, which §3 says are impossible by
// construction but must still be defended against.
func Ancestors(s *store.Store, sess *session.Session) ([]*session.Session, error) {
	var chain []*session.Session
	visited := make(map[string]bool)

	cur := sess
	for cur != nil {
		if visited[cur.FilePath] {
			break // cycle guard: stop rather than loop forever
		}
		visited[cur.FilePath] = true
		chain = append(chain, cur)

		if cur.ParentFile == "" {
			break
		}
		parent, err := store.Classify(
			parser.DetectAgentFromPath(cur.ParentFile), cur.ParentFile,
		)
		if err != nil {
			break // parent unreadable: chain ends here, not fatal
		}
		cur = parent
	}
	return chain, nil
}

// OriginalOf returns the last element of Ancestors(s): the root
// original session.
func OriginalOf(s *store.Store, sess *session.Session) (*session.Session, error) {
	chain, err := Ancestors(s, sess)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return sess, nil
	}
	return chain[len(chain)-1], nil
}

// FullChain annotates each ancestor with its derivation kind.
func FullChain(s *store.Store, sess *session.Session) ([]Node, error) {
	chain, err := Ancestors(s, sess)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, len(chain))
	for i, c := range chain {
		nodes[i] = Node{Session: c, Derivation: c.Derivation}
	}
	return nodes, nil
}

// ContinuationLineage returns only the continued-derivation nodes
// of Ancestors(s).
func ContinuationLineage(s *store.Store, sess *session.Session) ([]*session.Session, error) {
	chain, err := Ancestors(s, sess)
	if err != nil {
		return nil, err
	}
	var out []*session.Session
	for _, c := range chain {
		if c.Derivation == session.DerivationContinued {
			out = append(out, c)
		}
	}
	return out, nil
}

// Descendants scans every session the store discovers for sessions
// whose ParentFile equals sess.FilePath, returning their immediate
// children. Each candidate is classified in full, so the cost grows
// with the number and size of session files under the store's roots.
func Descendants(s *store.Store, sess *session.Session) []*session.Session {
	var children []*session.Session
	for cand := range s.Discover(store.Filter{}) {
		if cand.ParentFile == sess.FilePath {
			children = append(children, cand)
		}
	}
	return children
}
