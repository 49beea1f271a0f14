package hierarchy

import (
	"iter"
	"sort"
	"strings"
)

// Subtree returns a lazy pre-order traversal of the node and all its
// descendants. The sequence is finite and restartable: each range over it
// observes a consistent snapshot taken under the read lock for the
// duration of that iteration.
func (f *Forest) Subtree(id string) (iter.Seq[Node], error) {
	f.mu.RLock()
	_, ok := f.nodes[id]
	f.mu.RUnlock()
	if !ok {
		return nil, ErrNodeNotFound
	}
	return func(yield func(Node) bool) {
		f.mu.RLock()
		defer f.mu.RUnlock()
		stack := []string{id}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			n, ok := f.nodes[cur]
			if !ok {
				continue
			}
			if !yield(n) {
				return
			}
			kids := f.children[cur]
			for i := len(kids) - 1; i >= 0; i-- {
				stack = append(stack, kids[i])
			}
		}
	}, nil
}

// Ancestors returns the chain from the node's parent up to its root,
// nearest first.
func (f *Forest) Ancestors(id string) ([]Node, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	var chain []Node
	steps := 0
	for cur := n.ParentID; cur != ""; {
		parent, ok := f.nodes[cur]
		if !ok {
			break
		}
		chain = append(chain, parent)
		cur = parent.ParentID
		if steps++; steps > len(f.nodes) {
			break
		}
	}
	return chain, nil
}

// Contains reports whether nodeID lives inside the subtree rooted at
// ancestorID (a node contains itself). Used for move eligibility and for
// scoping an administrator's management subtree.
func (f *Forest) Contains(ancestorID, nodeID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if _, ok := f.nodes[ancestorID]; !ok {
		return false
	}
	steps := 0
	for cur := nodeID; cur != ""; {
		if cur == ancestorID {
			return true
		}
		n, ok := f.nodes[cur]
		if !ok {
			return false
		}
		cur = n.ParentID
		if steps++; steps > len(f.nodes) {
			return false
		}
	}
	return false
}

// Match is a search hit together with its ancestor chain (root first), so
// a partial tree can render expanded down to the match.
type Match struct {
	Node      Node   `json:"node"`
	Ancestors []Node `json:"ancestors,omitempty"`
}

// Search returns nodes whose name contains the query, case-insensitively,
// ordered by name then id.
func (f *Forest) Search(query string) []Match {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	f.mu.RLock()
	hits := make([]Node, 0, 8)
	for _, n := range f.nodes {
		if strings.Contains(strings.ToLower(n.Name), query) {
			hits = append(hits, n)
		}
	}
	f.mu.RUnlock()

	sortNodes(hits)
	out := make([]Match, 0, len(hits))
	for _, n := range hits {
		chain, err := f.Ancestors(n.ID)
		if err != nil {
			continue
		}
		// Ancestors come nearest-first; matches render root-first.
		reverse(chain)
		out = append(out, Match{Node: n, Ancestors: chain})
	}
	return out
}

func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Name == nodes[j].Name {
			return nodes[i].ID < nodes[j].ID
		}
		return nodes[i].Name < nodes[j].Name
	})
}

func reverse(nodes []Node) {
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
}
