// Package hierarchy implements the forest of organizational group nodes
// shared by role groups and permission groups. One engine serves both
// kinds; the leaf entities attached to a node (roles or permissions) are
// abstracted behind the Attachments capability.
package hierarchy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"userhub.org/internal/ids"
)

// Kind identifies which group forest an engine manages.
type Kind string

const (
	KindRoleGroup       Kind = "role_group"
	KindPermissionGroup Kind = "permission_group"
)

// Node is a single group in the forest. ParentID is empty for roots.
type Node struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

// Attachments reports how many leaf entities (roles or permissions) are
// currently placed in a node. Delete refuses while the count is non-zero.
type Attachments interface {
	Count(ctx context.Context, nodeID string) (int, error)
}

// Persister writes structural changes through to durable storage. A
// persist error aborts the mutation before the in-memory forest changes.
type Persister interface {
	SaveNode(ctx context.Context, kind Kind, n Node) error
	DeleteNode(ctx context.Context, kind Kind, id string) error
}

// Forest is the in-memory engine over one group hierarchy. All structural
// mutation goes through it; mutations are serialized so the cycle check
// and the write happen under one critical section.
type Forest struct {
	kind Kind

	mu       sync.RWMutex
	nodes    map[string]Node
	children map[string][]string // parent id -> child ids, sorted by name
	version  uint64

	attachments      Attachments
	persister        Persister
	allowDupSiblings bool
	newID            func() string
}

// Option configures a Forest.
type Option func(*Forest)

// WithAttachments wires the leaf-attachment capability used by Delete.
func WithAttachments(a Attachments) Option {
	return func(f *Forest) { f.attachments = a }
}

// WithPersister wires write-through persistence for structural changes.
func WithPersister(p Persister) Option {
	return func(f *Forest) { f.persister = p }
}

// WithIDGenerator overrides node id generation (useful for tests).
func WithIDGenerator(fn func() string) Option {
	return func(f *Forest) {
		if fn != nil {
			f.newID = fn
		}
	}
}

// WithDuplicateSiblingNames permits name collisions among siblings.
func WithDuplicateSiblingNames() Option {
	return func(f *Forest) { f.allowDupSiblings = true }
}

// NewForest constructs an empty engine for the given kind.
func NewForest(kind Kind, opts ...Option) *Forest {
	f := &Forest{
		kind:     kind,
		nodes:    make(map[string]Node),
		children: make(map[string][]string),
		newID:    ids.New,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Kind returns the forest kind.
func (f *Forest) Kind() Kind { return f.kind }

// Version returns the mutation counter. It is bumped on every successful
// structural change and serves as a cache invalidation token.
func (f *Forest) Version() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.version
}

// Load replaces the forest content with persisted nodes. Nodes referring
// to an unknown parent are rejected so a partial load cannot produce a
// disconnected index.
func (f *Forest) Load(nodes []Node) error {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		if strings.TrimSpace(n.ID) == "" {
			return fmt.Errorf("%w: node id is required", ErrInvalidInput)
		}
		if _, dup := byID[n.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %s", ErrInvalidInput, n.ID)
		}
		byID[n.ID] = n
	}
	children := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		if n.ParentID != "" {
			if _, ok := byID[n.ParentID]; !ok {
				return fmt.Errorf("%w: node %s refers to unknown parent %s", ErrInvalidInput, n.ID, n.ParentID)
			}
		}
		children[n.ParentID] = append(children[n.ParentID], n.ID)
	}

	// Verify every ancestor chain terminates before touching the live
	// maps; persisted data is not trusted to be acyclic, and a rejected
	// load must leave the forest exactly as it was.
	for id := range byID {
		if !chainTerminates(byID, id) {
			return fmt.Errorf("%w: persisted nodes contain a cycle at %s", ErrInvalidInput, id)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = byID
	f.children = children
	for parent := range f.children {
		f.sortChildren(parent)
	}
	f.version++
	return nil
}

// Get returns a node by id.
func (f *Forest) Get(id string) (Node, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.nodes[id]
	if !ok {
		return Node{}, ErrNodeNotFound
	}
	return n, nil
}

// Roots returns all nodes without a parent, sorted by name.
func (f *Forest) Roots() []Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Node, 0, len(f.children[""]))
	for _, id := range f.children[""] {
		out = append(out, f.nodes[id])
	}
	return out
}

// Create adds a node under parentID (empty for a new root).
func (f *Forest) Create(ctx context.Context, name, parentID string) (Node, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Node{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if parentID != "" {
		if _, ok := f.nodes[parentID]; !ok {
			return Node{}, fmt.Errorf("%w: parent %s", ErrNodeNotFound, parentID)
		}
	}
	if err := f.checkSiblingName(parentID, name, ""); err != nil {
		return Node{}, err
	}

	n := Node{ID: f.newID(), Name: name, ParentID: parentID}
	if f.persister != nil {
		if err := f.persister.SaveNode(ctx, f.kind, n); err != nil {
			return Node{}, err
		}
	}
	f.nodes[n.ID] = n
	f.children[parentID] = append(f.children[parentID], n.ID)
	f.sortChildren(parentID)
	f.version++
	return n, nil
}

// Rename changes a node's name in place.
func (f *Forest) Rename(ctx context.Context, id, name string) (Node, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Node{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[id]
	if !ok {
		return Node{}, ErrNodeNotFound
	}
	if n.Name == name {
		return n, nil
	}
	if err := f.checkSiblingName(n.ParentID, name, id); err != nil {
		return Node{}, err
	}

	updated := n
	updated.Name = name
	if f.persister != nil {
		if err := f.persister.SaveNode(ctx, f.kind, updated); err != nil {
			return Node{}, err
		}
	}
	f.nodes[id] = updated
	f.sortChildren(n.ParentID)
	f.version++
	return updated, nil
}

// Move re-parents a node. Moving to an empty parent relocates the node to
// the forest root. The move is rejected if the new parent is the node
// itself or any of its descendants: the check walks from the proposed
// parent upward to the root, so it is O(depth), not O(n).
func (f *Forest) Move(ctx context.Context, id, newParentID string) (Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[id]
	if !ok {
		return Node{}, ErrNodeNotFound
	}
	if newParentID != "" {
		if _, ok := f.nodes[newParentID]; !ok {
			return Node{}, fmt.Errorf("%w: parent %s", ErrNodeNotFound, newParentID)
		}
		if newParentID == id {
			return Node{}, fmt.Errorf("%w: %s cannot be its own parent", ErrCyclicMove, id)
		}
		steps := 0
		for cur := newParentID; cur != ""; {
			if cur == id {
				return Node{}, fmt.Errorf("%w: %s is a descendant of %s", ErrCyclicMove, newParentID, id)
			}
			parent, ok := f.nodes[cur]
			if !ok {
				break
			}
			cur = parent.ParentID
			if steps++; steps > len(f.nodes) {
				return Node{}, fmt.Errorf("%w: ancestor chain does not terminate at %s", ErrCyclicMove, cur)
			}
		}
	}
	if n.ParentID == newParentID {
		return n, nil
	}
	if err := f.checkSiblingName(newParentID, n.Name, id); err != nil {
		return Node{}, err
	}

	updated := n
	updated.ParentID = newParentID
	if f.persister != nil {
		if err := f.persister.SaveNode(ctx, f.kind, updated); err != nil {
			return Node{}, err
		}
	}
	f.nodes[id] = updated
	f.children[n.ParentID] = remove(f.children[n.ParentID], id)
	f.children[newParentID] = append(f.children[newParentID], id)
	f.sortChildren(newParentID)
	f.version++
	return updated, nil
}

// Delete removes a node. It refuses while the node has direct children or
// attached leaves; callers must detach those explicitly first, which
// prevents silent mass-deauthorization through a cascading delete.
func (f *Forest) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	if kids := f.children[id]; len(kids) > 0 {
		first := f.nodes[kids[0]]
		return fmt.Errorf("%w: %s has %d direct children (first: %q)", ErrHasChildren, id, len(kids), first.Name)
	}
	if f.attachments != nil {
		count, err := f.attachments.Count(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s has %d attached entries", ErrHasAssignments, id, count)
		}
	}

	if f.persister != nil {
		if err := f.persister.DeleteNode(ctx, f.kind, id); err != nil {
			return err
		}
	}
	delete(f.nodes, id)
	delete(f.children, id)
	f.children[n.ParentID] = remove(f.children[n.ParentID], id)
	f.version++
	return nil
}

// checkSiblingName enforces the unique-sibling-name policy. excludeID
// skips the node being renamed or moved.
func (f *Forest) checkSiblingName(parentID, name, excludeID string) error {
	if f.allowDupSiblings {
		return nil
	}
	for _, sid := range f.children[parentID] {
		if sid == excludeID {
			continue
		}
		if strings.EqualFold(f.nodes[sid].Name, name) {
			return fmt.Errorf("%w: %q already exists under this parent", ErrDuplicateName, name)
		}
	}
	return nil
}

// chainTerminates reports whether walking parent links from id reaches a
// root within the node count.
func chainTerminates(nodes map[string]Node, id string) bool {
	steps := 0
	for cur := id; cur != ""; {
		n, ok := nodes[cur]
		if !ok {
			return true
		}
		cur = n.ParentID
		if steps++; steps > len(nodes) {
			return false
		}
	}
	return true
}

func (f *Forest) sortChildren(parentID string) {
	kids := f.children[parentID]
	sort.Slice(kids, func(i, j int) bool {
		a, b := f.nodes[kids[i]], f.nodes[kids[j]]
		if a.Name == b.Name {
			return a.ID < b.ID
		}
		return a.Name < b.Name
	})
	if len(kids) == 0 {
		delete(f.children, parentID)
	}
}

func remove(list []string, id string) []string {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
