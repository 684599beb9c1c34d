// Package topology is an in-process container tree. It answers which
// project owns a container and which container is shared by every project.
package topology

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/ontology/pkg/types"
)

// Names of the two containers every tree starts with.
const (
	RootName   = ""
	SharedName = "Shared"
)

var (
	ErrHasChildren   = errors.New("container has children")
	ErrCycle         = errors.New("container cannot be moved beneath itself")
	ErrReserved      = errors.New("root and shared containers cannot be changed")
	ErrDuplicateName = errors.New("a sibling container already has this name")
)

// Tree is a concurrency-safe container hierarchy.
type Tree struct {
	mu       sync.RWMutex
	root     string
	shared   string
	nodes    map[string]types.Container
	children map[string][]string
}

var _ types.Topology = (*Tree)(nil)

// New creates a tree holding only the root and the shared container.
func New() *Tree {
	return NewWithIDs(newID(), newID())
}

// NewWithIDs creates a tree whose root and shared containers have fixed ids.
func NewWithIDs(rootID, sharedID string) *Tree {
	t := &Tree{
		root:     rootID,
		shared:   sharedID,
		nodes:    make(map[string]types.Container),
		children: make(map[string][]string),
	}
	t.nodes[rootID] = types.Container{ID: rootID, Name: RootName}
	t.add(types.Container{ID: sharedID, ParentID: rootID, Name: SharedName})
	return t
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (t *Tree) add(c types.Container) {
	t.nodes[c.ID] = c
	t.children[c.ParentID] = append(t.children[c.ParentID], c.ID)
}

func (t *Tree) detach(c types.Container) {
	siblings := t.children[c.ParentID]
	for i, id := range siblings {
		if id == c.ID {
			t.children[c.ParentID] = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
}

// Root returns the root container id.
func (t *Tree) Root() string { return t.root }

// Shared returns the shared container id.
func (t *Tree) Shared() string { return t.shared }

// Container returns the container with the given id.
func (t *Tree) Container(id string) (types.Container, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.nodes[id]
	return c, ok
}

// Project returns the project owning id: the ancestor directly beneath the
// root. The root and unknown ids resolve to themselves.
func (t *Tree) Project(id string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.projectLocked(id)
}

func (t *Tree) projectLocked(id string) string {
	cur := id
	for {
		c, ok := t.nodes[cur]
		if !ok || c.ParentID == "" {
			return cur
		}
		if c.ParentID == t.root {
			return c.ID
		}
		cur = c.ParentID
	}
}

// ProjectUnder returns the project id would belong to if it lived beneath
// parent. A container placed directly under the root is its own project.
func (t *Tree) ProjectUnder(parent, id string) string {
	if parent == t.root {
		return id
	}
	return t.Project(parent)
}

// IsProject reports whether id is a project, that is a direct child of the root.
func (t *Tree) IsProject(id string) bool {
	c, ok := t.Container(id)
	return ok && c.ParentID == t.root
}

// Children returns the direct children of id ordered by name.
func (t *Tree) Children(id string) []types.Container {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.Container, 0, len(t.children[id]))
	for _, cid := range t.children[id] {
		out = append(out, t.nodes[cid])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Descendants returns id and every container beneath it.
func (t *Tree) Descendants(id string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	var walk func(string)
	walk = func(cur string) {
		out = append(out, cur)
		for _, cid := range t.children[cur] {
			walk(cid)
		}
	}
	walk(id)
	return out
}

// Path returns the slash-separated path of id, "/" for the root.
func (t *Tree) Path(id string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var parts []string
	for cur := id; cur != t.root; {
		c, ok := t.nodes[cur]
		if !ok {
			return ""
		}
		parts = append([]string{c.Name}, parts...)
		cur = c.ParentID
	}
	return "/" + strings.Join(parts, "/")
}

// Lookup resolves a slash-separated path, or a container id.
func (t *Tree) Lookup(pathOrID string) (types.Container, bool) {
	if c, ok := t.Container(pathOrID); ok {
		return c, true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	cur := t.nodes[t.root]
	for _, name := range strings.Split(strings.Trim(pathOrID, "/"), "/") {
		if name == "" {
			continue
		}
		found := false
		for _, cid := range t.children[cur.ID] {
			if t.nodes[cid].Name == name {
				cur = t.nodes[cid]
				found = true
				break
			}
		}
		if !found {
			return types.Container{}, false
		}
	}
	return cur, true
}

// Create adds a container beneath parent.
func (t *Tree) Create(parent, name string) (types.Container, error) {
	return t.Insert(types.Container{ID: newID(), ParentID: parent, Name: name})
}

// Insert adds a container with a known id, as when loading a saved tree.
func (t *Tree) Insert(c types.Container) (types.Container, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[c.ParentID]; !ok {
		return types.Container{}, fmt.Errorf("parent %s: %w", c.ParentID, types.ErrNotFound)
	}
	if _, ok := t.nodes[c.ID]; ok {
		return t.nodes[c.ID], nil
	}
	if t.siblingNamedLocked(c.ParentID, c.Name) {
		return types.Container{}, fmt.Errorf("%s: %w", c.Name, ErrDuplicateName)
	}
	t.add(c)
	return c, nil
}

func (t *Tree) siblingNamedLocked(parent, name string) bool {
	for _, cid := range t.children[parent] {
		if t.nodes[cid].Name == name {
			return true
		}
	}
	return false
}

// Move re-parents id and returns its previous parent.
func (t *Tree) Move(id, newParent string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == t.root || id == t.shared {
		return "", ErrReserved
	}
	c, ok := t.nodes[id]
	if !ok {
		return "", fmt.Errorf("container %s: %w", id, types.ErrNotFound)
	}
	if _, ok := t.nodes[newParent]; !ok {
		return "", fmt.Errorf("parent %s: %w", newParent, types.ErrNotFound)
	}
	for cur := newParent; cur != ""; cur = t.nodes[cur].ParentID {
		if cur == id {
			return "", ErrCycle
		}
	}
	if t.siblingNamedLocked(newParent, c.Name) {
		return "", fmt.Errorf("%s: %w", c.Name, ErrDuplicateName)
	}
	old := c.ParentID
	t.detach(c)
	c.ParentID = newParent
	t.add(c)
	return old, nil
}

// Remove deletes a container without children.
func (t *Tree) Remove(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == t.root || id == t.shared {
		return ErrReserved
	}
	c, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("container %s: %w", id, types.ErrNotFound)
	}
	if len(t.children[id]) > 0 {
		return ErrHasChildren
	}
	t.detach(c)
	delete(t.nodes, id)
	delete(t.children, id)
	return nil
}
