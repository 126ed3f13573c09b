package tree

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nikbrunner/gmark/internal/model"
)

// MemoryTree is an in-process Tree.
type MemoryTree struct {
	mu    sync.RWMutex
	root  *Node
	nodes map[string]*Node

	// persist runs with mu held after every successful mutation.
	persist func() error
}

// NewMemoryTree returns a tree holding only the root containers.
func NewMemoryTree() *MemoryTree {
	now := time.Now()
	root := &Node{ID: RootID, DateAdded: now}
	t := &MemoryTree{root: root, nodes: map[string]*Node{RootID: root}}

	for _, c := range []struct{ id, title string }{
		{ToolbarID, "Bookmarks Bar"},
		{OtherID, "Other Bookmarks"},
		{MobileID, "Mobile Bookmarks"},
	} {
		t.attach(root, &Node{ID: c.id, Title: c.title, DateAdded: now})
	}
	return t
}

// AddLink appends a link to a folder.
func (t *MemoryTree) AddLink(parentID, title, url string) (*Node, error) {
	return t.add(parentID, &Node{ID: model.GenerateUUID(), Title: title, URL: url, DateAdded: time.Now()})
}

func (t *MemoryTree) GetTree(ctx context.Context) ([]*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return []*Node{clone(t.root, true)}, nil
}

func (t *MemoryTree) CreateFolder(ctx context.Context, parentID, title string) (*Node, error) {
	return t.add(parentID, &Node{ID: model.GenerateUUID(), Title: title, DateAdded: time.Now()})
}

func (t *MemoryTree) Move(ctx context.Context, id, parentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if isProtected(id) {
		return fmt.Errorf("%w: %s", ErrProtected, id)
	}
	parent, ok := t.nodes[parentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, parentID)
	}
	if !parent.IsFolder() {
		return fmt.Errorf("%w: %s", ErrNotFolder, parentID)
	}
	for p := parent; p != nil; p = t.nodes[p.ParentID] {
		if p.ID == id {
			return ErrCycle
		}
	}

	t.detach(n)
	t.attach(parent, n)
	return t.save()
}

func (t *MemoryTree) UpdateTitle(ctx context.Context, id, title string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	n.Title = title
	return t.save()
}

func (t *MemoryTree) RemoveTree(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if isProtected(id) {
		return fmt.Errorf("%w: %s", ErrProtected, id)
	}

	t.detach(n)
	var forget func(*Node)
	forget = func(n *Node) {
		delete(t.nodes, n.ID)
		for _, c := range n.Children {
			forget(c)
		}
	}
	forget(n)
	return t.save()
}

func (t *MemoryTree) SearchByTitle(ctx context.Context, title string) ([]*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var found []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		if n.ID != RootID && n.Title == title {
			found = append(found, clone(n, false))
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.root)
	return found, nil
}

func (t *MemoryTree) Get(ctx context.Context, id string) (*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(n, false), nil
}

func (t *MemoryTree) add(parentID string, n *Node) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.nodes[parentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, parentID)
	}
	if !parent.IsFolder() {
		return nil, fmt.Errorf("%w: %s", ErrNotFolder, parentID)
	}
	t.attach(parent, n)
	if err := t.save(); err != nil {
		return nil, err
	}
	return clone(n, false), nil
}

func (t *MemoryTree) attach(parent, n *Node) {
	n.ParentID = parent.ID
	n.Index = len(parent.Children)
	parent.Children = append(parent.Children, n)
	t.nodes[n.ID] = n
}

func (t *MemoryTree) detach(n *Node) {
	parent, ok := t.nodes[n.ParentID]
	if !ok {
		return
	}
	parent.Children = slices.DeleteFunc(parent.Children, func(c *Node) bool { return c.ID == n.ID })
	for i, c := range parent.Children {
		c.Index = i
	}
}

func (t *MemoryTree) save() error {
	if t.persist == nil {
		return nil
	}
	return t.persist()
}

func isProtected(id string) bool {
	return slices.Contains(ProtectedIDs, id)
}

func clone(n *Node, deep bool) *Node {
	c := *n
	c.Children = nil
	if deep {
		for _, child := range n.Children {
			c.Children = append(c.Children, clone(child, true))
		}
	}
	return &c
}
