// Package tree models the host bookmark tree the migration reorganizes.
package tree

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("node not found")
	ErrProtected = errors.New("node is a protected root")
	ErrNotFolder = errors.New("node is not a folder")
	ErrCycle     = errors.New("cannot move a folder into itself")
)

// Well-known root containers.
const (
	RootID    = "0"
	ToolbarID = "1"
	OtherID   = "2"
	MobileID  = "3"
)

// ProtectedIDs are the containers that may never be removed or moved.
var ProtectedIDs = []string{RootID, ToolbarID, OtherID, MobileID}

// Node is a folder (empty URL) or a link in the tree.
type Node struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parentId,omitempty"`
	Index     int       `json:"index"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	DateAdded time.Time `json:"dateAdded"`
	Children  []*Node   `json:"children,omitempty"`
}

func (n *Node) IsFolder() bool {
	return n.URL == ""
}

// Tree is the host bookmark tree. Every operation tolerates concurrent
// callers; a missing id is reported with ErrNotFound.
type Tree interface {
	// GetTree returns a snapshot of the whole tree starting at the root.
	GetTree(ctx context.Context) ([]*Node, error)
	CreateFolder(ctx context.Context, parentID, title string) (*Node, error)
	Move(ctx context.Context, id, parentID string) error
	UpdateTitle(ctx context.Context, id, title string) error
	// RemoveTree removes a node and everything below it.
	RemoveTree(ctx context.Context, id string) error
	// SearchByTitle returns nodes whose title equals title.
	SearchByTitle(ctx context.Context, title string) ([]*Node, error)
	// Get returns a node without its children.
	Get(ctx context.Context, id string) (*Node, error)
}

// Flatten returns every link below nodes in depth-first document order.
func Flatten(nodes []*Node) []*Node {
	var links []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		if !n.IsFolder() {
			links = append(links, n)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return links
}
