package build

import (
	"path"
	"path/filepath"
	"strings"
)

// Node is a file in either the source or the build tree.
type Node struct {
	root string // absolute tree root
	rel  string // slash-separated, relative to root
}

// NewNode returns the node for rel inside root.
func NewNode(root, rel string) *Node {
	return &Node{root: root, rel: path.Clean(filepath.ToSlash(rel))}
}

// Abs returns the absolute OS path.
func (n *Node) Abs() string {
	return filepath.Join(n.root, filepath.FromSlash(n.rel))
}

// Rel returns the slash-separated path relative to the tree root.
func (n *Node) Rel() string {
	return n.rel
}

// Root returns the tree the node belongs to.
func (n *Node) Root() string {
	return n.root
}

func (n *Node) String() string {
	return n.rel
}

// Name returns the base name.
func (n *Node) Name() string {
	return path.Base(n.rel)
}

// Parent returns the directory node.
func (n *Node) Parent() *Node {
	return &Node{root: n.root, rel: path.Dir(n.rel)}
}

// ChangeExt returns a sibling node with the extension replaced.
func (n *Node) ChangeExt(ext string) *Node {
	return &Node{root: n.root, rel: strings.TrimSuffix(n.rel, path.Ext(n.rel)) + ext}
}
