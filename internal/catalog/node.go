// Package catalog holds the lazily populated tree of library roots, groups
// and entries that the CLI, MCP and NFS surfaces browse and reorganize.
package catalog

import (
	"iter"

	"github.com/agentic-research/geocat/api"
	"github.com/agentic-research/geocat/internal/library"
)

// Kind discriminates the node variants.
type Kind uint8

const (
	KindGroup Kind = iota
	KindLibraryRoot
	KindMember
	KindUncategorized
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindLibraryRoot:
		return "library"
	case KindMember:
		return "entry"
	case KindUncategorized:
		return "uncategorized"
	}
	return "unknown"
}

// SourceKind identifies where a deferred group gets its children from.
type SourceKind uint8

const (
	// SourceNone means the children are already materialized.
	SourceNone SourceKind = iota
	SourceNativeGroup
	SourceSerialized
	SourceRawEnumerator
)

// Source is the recipe a group populates its children from.
type Source struct {
	Kind   SourceKind
	Native library.NativeGroup
	Doc    *api.Group
	Keys   func() iter.Seq[string]
}

// FromNative defers to a library's native group.
func FromNative(g library.NativeGroup) Source { return Source{Kind: SourceNativeGroup, Native: g} }

// FromDocument defers to an organization document fragment.
func FromDocument(g *api.Group) Source { return Source{Kind: SourceSerialized, Doc: g} }

// FromKeys defers to a raw key sequence.
func FromKeys(keys func() iter.Seq[string]) Source {
	return Source{Kind: SourceRawEnumerator, Keys: keys}
}

// UncategorizedName is the display name of the uncategorized bucket.
const UncategorizedName = "Uncategorized"

// Node is a catalog tree node. Which fields are meaningful depends on Kind:
// members carry Entry, everything else is a group with children.
type Node struct {
	Kind        Kind
	Name        string
	Description string
	Entry       *Entry

	parent    *Node
	children  []*Node
	populated bool
	source    Source

	// LibraryRoot only.
	lib           *library.Handle
	changed       bool
	orgReadOnly   bool
	uncategorized *Node
}

// NewGroup returns an unpopulated group that materializes from src.
// A group built with SourceNone starts populated and empty.
func NewGroup(name, description string, src Source) *Node {
	return &Node{
		Kind:        KindGroup,
		Name:        name,
		Description: description,
		source:      src,
		populated:   src.Kind == SourceNone,
	}
}

// NewMember wraps e in a leaf node.
func NewMember(e *Entry) *Node {
	return &Node{Kind: KindMember, Name: e.Key, Entry: e, populated: true}
}

// IsGroup reports whether n can hold children.
func (n *Node) IsGroup() bool { return n.Kind != KindMember }

// Parent returns the containing node, or nil for roots and detached nodes.
func (n *Node) Parent() *Node { return n.parent }

// Populated reports whether the children have been materialized.
func (n *Node) Populated() bool { return n.populated }

// Children returns the current children without populating.
func (n *Node) Children() []*Node { return n.children }

// Key returns the entry key of a member node, or "".
func (n *Node) Key() string {
	if n.Entry == nil {
		return ""
	}
	return n.Entry.Key
}

// PendingSource returns the deferred source of an unpopulated group.
func (n *Node) PendingSource() (Source, bool) {
	if n.populated {
		return Source{}, false
	}
	return n.source, true
}

// Library returns the library bound to a root node.
func (n *Node) Library() *library.Handle { return n.lib }

// Changed reports whether a root's organization differs from its document.
func (n *Node) Changed() bool { return n.changed }

// ClearChanged resets the changed flag after a successful write.
func (n *Node) ClearChanged() { n.changed = false }

// OrganizationReadOnly reports whether a root's organization may be edited.
func (n *Node) OrganizationReadOnly() bool { return n.orgReadOnly }

// Uncategorized returns a root's uncategorized bucket, or nil.
func (n *Node) Uncategorized() *Node { return n.uncategorized }

// IsFavorites reports whether n is the favorites root.
func (n *Node) IsFavorites() bool {
	return n.Kind == KindLibraryRoot && n.lib != nil && n.lib.Favorites
}

// FileOf resolves the library root owning n. Detached nodes resolve to nil.
func FileOf(n *Node) *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.Kind == KindLibraryRoot {
			return cur
		}
	}
	return nil
}

// MarkChanged flags the root owning n as changed.
func MarkChanged(n *Node) {
	if root := FileOf(n); root != nil {
		root.changed = true
	}
}

// IsAncestor reports whether a is n or one of n's ancestors.
func IsAncestor(a, n *Node) bool {
	for cur := n; cur != nil; cur = cur.parent {
		if cur == a {
			return true
		}
	}
	return false
}

// IndexOf returns the position of child in n's children, or -1.
func (n *Node) IndexOf(child *Node) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}
	return -1
}

// FirstLeafIndex returns the index before which a new subgroup is inserted:
// the first member child, else the uncategorized bucket, else the end.
func (n *Node) FirstLeafIndex() int {
	for i, c := range n.children {
		if c.Kind == KindMember || c.Kind == KindUncategorized {
			return i
		}
	}
	return len(n.children)
}

// Insert places child at index (clamped), detaching it from any previous
// parent first. Inserting into an unpopulated group is the caller's bug;
// the group is populated by the catalog before reorganization.
func (n *Node) Insert(child *Node, index int) {
	child.Detach()
	if index < 0 || index > len(n.children) {
		index = len(n.children)
	}
	n.children = append(n.children, nil)
	copy(n.children[index+1:], n.children[index:])
	n.children[index] = child
	child.parent = n
}

// Append adds child at the end.
func (n *Node) Append(child *Node) { n.Insert(child, -1) }

// Detach removes n from its parent.
func (n *Node) Detach() {
	p := n.parent
	if p == nil {
		return
	}
	if i := p.IndexOf(n); i >= 0 {
		p.children = append(p.children[:i], p.children[i+1:]...)
	}
	n.parent = nil
}

// Clone returns a detached deep copy of n. Entries are copied, unpopulated
// groups keep their pending source.
func (n *Node) Clone() *Node {
	c := &Node{
		Kind:        n.Kind,
		Name:        n.Name,
		Description: n.Description,
		populated:   n.populated,
		source:      n.source,
	}
	if c.Kind == KindLibraryRoot || c.Kind == KindUncategorized {
		c.Kind = KindGroup
	}
	if n.Entry != nil {
		c.Entry = n.Entry.Clone()
	}
	for _, ch := range n.children {
		cc := ch.Clone()
		cc.parent = c
		c.children = append(c.children, cc)
	}
	return c
}

// Walk visits n and its materialized descendants depth first. Returning
// false from fn skips the node's children.
func Walk(n *Node, fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		Walk(c, fn)
	}
}
