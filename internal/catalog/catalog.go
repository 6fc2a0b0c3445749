package catalog

import (
	"errors"
	"io"

	"github.com/agentic-research/geocat/api"
	"github.com/agentic-research/geocat/internal/library"
	"github.com/sirupsen/logrus"
)

// Filter decides whether an entry is shown in the catalog.
type Filter func(*Entry) bool

// Catalog is the set of library roots plus the favorites root.
//
// Catalog is not safe for concurrent mutation. Populate, reorganization and
// persistence must be serialized by the caller.
type Catalog struct {
	roots     []*Node
	favorites *Node
	filter    Filter
	log       logrus.FieldLogger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithFilter installs an entry filter applied by every population path.
func WithFilter(f Filter) Option { return func(c *Catalog) { c.filter = f } }

// WithLogger sets the logger used for skipped entries.
func WithLogger(l logrus.FieldLogger) Option { return func(c *Catalog) { c.log = l } }

// New returns an empty catalog.
func New(opts ...Option) *Catalog {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	c := &Catalog{log: discard}
	for _, o := range opts {
		o(c)
	}
	return c
}

// AddLibrary creates the root for h. With a nil doc the root lists the
// library's native groups; otherwise the document's groups. In both cases an
// uncategorized bucket follows. Nothing is materialized until Populate.
func (c *Catalog) AddLibrary(h *library.Handle, doc *api.Organization, orgReadOnly bool) *Node {
	root := c.newRoot(h, doc, orgReadOnly)
	if h.Favorites {
		c.favorites = root
	} else {
		c.roots = append(c.roots, root)
	}
	return root
}

// SetFavorites creates the favorites root from its document.
func (c *Catalog) SetFavorites(h *library.Handle, doc *api.Organization, orgReadOnly bool) *Node {
	h.Favorites = true
	return c.AddLibrary(h, doc, orgReadOnly)
}

func (c *Catalog) newRoot(h *library.Handle, doc *api.Organization, orgReadOnly bool) *Node {
	root := &Node{
		Kind:        KindLibraryRoot,
		Name:        h.Name,
		lib:         h,
		orgReadOnly: orgReadOnly,
	}
	if doc != nil {
		root.Description = doc.Root.Description
		root.source = FromDocument(&doc.Root)
	}
	return root
}

// Roots returns the library roots followed by favorites, if set.
func (c *Catalog) Roots() []*Node {
	out := append([]*Node(nil), c.roots...)
	if c.favorites != nil {
		out = append(out, c.favorites)
	}
	return out
}

// Favorites returns the favorites root, or nil.
func (c *Catalog) Favorites() *Node { return c.favorites }

// Root returns the root named name.
func (c *Catalog) Root(name string) *Node {
	for _, r := range c.Roots() {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Libraries returns the handles of the content-bearing libraries.
func (c *Catalog) Libraries() []*library.Handle {
	out := make([]*library.Handle, 0, len(c.roots))
	for _, r := range c.roots {
		out = append(out, r.lib)
	}
	return out
}

// Populate materializes n's children once. Later calls are no-ops.
func (c *Catalog) Populate(n *Node) {
	if n == nil || n.populated || n.Kind == KindMember {
		return
	}
	// Set first so that nested population reached from here cannot re-enter.
	n.populated = true

	switch n.Kind {
	case KindUncategorized:
		c.populateUncategorized(n)
		return
	case KindLibraryRoot:
		c.populateRoot(n)
		return
	}
	c.populateFrom(n, n.source)
	n.source = Source{}
}

func (c *Catalog) populateRoot(n *Node) {
	if n.source.Kind == SourceSerialized {
		c.populateFrom(n, n.source)
	} else if !n.lib.Favorites {
		for _, ng := range n.lib.NativeGroups() {
			n.Append(NewGroup(ng.Name, ng.Description, FromNative(ng)))
		}
	}
	n.source = Source{}

	if !n.lib.Favorites {
		bucket := &Node{Kind: KindUncategorized, Name: UncategorizedName}
		n.uncategorized = bucket
		n.Append(bucket)
	}
}

func (c *Catalog) populateFrom(n *Node, src Source) {
	switch src.Kind {
	case SourceNativeGroup:
		if src.Native.Members != nil {
			for key := range src.Native.Members() {
				c.addMember(n, key)
			}
		}
	case SourceSerialized:
		if src.Doc == nil {
			return
		}
		for i := range src.Doc.Groups {
			g := &src.Doc.Groups[i]
			n.Append(NewGroup(g.Name, g.Description, FromDocument(g)))
		}
		for _, m := range src.Doc.Members {
			c.addMember(n, m.KeyName)
		}
	case SourceRawEnumerator:
		if src.Keys != nil {
			for key := range src.Keys() {
				c.addMember(n, key)
			}
		}
	}
}

func (c *Catalog) populateUncategorized(bucket *Node) {
	root := bucket.parent
	if root == nil || root.lib == nil || root.lib.Store == nil {
		return
	}
	seen := make(map[string]struct{})
	for _, child := range root.children {
		if child != bucket {
			c.collectKeys(child, seen)
		}
	}
	for key := range root.lib.Store.Enumerate() {
		if _, ok := seen[key]; ok {
			continue
		}
		c.addMember(bucket, key)
	}
}

// Uncategorize returns keys to root's bucket when the library still holds
// them and no organized node of root reaches them any more. A bucket that was
// never populated is left alone; it computes its members when first opened.
func (c *Catalog) Uncategorize(root *Node, keys ...string) {
	bucket := loadedBucket(root)
	if bucket == nil {
		return
	}
	for _, key := range keys {
		if !root.lib.Contains(key) || c.organizes(root, key) || c.ContainsEntry(bucket, key, false) {
			continue
		}
		c.addMember(bucket, key)
	}
}

// Categorize drops keys that root now organizes from its bucket.
func (c *Catalog) Categorize(root *Node, keys ...string) {
	bucket := loadedBucket(root)
	if bucket == nil {
		return
	}
	for _, key := range keys {
		if !c.organizes(root, key) {
			continue
		}
		for _, ch := range append([]*Node(nil), bucket.children...) {
			if ch.Kind == KindMember && ch.Entry.Key == key {
				ch.Detach()
			}
		}
	}
}

// organizes reports whether key is reachable from root outside its bucket.
func (c *Catalog) organizes(root *Node, key string) bool {
	for _, ch := range root.children {
		switch ch.Kind {
		case KindUncategorized:
		case KindMember:
			if ch.Entry.Key == key {
				return true
			}
		default:
			if c.ContainsEntry(ch, key, true) {
				return true
			}
		}
	}
	return false
}

func loadedBucket(root *Node) *Node {
	if root == nil || root.lib == nil || root.uncategorized == nil || !root.uncategorized.populated {
		return nil
	}
	return root.uncategorized
}

// collectKeys adds every member key reachable from n, populating as needed.
func (c *Catalog) collectKeys(n *Node, seen map[string]struct{}) {
	if n.Kind == KindMember {
		seen[n.Entry.Key] = struct{}{}
		return
	}
	if n.Kind == KindUncategorized {
		return
	}
	c.Populate(n)
	for _, ch := range n.children {
		c.collectKeys(ch, seen)
	}
}

// addMember materializes key into a member of n. Keys that do not exist or
// fail to construct are skipped, as are those the filter rejects.
func (c *Catalog) addMember(n *Node, key string) {
	e, err := c.Materialize(n, key)
	if err != nil {
		c.log.WithField("key", key).WithError(err).Debug("skipping entry")
		return
	}
	if c.filter != nil && !c.filter(e) {
		return
	}
	n.Append(NewMember(e))
}

// Materialize builds the entry for key in the context of n: from the library
// of n's root, or for favorites and detached groups from the first library
// that has it.
func (c *Catalog) Materialize(n *Node, key string) (*Entry, error) {
	root := FileOf(n)
	if root != nil && !root.lib.Favorites {
		return NewEntry(root.lib, key)
	}
	return c.Resolve(key)
}

// Resolve looks key up across the content libraries in order.
func (c *Catalog) Resolve(key string) (*Entry, error) {
	var firstErr error
	for _, r := range c.roots {
		e, err := NewEntry(r.lib, key)
		if err == nil {
			return e, nil
		}
		if firstErr == nil || errors.Is(firstErr, library.ErrNotFound) {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = library.ErrNotFound
	}
	return nil, firstErr
}

// ContainsEntry reports whether group holds an entry with key. With recurse
// set, unpopulated subgroups are populated rather than treated as empty.
func (c *Catalog) ContainsEntry(group *Node, key string, recurse bool) bool {
	if group == nil || group.Kind == KindMember {
		return false
	}
	if recurse {
		c.Populate(group)
	}
	for _, ch := range group.children {
		if ch.Kind == KindMember {
			if ch.Entry.Key == key {
				return true
			}
			continue
		}
		if recurse && c.ContainsEntry(ch, key, true) {
			return true
		}
	}
	return false
}

// PopulateAll populates n and every group below it.
func (c *Catalog) PopulateAll(n *Node) {
	c.Populate(n)
	for _, ch := range n.children {
		if ch.IsGroup() {
			c.PopulateAll(ch)
		}
	}
}

// EntryCount populates the whole catalog and counts member nodes.
func (c *Catalog) EntryCount() int {
	total := 0
	for _, r := range c.Roots() {
		c.PopulateAll(r)
		Walk(r, func(n *Node) bool {
			if n.Kind == KindMember {
				total++
			}
			return true
		})
	}
	return total
}

// Info summarizes root r without populating it.
func Info(r *Node) api.LibraryInfo {
	info := api.LibraryInfo{
		Name:     r.Name,
		ReadOnly: r.orgReadOnly,
		Changed:  r.changed,
	}
	if r.lib != nil {
		info.Favorites = r.lib.Favorites
		info.User = r.lib.User
		info.Organization = r.lib.Organization
		if r.lib.Store != nil {
			info.Entries = r.lib.Store.Count()
		}
	}
	return info
}
