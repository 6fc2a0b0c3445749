// Package reorg validates and applies structural edits to the catalog: move
// and copy of entries and groups, removal and renaming.
package reorg

import (
	"context"
	"fmt"
	"io"

	"github.com/agentic-research/geocat/internal/catalog"
	"github.com/agentic-research/geocat/internal/library"
	"github.com/sirupsen/logrus"
)

// Effect is the semantics of a transfer.
type Effect uint8

const (
	Move Effect = iota
	Copy
)

func (e Effect) String() string {
	if e == Copy {
		return "copy"
	}
	return "move"
}

// ParseEffect accepts "move" or "copy".
func ParseEffect(s string) (Effect, error) {
	switch s {
	case "move", "":
		return Move, nil
	case "copy":
		return Copy, nil
	}
	return Move, fmt.Errorf("unknown effect %q", s)
}

// Status classifies a Result.
type Status uint8

const (
	Success Status = iota
	Rejected
	StoreError
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Rejected:
		return "rejected"
	case StoreError:
		return "store-error"
	}
	return "unknown"
}

// PendingTransfer is a picked-up node waiting to be dropped somewhere.
type PendingTransfer struct {
	Source *catalog.Node
	Effect Effect
}

// Result reports the outcome of a reorganization. For transfers Effect is
// the resolved effect, which may differ from the requested one; other edits
// leave Transfer unset and Effect meaningless.
type Result struct {
	Status   Status
	Effect   Effect
	Transfer bool
	Reason   string
	Err      error
}

// OK reports whether the operation was applied.
func (r Result) OK() bool { return r.Status == Success }

func (r Result) String() string {
	switch {
	case r.Status == Success && r.Transfer:
		return fmt.Sprintf("%s: %s", r.Status, r.Effect)
	case r.Status == Success:
		return r.Status.String()
	case r.Err != nil:
		return fmt.Sprintf("%s: %s: %v", r.Status, r.Reason, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Status, r.Reason)
}

func rejected(format string, args ...any) Result {
	return Result{Status: Rejected, Reason: fmt.Sprintf(format, args...)}
}

// Reorganizer applies edits to one catalog. Like the catalog itself it is
// not safe for concurrent use.
type Reorganizer struct {
	cat *catalog.Catalog
	log logrus.FieldLogger
}

// Option configures a Reorganizer.
type Option func(*Reorganizer)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(r *Reorganizer) { r.log = l } }

// New returns a Reorganizer over c.
func New(c *catalog.Catalog, opts ...Option) *Reorganizer {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	r := &Reorganizer{cat: c, log: discard}
	for _, o := range opts {
		o(r)
	}
	return r
}

// plan is a validated transfer.
type plan struct {
	source  *catalog.Node
	target  *catalog.Node
	before  *catalog.Node // leaf the drop landed on, if any
	srcRoot *catalog.Node
	dstRoot *catalog.Node
	effect  Effect
	foreign []*catalog.Entry // entries the target library must create
}

func (r *Reorganizer) plan(t PendingTransfer, target *catalog.Node) (*plan, Result) {
	src := t.Source
	if src == nil || target == nil {
		return nil, rejected("nothing to drop")
	}
	p := &plan{source: src, target: target, effect: t.Effect}
	if target.Kind == catalog.KindMember {
		p.before = target
		p.target = target.Parent()
		if p.target == nil {
			return nil, rejected("drop target %s has no group", target.Key())
		}
	}

	p.srcRoot, p.dstRoot = catalog.FileOf(src), catalog.FileOf(p.target)
	if p.srcRoot == nil || p.dstRoot == nil {
		return nil, rejected("source or target is not in a library")
	}
	if p.dstRoot.OrganizationReadOnly() {
		return nil, rejected("organization of %s is read-only", p.dstRoot.Name)
	}
	switch src.Kind {
	case catalog.KindLibraryRoot:
		return nil, rejected("a library cannot be moved")
	case catalog.KindUncategorized:
		return nil, rejected("the %s bucket cannot be moved", catalog.UncategorizedName)
	}
	if p.target.Kind == catalog.KindUncategorized {
		return nil, rejected("cannot drop into %s", catalog.UncategorizedName)
	}
	if src == p.target || src == p.before {
		return nil, rejected("cannot drop %s onto itself", src.Name)
	}
	if src.IsGroup() && catalog.IsAncestor(src, p.target) {
		return nil, rejected("cannot drop group %s into its own subtree", src.Name)
	}

	if p.effect == Move && p.srcRoot.OrganizationReadOnly() {
		p.effect = Copy
	}
	if p.effect == Move && p.dstRoot.IsFavorites() && p.srcRoot != p.dstRoot {
		p.effect = Copy
	}
	if p.effect == Move && src.Parent() == p.target && p.before == nil {
		return nil, rejected("%s is already in %s", src.Name, p.target.Name)
	}

	r.cat.Populate(p.target)
	if src.Kind == catalog.KindGroup && !(p.effect == Move && src.Parent() == p.target) {
		for _, sib := range p.target.Children() {
			if sib.Kind == catalog.KindGroup && sib.Name == src.Name {
				return nil, rejected("%s already has a group named %s", p.target.Name, src.Name)
			}
		}
	}
	if src.Kind == catalog.KindMember {
		reorder := p.effect == Move && src.Parent() == p.target
		if !reorder && r.cat.ContainsEntry(p.target, src.Key(), false) {
			return nil, rejected("%s already contains %s", p.target.Name, src.Key())
		}
	}

	if p.srcRoot != p.dstRoot && !p.dstRoot.IsFavorites() {
		dst := p.dstRoot.Library()
		for _, e := range r.entriesOf(src) {
			if !dst.Contains(e.Key) {
				p.foreign = append(p.foreign, e)
			}
		}
		if len(p.foreign) > 0 {
			if !dst.Mutable() {
				return nil, rejected("library %s is read-only", dst.Name)
			}
			p.effect = Copy
		}
	}
	return p, Result{Status: Success, Effect: p.effect, Transfer: true}
}

// entriesOf returns the distinct entries under n, populating groups.
func (r *Reorganizer) entriesOf(n *catalog.Node) []*catalog.Entry {
	if n.Kind == catalog.KindMember {
		return []*catalog.Entry{n.Entry}
	}
	r.cat.PopulateAll(n)
	var out []*catalog.Entry
	seen := make(map[string]bool)
	catalog.Walk(n, func(c *catalog.Node) bool {
		if c.Kind == catalog.KindMember && !seen[c.Key()] {
			seen[c.Key()] = true
			out = append(out, c.Entry)
		}
		return true
	})
	return out
}

// Validate reports whether dropping t onto target would be accepted. It
// populates the target but never changes the organization or a library.
func (r *Reorganizer) Validate(t PendingTransfer, target *catalog.Node) bool {
	_, res := r.plan(t, target)
	return res.OK()
}

// Resolve returns the effect a drop would have, or a rejection.
func (r *Reorganizer) Resolve(t PendingTransfer, target *catalog.Node) Result {
	_, res := r.plan(t, target)
	return res
}

// Execute validates and applies a drop. Entries foreign to the target
// library are created before the tree is touched; if any creation fails the
// ones already created are deleted again and the tree is left unchanged.
func (r *Reorganizer) Execute(ctx context.Context, t PendingTransfer, target *catalog.Node) Result {
	p, res := r.plan(t, target)
	if !res.OK() {
		return res
	}
	if err := ctx.Err(); err != nil {
		return Result{Status: Rejected, Effect: p.effect, Reason: "cancelled", Err: err}
	}

	created, err := r.create(p)
	if err != nil {
		return Result{Status: StoreError, Effect: p.effect, Reason: "create in " + p.dstRoot.Name, Err: err}
	}

	var moved []string
	if p.effect == Move && hasBucket(p.srcRoot) {
		moved = keysOf(r.entriesOf(p.source))
	}

	node := p.source
	if p.effect == Copy {
		node = p.source.Clone()
	} else {
		node.Detach()
		catalog.MarkChanged(p.srcRoot)
	}
	if !p.dstRoot.IsFavorites() && (p.effect == Copy || p.srcRoot != p.dstRoot) {
		rebind(node, p.dstRoot.Library(), created)
	}
	p.target.Insert(node, insertIndex(p, node))
	catalog.MarkChanged(p.target)
	r.cat.Uncategorize(p.srcRoot, moved...)
	if hasBucket(p.dstRoot) {
		r.cat.Categorize(p.dstRoot, keysOf(r.entriesOf(node))...)
	}

	r.log.WithFields(logrus.Fields{
		"source": catalog.PathOf(p.source),
		"target": catalog.PathOf(p.target),
		"effect": p.effect,
	}).Info("reorganized")
	return Result{Status: Success, Effect: p.effect, Transfer: true}
}

// hasBucket reports whether root has an uncategorized bucket that has been
// opened, and so must track what the organization no longer reaches.
func hasBucket(root *catalog.Node) bool {
	b := root.Uncategorized()
	return b != nil && b.Populated()
}

func keysOf(entries []*catalog.Entry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

func (r *Reorganizer) create(p *plan) (map[string]library.Definition, error) {
	if len(p.foreign) == 0 {
		return nil, nil
	}
	store := p.dstRoot.Library().Store
	created := make(map[string]library.Definition, len(p.foreign))
	for _, e := range p.foreign {
		def, err := store.Create(e.Def)
		if err != nil {
			for _, d := range created {
				if derr := store.Delete(d.Key); derr != nil {
					r.log.WithField("key", d.Key).WithError(derr).Warn("rollback of created definition failed")
				}
			}
			return nil, fmt.Errorf("create %s: %w", e.Key, err)
		}
		created[e.Key] = def
	}
	return created, nil
}

// rebind points the entries under n at lib, using created definitions for
// keys that were just added.
func rebind(n *catalog.Node, lib *library.Handle, created map[string]library.Definition) {
	catalog.Walk(n, func(c *catalog.Node) bool {
		if c.Kind != catalog.KindMember {
			return true
		}
		if def, ok := created[c.Key()]; ok {
			c.Entry = catalog.EntryFromDefinition(lib, def)
			c.Name = def.Key
		} else if e, err := catalog.NewEntry(lib, c.Key()); err == nil {
			c.Entry = e
		}
		return true
	})
}

func insertIndex(p *plan, node *catalog.Node) int {
	if node.IsGroup() {
		return p.target.FirstLeafIndex()
	}
	if p.before != nil {
		if i := p.target.IndexOf(p.before); i >= 0 {
			return i
		}
	}
	// Entries dropped on a root go before its bucket.
	if b := p.target.Uncategorized(); b != nil {
		return p.target.IndexOf(b)
	}
	return -1
}

// Remove deletes node from its organization. With deleteFromLibrary set, a
// member is also deleted from the library that holds it, which must be the
// mutable library of the node's own root.
func (r *Reorganizer) Remove(ctx context.Context, node *catalog.Node, deleteFromLibrary bool) Result {
	if node == nil {
		return rejected("nothing to remove")
	}
	root := catalog.FileOf(node)
	if root == nil {
		return rejected("%s is not in a library", node.Name)
	}
	switch node.Kind {
	case catalog.KindLibraryRoot, catalog.KindUncategorized:
		return rejected("%s cannot be removed", node.Name)
	}
	inBucket := node.Parent() != nil && node.Parent().Kind == catalog.KindUncategorized
	if root.OrganizationReadOnly() && !(inBucket && deleteFromLibrary) {
		return rejected("organization of %s is read-only", root.Name)
	}
	if inBucket && !deleteFromLibrary {
		return rejected("%s is not organized; only deletion from the library removes it", node.Key())
	}
	if err := ctx.Err(); err != nil {
		return Result{Status: Rejected, Reason: "cancelled", Err: err}
	}

	if deleteFromLibrary {
		if node.Kind != catalog.KindMember {
			return rejected("only entries can be deleted from a library")
		}
		lib := root.Library()
		if root.IsFavorites() || node.Entry.Library != lib {
			return rejected("%s does not belong to library %s", node.Key(), root.Name)
		}
		if !lib.Mutable() {
			return rejected("library %s is read-only", lib.Name)
		}
		if err := lib.Store.Delete(node.Key()); err != nil {
			return Result{Status: StoreError, Reason: "delete " + node.Key(), Err: err}
		}
	}

	var keys []string
	if !inBucket && hasBucket(root) {
		keys = keysOf(r.entriesOf(node))
	}
	node.Detach()
	if !inBucket {
		catalog.MarkChanged(root)
		r.cat.Uncategorize(root, keys...)
	}
	r.log.WithFields(logrus.Fields{"library": root.Name, "node": node.Name}).Info("removed")
	return Result{Status: Success}
}

// Rename changes a group's name and description.
func (r *Reorganizer) Rename(group *catalog.Node, name, description string) Result {
	if group == nil || group.Kind != catalog.KindGroup {
		return rejected("only groups can be renamed")
	}
	if name == "" {
		return rejected("group name is empty")
	}
	root := catalog.FileOf(group)
	if root == nil {
		return rejected("%s is not in a library", group.Name)
	}
	if root.OrganizationReadOnly() {
		return rejected("organization of %s is read-only", root.Name)
	}
	if p := group.Parent(); p != nil && name != group.Name {
		for _, sib := range p.Children() {
			if sib.IsGroup() && sib.Name == name {
				return rejected("%s already has a group named %s", p.Name, name)
			}
		}
	}
	group.Name = name
	group.Description = description
	catalog.MarkChanged(root)
	return Result{Status: Success}
}

// CreateGroup adds an empty group under parent, before parent's first leaf.
func (r *Reorganizer) CreateGroup(parent *catalog.Node, name, description string) (*catalog.Node, Result) {
	if parent == nil || !parent.IsGroup() || parent.Kind == catalog.KindUncategorized {
		return nil, rejected("groups can only be created inside a group")
	}
	if name == "" {
		return nil, rejected("group name is empty")
	}
	root := catalog.FileOf(parent)
	if root == nil {
		return nil, rejected("%s is not in a library", parent.Name)
	}
	if root.OrganizationReadOnly() {
		return nil, rejected("organization of %s is read-only", root.Name)
	}
	r.cat.Populate(parent)
	if r.cat.Child(parent, name) != nil {
		return nil, rejected("%s already has a child named %s", parent.Name, name)
	}
	g := catalog.NewGroup(name, description, catalog.Source{})
	parent.Insert(g, parent.FirstLeafIndex())
	catalog.MarkChanged(root)
	return g, Result{Status: Success}
}
