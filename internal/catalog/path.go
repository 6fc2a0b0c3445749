package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoPath is returned when a catalog path does not resolve.
var ErrNoPath = errors.New("no such catalog path")

// Segment is n's name as it appears in a catalog path.
func Segment(n *Node) string {
	name := n.Name
	if n.Kind == KindMember {
		name = n.Entry.Key
	}
	return strings.ReplaceAll(name, "/", "_")
}

// PathOf returns the slash-separated path of n from its root.
func PathOf(n *Node) string {
	var segs []string
	for cur := n; cur != nil; cur = cur.parent {
		segs = append(segs, Segment(cur))
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return strings.Join(segs, "/")
}

// SplitPath breaks p into its non-empty segments.
func SplitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Lookup resolves a path like "system/UTM/UTM84-10N", populating groups on
// the way. Groups match before entries when both carry the same segment.
func (c *Catalog) Lookup(p string) (*Node, error) {
	segs := SplitPath(p)
	if len(segs) == 0 {
		return nil, fmt.Errorf("%q: %w", p, ErrNoPath)
	}
	cur := c.Root(segs[0])
	if cur == nil {
		return nil, fmt.Errorf("%q: library %s: %w", p, segs[0], ErrNoPath)
	}
	for _, seg := range segs[1:] {
		next := c.Child(cur, seg)
		if next == nil {
			return nil, fmt.Errorf("%q: %s: %w", p, seg, ErrNoPath)
		}
		cur = next
	}
	return cur, nil
}

// Child populates n and returns the child whose segment is seg.
func (c *Catalog) Child(n *Node, seg string) *Node {
	if !n.IsGroup() {
		return nil
	}
	c.Populate(n)
	var member *Node
	for _, ch := range n.children {
		if Segment(ch) != seg {
			continue
		}
		if ch.IsGroup() {
			return ch
		}
		if member == nil {
			member = ch
		}
	}
	return member
}
