// Package persist converts catalog roots to and from organization documents
// and writes changed roots back to disk.
package persist

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/agentic-research/geocat/api"
	"github.com/agentic-research/geocat/internal/catalog"
	"github.com/agentic-research/geocat/internal/library"
	"github.com/agentic-research/geocat/internal/writeback"
	"github.com/sirupsen/logrus"
)

// Serialize emits the organization of root. Unpopulated groups are written
// from their pending source, so serializing never forces population.
func Serialize(root *catalog.Node) *api.Organization {
	return &api.Organization{Root: serializeGroup(root)}
}

func serializeGroup(n *catalog.Node) api.Group {
	g := api.Group{Name: n.Name, Description: n.Description}

	if src, pending := n.PendingSource(); pending {
		switch src.Kind {
		case catalog.SourceSerialized:
			if src.Doc != nil {
				g.Members = append([]api.Member(nil), src.Doc.Members...)
				g.Groups = cloneGroups(src.Doc.Groups)
			}
		case catalog.SourceNativeGroup:
			g.Members = membersOf(src.Native)
		case catalog.SourceRawEnumerator:
			if src.Keys != nil {
				for k := range src.Keys() {
					g.Members = append(g.Members, api.Member{KeyName: k})
				}
			}
		case catalog.SourceNone:
			// An unexpanded root without a document lists its native groups.
			if lib := n.Library(); n.Kind == catalog.KindLibraryRoot && lib != nil {
				for _, ng := range lib.NativeGroups() {
					g.Groups = append(g.Groups, api.Group{
						Name:        ng.Name,
						Description: ng.Description,
						Members:     membersOf(ng),
					})
				}
			}
		}
		return g
	}

	for _, ch := range n.Children() {
		switch ch.Kind {
		case catalog.KindMember:
			g.Members = append(g.Members, api.Member{KeyName: ch.Key()})
		case catalog.KindGroup:
			g.Groups = append(g.Groups, serializeGroup(ch))
		case catalog.KindUncategorized, catalog.KindLibraryRoot:
		}
	}
	return g
}

func membersOf(ng library.NativeGroup) []api.Member {
	if ng.Members == nil {
		return nil
	}
	var out []api.Member
	for k := range ng.Members() {
		out = append(out, api.Member{KeyName: k})
	}
	return out
}

func cloneGroups(gs []api.Group) []api.Group {
	if gs == nil {
		return nil
	}
	out := make([]api.Group, len(gs))
	for i, g := range gs {
		out[i] = api.Group{
			Name:        g.Name,
			Description: g.Description,
			Members:     append([]api.Member(nil), g.Members...),
			Groups:      cloneGroups(g.Groups),
		}
	}
	return out
}

// Deserialize returns an unpopulated group backed by doc. Sub-groups are
// created only when the group is populated, and stay unpopulated themselves.
func Deserialize(doc *api.Organization) *catalog.Node {
	return catalog.NewGroup(doc.Root.Name, doc.Root.Description, catalog.FromDocument(&doc.Root))
}

// Marshal renders doc as indented XML with a header.
func Marshal(doc *api.Organization) ([]byte, error) {
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal organization: %w", err)
	}
	out := append([]byte(xml.Header), body...)
	return append(out, '\n'), nil
}

// Unmarshal parses an XML organization document.
func Unmarshal(data []byte) (*api.Organization, error) {
	var doc api.Organization
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse organization: %w", err)
	}
	return &doc, nil
}

// Load reads the organization document at path. A missing file is not an
// error: it returns nil so the root falls back to the library's own groups.
func Load(path string) (*api.Organization, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read organization %s: %w", path, err)
	}
	doc, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// ReadOnly reports whether the organization document at path cannot be
// written by this process.
func ReadOnly(path string) bool {
	return !library.Writable(path)
}

// Flush writes root's organization if it changed since the last successful
// write. Success clears the changed flag; failure leaves it set and is not
// retried.
func Flush(root *catalog.Node, log logrus.FieldLogger) error {
	if !root.Changed() {
		return nil
	}
	lib := root.Library()
	if lib == nil || lib.Organization == "" {
		return fmt.Errorf("flush %s: no organization document", root.Name)
	}
	data, err := Marshal(Serialize(root))
	if err != nil {
		return fmt.Errorf("flush %s: %w", root.Name, err)
	}
	if err := writeback.ReplaceFile(lib.Organization, data, 0o644); err != nil {
		return fmt.Errorf("flush %s: %w", root.Name, err)
	}
	root.ClearChanged()
	if log != nil {
		log.WithField("library", root.Name).WithField("path", lib.Organization).Info("organization written")
	}
	return nil
}

// FlushAll flushes every changed root and joins the failures.
func FlushAll(c *catalog.Catalog, log logrus.FieldLogger) error {
	var errs []error
	for _, r := range c.Roots() {
		if err := Flush(r, log); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
