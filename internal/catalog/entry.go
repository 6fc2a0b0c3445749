package catalog

import (
	"github.com/agentic-research/geocat/api"
	"github.com/agentic-research/geocat/internal/library"
)

// Entry is one coordinate-system definition as seen by the catalog. Its
// identity is Key: two entries with the same key denote the same system.
type Entry struct {
	Key         string
	Description string
	Library     *library.Handle
	Def         library.Definition
}

// NewEntry materializes key from lib. It returns library.ErrNotFound or
// library.ErrConstruction from the store unchanged.
func NewEntry(lib *library.Handle, key string) (*Entry, error) {
	if lib == nil || lib.Store == nil {
		return nil, library.ErrNotFound
	}
	d, err := lib.Store.Lookup(key)
	if err != nil {
		return nil, err
	}
	return EntryFromDefinition(lib, d), nil
}

// EntryFromDefinition wraps an already loaded definition.
func EntryFromDefinition(lib *library.Handle, d library.Definition) *Entry {
	return &Entry{Key: d.Key, Description: d.Description, Library: lib, Def: d}
}

// Clone returns an independent copy.
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}

// Info projects e for the JSON surfaces.
func (e *Entry) Info() api.EntryInfo {
	info := api.EntryInfo{
		Key:         e.Key,
		Description: e.Description,
		Datum:       e.Def.Datum,
		Ellipsoid:   e.Def.Ellipsoid,
		Group:       e.Def.Group,
		Location:    e.Def.Location,
		Source:      e.Def.Source,
		EPSG:        e.Def.EPSG,
	}
	if e.Library != nil {
		info.Library = e.Library.Name
	}
	return info
}
