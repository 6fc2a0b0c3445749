// Package library defines the backing stores that hold coordinate-system
// definitions and the handles the catalog uses to refer to them.
package library

import (
	"errors"
	"iter"
	"strconv"
)

var (
	// ErrNotFound is returned by Lookup when a key does not exist.
	ErrNotFound = errors.New("definition not found")
	// ErrConstruction marks a definition that exists but cannot be materialized.
	ErrConstruction = errors.New("definition cannot be constructed")
	// ErrReadOnly is returned by mutating operations on a read-only store.
	ErrReadOnly = errors.New("library is read-only")
	// ErrNoUniqueName is returned by Create when no copy name is free.
	ErrNoUniqueName = errors.New("no unique name available")
	// ErrExists is returned when a replacement key collides with another definition.
	ErrExists = errors.New("definition already exists")
)

// Definition is the stored form of one coordinate system.
type Definition struct {
	Key         string
	Description string
	Datum       string
	Ellipsoid   string
	Group       string // provider classification, not a catalog group
	Location    string
	Source      string
	EPSG        int
}

// SearchFields returns the searchable attributes in the order they are
// weighted, most significant first. EPSG is rendered as decimal or empty.
func (d Definition) SearchFields() [8]string {
	epsg := ""
	if d.EPSG > 0 {
		epsg = strconv.Itoa(d.EPSG)
	}
	return [8]string{d.Key, d.Description, epsg, d.Datum, d.Ellipsoid, d.Group, d.Location, d.Source}
}

// Store is one physical library of definitions.
type Store interface {
	// Enumerate yields every key. Restartable; order is not guaranteed.
	Enumerate() iter.Seq[string]
	Lookup(key string) (Definition, error)
	// Create adds a definition modelled on template. The template key is kept
	// when it is free in this store, otherwise a copy name is generated.
	Create(template Definition) (Definition, error)
	Delete(key string) error
	// Replace swaps the definition stored under oldKey for def. def.Key may
	// differ from oldKey (a rename).
	Replace(oldKey string, def Definition) error
	IsReadOnly() bool
	Contains(key string) bool
	Count() int
}

// NativeGroup is a group defined by the library itself rather than by an
// organization document.
type NativeGroup struct {
	Name        string
	Description string
	Members     func() iter.Seq[string]
}

// GroupLister is implemented by stores that carry native groups.
type GroupLister interface {
	NativeGroups() []NativeGroup
}

// Handle identifies a library inside a catalog.
type Handle struct {
	Name  string
	Path  string
	Store Store // nil for the favorites pseudo-library
	// Organization is the path of the organization document.
	Organization string
	User         bool
	Favorites    bool
}

// NewHandle binds a store to a handle. The organization document defaults to
// the library path with an ".xml" suffix.
func NewHandle(name, path string, store Store, user bool) *Handle {
	h := &Handle{Name: name, Path: path, Store: store, User: user}
	if path != "" {
		h.Organization = path + ".xml"
	}
	return h
}

// NewFavorites returns the handle for the favorites pseudo-library. Its
// organization document is the favorites list itself.
func NewFavorites(organization string) *Handle {
	return &Handle{Name: "Favorites", Organization: organization, Favorites: true}
}

// Mutable reports whether definitions can be created, deleted or replaced.
func (h *Handle) Mutable() bool {
	return h.Store != nil && !h.Store.IsReadOnly()
}

// IsUserLibrary reports whether the handle is a user library.
func (h *Handle) IsUserLibrary() bool { return h.User }

// IsFavorites reports whether the handle is the favorites pseudo-library.
func (h *Handle) IsFavorites() bool { return h.Favorites }

// Contains reports whether the bound store holds key.
func (h *Handle) Contains(key string) bool {
	return h.Store != nil && h.Store.Contains(key)
}

// NativeGroups returns the store's native groups, if any.
func (h *Handle) NativeGroups() []NativeGroup {
	if gl, ok := h.Store.(GroupLister); ok {
		return gl.NativeGroups()
	}
	return nil
}

func sliceSeq(keys []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, k := range keys {
			if !yield(k) {
				return
			}
		}
	}
}
