package library

import (
	"fmt"
	"iter"
	"os"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// DefaultSelector selects definition records in a JSON dictionary.
const DefaultSelector = "$.definitions[*]"

const groupSelector = "$.groups[*]"

// JSONLibrary is a read-only Store loaded from a JSON dictionary. Records are
// kept in their parsed form and decoded on Lookup, so a malformed record only
// fails when it is materialized.
type JSONLibrary struct {
	path    string
	order   []string
	records map[string]map[string]any
	groups  []NativeGroup
}

// LoadJSON parses the dictionary at path and selects definition records with
// selector (DefaultSelector when empty). Records without a string "key" are
// not part of the library.
func LoadJSON(path, selector string) (*JSONLibrary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	doc, err := oj.Load(f)
	if err != nil {
		return nil, fmt.Errorf("parse dictionary %s: %w", path, err)
	}
	lib, err := NewJSONLibrary(doc, selector)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	lib.path = path
	return lib, nil
}

// NewJSONLibrary builds a library from an already parsed document.
func NewJSONLibrary(doc any, selector string) (*JSONLibrary, error) {
	if selector == "" {
		selector = DefaultSelector
	}
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}

	lib := &JSONLibrary{records: make(map[string]map[string]any)}
	for _, r := range x.Get(doc) {
		rec, ok := r.(map[string]any)
		if !ok {
			continue
		}
		key, ok := rec["key"].(string)
		if !ok || key == "" {
			continue
		}
		if _, dup := lib.records[key]; !dup {
			lib.order = append(lib.order, key)
		}
		lib.records[key] = rec
	}

	gx := jp.MustParseString(groupSelector)
	for _, g := range gx.Get(doc) {
		rec, ok := g.(map[string]any)
		if !ok {
			continue
		}
		name, _ := rec["name"].(string)
		if name == "" {
			continue
		}
		desc, _ := rec["description"].(string)
		var members []string
		if list, ok := rec["members"].([]any); ok {
			for _, m := range list {
				if s, ok := m.(string); ok {
					members = append(members, s)
				}
			}
		}
		lib.groups = append(lib.groups, NativeGroup{
			Name:        name,
			Description: desc,
			Members:     func() iter.Seq[string] { return sliceSeq(members) },
		})
	}
	return lib, nil
}

func (l *JSONLibrary) Enumerate() iter.Seq[string] { return sliceSeq(l.order) }

func (l *JSONLibrary) Lookup(key string) (Definition, error) {
	rec, ok := l.records[key]
	if !ok {
		return Definition{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	d, err := decodeRecord(rec)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w: %v", key, ErrConstruction, err)
	}
	return d, nil
}

func decodeRecord(rec map[string]any) (Definition, error) {
	d := Definition{}
	fields := []struct {
		name string
		dst  *string
	}{
		{"key", &d.Key},
		{"description", &d.Description},
		{"datum", &d.Datum},
		{"ellipsoid", &d.Ellipsoid},
		{"group", &d.Group},
		{"location", &d.Location},
		{"source", &d.Source},
	}
	for _, f := range fields {
		v, ok := rec[f.name]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return Definition{}, fmt.Errorf("field %s: expected string, got %T", f.name, v)
		}
		*f.dst = s
	}
	switch v := rec["epsg"].(type) {
	case nil:
	case int64:
		d.EPSG = int(v)
	case float64:
		if v != float64(int(v)) {
			return Definition{}, fmt.Errorf("field epsg: %v is not an integer", v)
		}
		d.EPSG = int(v)
	default:
		return Definition{}, fmt.Errorf("field epsg: expected number, got %T", v)
	}
	return d, nil
}

func (l *JSONLibrary) Create(Definition) (Definition, error) { return Definition{}, ErrReadOnly }
func (l *JSONLibrary) Delete(string) error                    { return ErrReadOnly }
func (l *JSONLibrary) Replace(string, Definition) error       { return ErrReadOnly }
func (l *JSONLibrary) IsReadOnly() bool                       { return true }

func (l *JSONLibrary) Contains(key string) bool {
	_, ok := l.records[key]
	return ok
}

func (l *JSONLibrary) Count() int { return len(l.records) }

func (l *JSONLibrary) NativeGroups() []NativeGroup { return l.groups }

var (
	_ Store       = (*JSONLibrary)(nil)
	_ GroupLister = (*JSONLibrary)(nil)
)
