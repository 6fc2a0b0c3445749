package library

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDictionary = `{
  "definitions": [
    {"key": "UTM84-10N", "description": "UTM Zone 10 North", "datum": "WGS84", "epsg": 32610},
    {"key": "UTM84-11N", "description": "UTM Zone 11 North", "datum": "WGS84", "epsg": 32611},
    {"key": "NAD83", "description": "North American Datum 1983", "epsg": 4269},
    {"key": "BROKEN", "description": 17},
    {"description": "no key, not part of the library"}
  ],
  "groups": [
    {"name": "UTM", "description": "Universal Transverse Mercator", "members": ["UTM84-10N", "UTM84-11N"]}
  ]
}`

func writeDictionary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dictionary.json")
	require.NoError(t, os.WriteFile(path, []byte(testDictionary), 0o644))
	return path
}

func TestJSONLibrary_Load(t *testing.T) {
	lib, err := LoadJSON(writeDictionary(t), "")
	require.NoError(t, err)

	assert.True(t, lib.IsReadOnly())
	assert.Equal(t, 4, lib.Count())
	assert.Equal(t, []string{"UTM84-10N", "UTM84-11N", "NAD83", "BROKEN"}, slices.Collect(lib.Enumerate()))

	d, err := lib.Lookup("UTM84-10N")
	require.NoError(t, err)
	assert.Equal(t, 32610, d.EPSG)
	assert.Equal(t, "WGS84", d.Datum)

	_, err = lib.Lookup("BROKEN")
	assert.ErrorIs(t, err, ErrConstruction)
	_, err = lib.Lookup("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJSONLibrary_NativeGroups(t *testing.T) {
	lib, err := LoadJSON(writeDictionary(t), "")
	require.NoError(t, err)

	groups := lib.NativeGroups()
	require.Len(t, groups, 1)
	assert.Equal(t, "UTM", groups[0].Name)
	assert.Equal(t, []string{"UTM84-10N", "UTM84-11N"}, slices.Collect(groups[0].Members()))
}

func TestJSONLibrary_Selector(t *testing.T) {
	lib, err := LoadJSON(writeDictionary(t), "$.definitions[?(@.epsg > 30000)]")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"UTM84-10N", "UTM84-11N"}, slices.Collect(lib.Enumerate()))
}

func TestJSONLibrary_Errors(t *testing.T) {
	_, err := LoadJSON(filepath.Join(t.TempDir(), "missing.json"), "")
	assert.Error(t, err)

	_, err = NewJSONLibrary(map[string]any{}, "$[[[")
	assert.Error(t, err)

	lib, err := NewJSONLibrary(map[string]any{}, "")
	require.NoError(t, err)
	_, err = lib.Create(Definition{Key: "X"})
	assert.ErrorIs(t, err, ErrReadOnly)
}
