package library

import (
	"iter"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) (*SQLiteLibrary, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "user.db")
	lib, err := OpenSQLite(path, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	return lib, path
}

func TestSQLiteLibrary_CRUD(t *testing.T) {
	lib, _ := openTestSQLite(t)
	assert.False(t, lib.IsReadOnly())

	d, err := lib.Create(Definition{Key: "NAD83", Description: "North American Datum 1983", EPSG: 4269})
	require.NoError(t, err)
	assert.Equal(t, "NAD83", d.Key)

	got, err := lib.Lookup("NAD83")
	require.NoError(t, err)
	assert.Equal(t, 4269, got.EPSG)
	assert.Equal(t, "North American Datum 1983", got.Description)

	dup, err := lib.Create(Definition{Key: "NAD83"})
	require.NoError(t, err)
	assert.Equal(t, "Copy-NAD83", dup.Key)
	assert.Equal(t, 2, lib.Count())

	require.NoError(t, lib.Replace("Copy-NAD83", Definition{Key: "NAD83-local", Description: "local"}))
	assert.True(t, lib.Contains("NAD83-local"))
	assert.False(t, lib.Contains("Copy-NAD83"))

	require.NoError(t, lib.Delete("NAD83-local"))
	assert.ErrorIs(t, lib.Delete("NAD83-local"), ErrNotFound)
	assert.Equal(t, []string{"NAD83"}, slices.Collect(lib.Enumerate()))

	_, err = lib.Lookup("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteLibrary_ConstructionFailure(t *testing.T) {
	lib, _ := openTestSQLite(t)
	require.NoError(t, lib.Put(Definition{Key: "GOOD"}))
	_, err := lib.db.Exec(`INSERT INTO definitions (key, epsg) VALUES ('BAD', 'not-a-number')`)
	require.NoError(t, err)

	_, err = lib.Lookup("BAD")
	assert.ErrorIs(t, err, ErrConstruction)
	assert.ElementsMatch(t, []string{"GOOD", "BAD"}, slices.Collect(lib.Enumerate()))
}

func TestSQLiteLibrary_NativeGroups(t *testing.T) {
	lib, _ := openTestSQLite(t)
	require.NoError(t, lib.Put(Definition{Key: "UTM84-10N"}, Definition{Key: "UTM84-11N"}))
	require.NoError(t, lib.PutGroup(NativeGroup{
		Name:        "UTM",
		Description: "Universal Transverse Mercator",
		Members:     func() iter.Seq[string] { return sliceSeq([]string{"UTM84-11N", "UTM84-10N"}) },
	}, 0))

	groups := lib.NativeGroups()
	require.Len(t, groups, 1)
	assert.Equal(t, "UTM", groups[0].Name)
	assert.Equal(t, []string{"UTM84-11N", "UTM84-10N"}, slices.Collect(groups[0].Members()))
}

func TestSQLiteLibrary_ReadOnlyReopen(t *testing.T) {
	lib, path := openTestSQLite(t)
	require.NoError(t, lib.Put(Definition{Key: "WGS84"}))
	require.NoError(t, lib.Close())

	ro, err := OpenSQLite(path, true)
	require.NoError(t, err)
	defer func() { _ = ro.Close() }()

	assert.True(t, ro.IsReadOnly())
	assert.True(t, ro.Contains("WGS84"))
	_, err = ro.Create(Definition{Key: "NAD27"})
	assert.ErrorIs(t, err, ErrReadOnly)
}
