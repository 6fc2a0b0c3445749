package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/geocat/internal/library"
	"github.com/agentic-research/geocat/internal/persist"
)

const testDictionary = `{
  "definitions": [
    {"key": "UTM84-10N", "description": "UTM Zone 10 North", "datum": "WGS84", "epsg": 32610},
    {"key": "UTM84-11N", "description": "UTM Zone 11 North", "datum": "WGS84", "epsg": 32611},
    {"key": "NAD83", "description": "North American Datum 1983", "epsg": 4269}
  ],
  "groups": [
    {"name": "UTM", "description": "Universal Transverse Mercator", "members": ["UTM84-10N", "UTM84-11N"]}
  ]
}`

const testConfig = `
favorites = "favorites.xml"

library "system" {
  kind   = "json"
  path   = "dictionary.json"
  system = true
}

library "mine" {
  kind = "sqlite"
  path = "user.db"
}
`

func setup(t *testing.T) (cfgPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dictionary.json"), []byte(testDictionary), 0o644))
	cfgPath = filepath.Join(dir, "geocat.hcl")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o644))
	return cfgPath, dir
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestTree_Text(t *testing.T) {
	cfg, _ := setup(t)

	out, err := run(t, cfg, "tree", "--depth", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "system/\n")
	assert.Contains(t, out, "  UTM/  Universal Transverse Mercator\n")
	assert.Contains(t, out, "  Uncategorized/\n")
	assert.Contains(t, out, "Favorites/\n")
	assert.NotContains(t, out, "UTM84-10N", "depth 1 leaves groups collapsed")

	out, err = run(t, cfg, "tree", "system/UTM")
	require.NoError(t, err)
	assert.Equal(t, "UTM/  Universal Transverse Mercator\n  UTM84-10N  UTM Zone 10 North\n  UTM84-11N  UTM Zone 11 North\n", out)
}

func TestTree_Formats(t *testing.T) {
	cfg, _ := setup(t)

	out, err := run(t, cfg, "tree", "system", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: system")
	assert.Contains(t, out, "name: UTM")
	assert.Contains(t, out, "key_name: UTM84-10N")

	out, err = run(t, cfg, "tree", "system", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"key_name": "UTM84-11N"`)

	_, err = run(t, cfg, "tree", "--format", "xml")
	assert.Error(t, err)
	_, err = run(t, cfg, "tree", "nowhere")
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	cfg, _ := setup(t)

	out, err := run(t, cfg, "search", "utm", "10")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "UTM84-10N")

	out, err = run(t, cfg, "search", "--all", "utm", "10")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))

	out, err = run(t, cfg, "search", "--library", "mine", "utm")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = run(t, cfg, "search", "--library", "nope", "utm")
	assert.Error(t, err)
}

func TestCopyAndMove(t *testing.T) {
	cfg, dir := setup(t)

	out, err := run(t, cfg, "move", "--dry-run", "system/Uncategorized/NAD83", "mine")
	require.NoError(t, err)
	assert.Equal(t, "would copy system/Uncategorized/NAD83 -> mine\n", out)

	out, err = run(t, cfg, "copy", "system/UTM/UTM84-10N", "mine")
	require.NoError(t, err)
	assert.Equal(t, "copy system/UTM/UTM84-10N -> mine\n", out)

	doc, err := persist.Load(filepath.Join(dir, "user.db.xml"))
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Len(t, doc.Root.Members, 1)
	assert.Equal(t, "UTM84-10N", doc.Root.Members[0].KeyName)

	out, err = run(t, cfg, "tree", "mine")
	require.NoError(t, err)
	assert.Contains(t, out, "  UTM84-10N  UTM Zone 10 North\n")

	_, err = run(t, cfg, "copy", "system/UTM/UTM84-10N", "mine")
	assert.ErrorIs(t, err, errRejected, "the entry is already in mine")

	_, err = run(t, cfg, "move", "system/UTM/UTM84-11N", "system/Uncategorized")
	assert.ErrorIs(t, err, errRejected)

	_, err = run(t, cfg, "copy", "system/UTM")
	assert.Error(t, err)
}

func TestGroupCommands(t *testing.T) {
	cfg, dir := setup(t)

	_, err := run(t, cfg, "mkdir", "mine", "Projects", "-d", "active work")
	require.NoError(t, err)
	_, err = run(t, cfg, "rename", "mine/Projects", "Survey")
	require.NoError(t, err)
	_, err = run(t, cfg, "copy", "system/Uncategorized/NAD83", "mine/Survey")
	require.NoError(t, err)

	out, err := run(t, cfg, "tree", "mine/Survey")
	require.NoError(t, err)
	assert.Equal(t, "Survey/  active work\n  NAD83  North American Datum 1983\n", out)

	_, err = run(t, cfg, "rm", "--delete", "mine/Survey/NAD83")
	require.NoError(t, err)
	out, err = run(t, cfg, "search", "--library", "mine", "nad83")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = run(t, cfg, "rm", "mine/Survey")
	require.NoError(t, err)
	doc, err := persist.Load(filepath.Join(dir, "user.db.xml"))
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Empty(t, doc.Root.Groups)

	_, err = run(t, cfg, "mkdir", "mine/Uncategorized", "Nested")
	assert.ErrorIs(t, err, errRejected)
}

func TestExportDB(t *testing.T) {
	cfg, dir := setup(t)
	dst := filepath.Join(dir, "export.db")

	out, err := run(t, cfg, "export-db", "system", dst)
	require.NoError(t, err)
	assert.Equal(t, "exported 3 definitions and 1 groups to "+dst+"\n", out)

	db, err := library.OpenSQLite(dst, true)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	assert.Equal(t, 3, db.Count())
	d, err := db.Lookup("UTM84-11N")
	require.NoError(t, err)
	assert.Equal(t, 32611, d.EPSG)
	groups := db.NativeGroups()
	require.Len(t, groups, 1)
	assert.Equal(t, "UTM", groups[0].Name)

	_, err = run(t, cfg, "export-db", "Favorites", dst)
	assert.Error(t, err)
}

func TestGlobalFlags(t *testing.T) {
	cfg, _ := setup(t)

	_, err := run(t, cfg, "--log-level", "loud", "tree")
	assert.Error(t, err)

	_, err = run(t, filepath.Join(t.TempDir(), "missing.hcl"), "tree")
	assert.Error(t, err)
}
