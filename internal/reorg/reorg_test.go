package reorg

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/agentic-research/geocat/api"
	"github.com/agentic-research/geocat/internal/catalog"
	"github.com/agentic-research/geocat/internal/library"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// fixture is a system library with one native group, a user library and a
// favorites list holding WGS84.
type fixture struct {
	cat       *catalog.Catalog
	re        *Reorganizer
	system    *catalog.Node
	user      *catalog.Node
	favorites *catalog.Node
	userLib   *library.MemoryLibrary
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sys := library.NewMemory(true).Add(
		library.Definition{Key: "UTM84-10N", Description: "UTM Zone 10 North"},
		library.Definition{Key: "UTM84-11N", Description: "UTM Zone 11 North"},
		library.Definition{Key: "NAD83", Description: "North American Datum 1983"},
		library.Definition{Key: "WGS84", Description: "World Geodetic System 1984"},
	)
	sys.AddGroup("UTM", "Universal Transverse Mercator", "UTM84-10N", "UTM84-11N")
	usr := library.NewMemory(false).Add(library.Definition{Key: "LOCAL-GRID", Description: "site grid"})

	dir := t.TempDir()
	c := catalog.New()
	f := &fixture{cat: c, re: New(c), userLib: usr}
	f.system = c.AddLibrary(library.NewHandle("system", filepath.Join(dir, "system.json"), sys, false), nil, true)
	f.user = c.AddLibrary(library.NewHandle("user", filepath.Join(dir, "user.db"), usr, true), &api.Organization{Root: api.Group{
		Name:   "user",
		Groups: []api.Group{{Name: "Projects"}},
	}}, false)
	f.favorites = c.SetFavorites(library.NewFavorites(filepath.Join(dir, "favorites.xml")), &api.Organization{Root: api.Group{
		Name:    "Favorites",
		Members: []api.Member{{KeyName: "WGS84"}},
	}}, false)
	return f
}

func (f *fixture) lookup(t *testing.T, path string) *catalog.Node {
	t.Helper()
	n, err := f.cat.Lookup(path)
	require.NoError(t, err)
	return n
}

func TestExecute_RejectsDuplicateInFavorites(t *testing.T) {
	f := newFixture(t)
	wgs := f.lookup(t, "system/Uncategorized/WGS84")

	tr := PendingTransfer{Source: wgs, Effect: Copy}
	assert.False(t, f.re.Validate(tr, f.favorites))
	res := f.re.Execute(context.Background(), tr, f.favorites)
	assert.Equal(t, Rejected, res.Status)
	assert.Contains(t, res.Reason, "already contains")
	assert.False(t, f.favorites.Changed())
	assert.Len(t, f.favorites.Children(), 1)
}

func TestExecute_CrossLibraryCopyCreatesEntry(t *testing.T) {
	f := newFixture(t)
	nad := f.lookup(t, "system/Uncategorized/NAD83")
	projects := f.lookup(t, "user/Projects")

	tr := PendingTransfer{Source: nad, Effect: Move}
	require.True(t, f.re.Validate(tr, projects))
	res := f.re.Execute(context.Background(), tr, projects)
	require.True(t, res.OK(), res.String())
	assert.Equal(t, Copy, res.Effect, "a read-only source organization forces copy")

	assert.True(t, f.userLib.Contains("NAD83"))
	require.True(t, f.cat.ContainsEntry(projects, "NAD83", false))
	copied := projects.Children()[0]
	assert.Equal(t, "user", copied.Entry.Library.Name)
	assert.Equal(t, "North American Datum 1983", copied.Entry.Description)

	assert.True(t, f.user.Changed())
	assert.False(t, f.system.Changed())
	assert.Same(t, nad, f.lookup(t, "system/Uncategorized/NAD83"), "source stays in place")
}

func TestExecute_ReadOnlyTargetRejected(t *testing.T) {
	sys := library.NewMemory(true).Add(library.Definition{Key: "A"}, library.Definition{Key: "B"})
	sys.AddGroup("G", "", "B")
	c := catalog.New()
	root := c.AddLibrary(library.NewHandle("system", "", sys, false), nil, true)
	other := c.AddLibrary(library.NewHandle("other", "", library.NewMemory(true), false), nil, true)
	re := New(c)

	a, err := c.Lookup("system/Uncategorized/A")
	require.NoError(t, err)
	g, err := c.Lookup("system/G")
	require.NoError(t, err)

	for _, target := range []*catalog.Node{g, other} {
		tr := PendingTransfer{Source: a, Effect: Move}
		assert.False(t, re.Validate(tr, target))
		res := re.Execute(context.Background(), tr, target)
		assert.Equal(t, Rejected, res.Status)
		assert.Contains(t, res.Reason, "read-only")
	}
	assert.False(t, root.Changed())
	assert.Same(t, a, root.Uncategorized().Children()[0])
}

func TestExecute_MoveWithinLibrary(t *testing.T) {
	f := newFixture(t)
	grid := f.lookup(t, "user/Uncategorized/LOCAL-GRID")
	projects := f.lookup(t, "user/Projects")
	before := f.cat.EntryCount()

	res := f.re.Execute(context.Background(), PendingTransfer{Source: grid, Effect: Move}, projects)
	require.True(t, res.OK(), res.String())
	assert.Equal(t, Move, res.Effect)
	assert.Same(t, projects, grid.Parent())
	assert.False(t, f.cat.ContainsEntry(f.user.Uncategorized(), "LOCAL-GRID", false))
	assert.True(t, f.user.Changed())
	assert.Equal(t, before, f.cat.EntryCount())

	again := f.re.Execute(context.Background(), PendingTransfer{Source: grid, Effect: Move}, projects)
	assert.Equal(t, Rejected, again.Status)
}

func TestExecute_DropOnLeafInsertsBefore(t *testing.T) {
	f := newFixture(t)
	projects := f.lookup(t, "user/Projects")
	for _, key := range []string{"NAD83", "WGS84"} {
		n := f.lookup(t, "system/Uncategorized/"+key)
		require.True(t, f.re.Execute(context.Background(), PendingTransfer{Source: n, Effect: Copy}, projects).OK())
	}
	wgs := f.lookup(t, "user/Projects/WGS84")

	utm := f.lookup(t, "system/UTM/UTM84-10N")
	res := f.re.Execute(context.Background(), PendingTransfer{Source: utm, Effect: Copy}, wgs)
	require.True(t, res.OK(), res.String())

	var keys []string
	for _, ch := range projects.Children() {
		keys = append(keys, ch.Key())
	}
	assert.Equal(t, []string{"NAD83", "UTM84-10N", "WGS84"}, keys)
}

func TestExecute_GroupRules(t *testing.T) {
	f := newFixture(t)
	projects := f.lookup(t, "user/Projects")
	sub, res := f.re.CreateGroup(projects, "Coastal", "")
	require.True(t, res.OK())

	assert.False(t, f.re.Validate(PendingTransfer{Source: projects, Effect: Move}, sub), "cycle")
	assert.False(t, f.re.Validate(PendingTransfer{Source: projects, Effect: Move}, projects), "self")
	assert.False(t, f.re.Validate(PendingTransfer{Source: f.user, Effect: Move}, f.favorites), "root")
	assert.False(t, f.re.Validate(PendingTransfer{Source: f.user.Uncategorized(), Effect: Move}, projects), "bucket")
	assert.False(t, f.re.Validate(PendingTransfer{Source: sub, Effect: Move}, f.user.Uncategorized()), "into bucket")

	utm := f.lookup(t, "system/UTM")
	res = f.re.Execute(context.Background(), PendingTransfer{Source: utm, Effect: Copy}, projects)
	require.True(t, res.OK(), res.String())
	assert.True(t, f.userLib.Contains("UTM84-10N"))
	assert.True(t, f.userLib.Contains("UTM84-11N"))

	children := projects.Children()
	require.Len(t, children, 2)
	assert.Equal(t, "Coastal", children[0].Name)
	assert.Equal(t, "UTM", children[1].Name, "groups go before the first leaf and after existing groups")
	assert.True(t, f.cat.ContainsEntry(children[1], "UTM84-11N", true))
	assert.Equal(t, "user", children[1].Children()[0].Entry.Library.Name)
}

// failingStore fails Create for one key.
type failingStore struct {
	*library.MemoryLibrary
	failKey string
}

func (s failingStore) Create(d library.Definition) (library.Definition, error) {
	if d.Key == s.failKey {
		return library.Definition{}, errors.New("disk full")
	}
	return s.MemoryLibrary.Create(d)
}

func TestExecute_CreateFailureAbortsWithoutMutation(t *testing.T) {
	sys := library.NewMemory(true).Add(library.Definition{Key: "A"}, library.Definition{Key: "B"})
	sys.AddGroup("G", "", "A", "B")
	mem := library.NewMemory(false)
	c := catalog.New()
	c.AddLibrary(library.NewHandle("system", "", sys, false), nil, true)
	user := c.AddLibrary(library.NewHandle("user", "", failingStore{MemoryLibrary: mem, failKey: "B"}, true), nil, false)
	re := New(c)

	g, err := c.Lookup("system/G")
	require.NoError(t, err)
	c.Populate(user)
	childrenBefore := len(user.Children())

	res := re.Execute(context.Background(), PendingTransfer{Source: g, Effect: Copy}, user)
	assert.Equal(t, StoreError, res.Status)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "disk full")
	assert.False(t, mem.Contains("A"), "already created definitions are rolled back")
	assert.Len(t, user.Children(), childrenBefore)
	assert.False(t, user.Changed())
}

func TestExecute_FavoritesNeverCreates(t *testing.T) {
	f := newFixture(t)
	nad := f.lookup(t, "system/Uncategorized/NAD83")
	res := f.re.Execute(context.Background(), PendingTransfer{Source: nad, Effect: Move}, f.favorites)
	require.True(t, res.OK(), res.String())
	assert.Equal(t, Copy, res.Effect)
	assert.True(t, f.cat.ContainsEntry(f.favorites, "NAD83", false))
	assert.Equal(t, "system", f.lookup(t, "Favorites/NAD83").Entry.Library.Name)
	assert.False(t, f.userLib.Contains("NAD83"))
	assert.True(t, f.favorites.Changed())
}

func TestExecute_Cancelled(t *testing.T) {
	f := newFixture(t)
	grid := f.lookup(t, "user/Uncategorized/LOCAL-GRID")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := f.re.Execute(ctx, PendingTransfer{Source: grid}, f.lookup(t, "user/Projects"))
	assert.Equal(t, Rejected, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.False(t, f.user.Changed())
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	projects := f.lookup(t, "user/Projects")
	grid := f.lookup(t, "user/Uncategorized/LOCAL-GRID")

	res := f.re.Remove(context.Background(), grid, false)
	assert.Equal(t, Rejected, res.Status, "bucket entries are not organized")

	require.True(t, f.re.Execute(context.Background(), PendingTransfer{Source: grid}, projects).OK())
	f.user.ClearChanged()
	res = f.re.Remove(context.Background(), grid, true)
	require.True(t, res.OK(), res.String())
	assert.False(t, f.userLib.Contains("LOCAL-GRID"))
	assert.True(t, f.user.Changed())

	utm := f.lookup(t, "system/UTM")
	assert.Equal(t, Rejected, f.re.Remove(context.Background(), utm, false).Status)
	assert.Equal(t, Rejected, f.re.Remove(context.Background(), f.user, false).Status)

	require.True(t, f.re.Remove(context.Background(), projects, false).OK())
	_, err := f.cat.Lookup("user/Projects")
	assert.ErrorIs(t, err, catalog.ErrNoPath)
}

func TestRename(t *testing.T) {
	f := newFixture(t)
	projects := f.lookup(t, "user/Projects")
	_, res := f.re.CreateGroup(f.user, "Archive", "old work")
	require.True(t, res.OK())
	f.user.ClearChanged()

	assert.Equal(t, Rejected, f.re.Rename(projects, "Archive", "").Status)
	assert.Equal(t, Rejected, f.re.Rename(projects, "", "").Status)
	assert.Equal(t, Rejected, f.re.Rename(f.lookup(t, "system/UTM"), "X", "").Status)

	require.True(t, f.re.Rename(projects, "Current", "in progress").OK())
	assert.Equal(t, "in progress", f.lookup(t, "user/Current").Description)
	assert.True(t, f.user.Changed())

	_, res = f.re.CreateGroup(f.user, "Current", "")
	assert.Equal(t, Rejected, res.Status)
}

// bucketKeys lists the keys in root's uncategorized bucket.
func bucketKeys(c *catalog.Catalog, root *catalog.Node) []string {
	b := root.Uncategorized()
	c.Populate(b)
	var out []string
	for _, ch := range b.Children() {
		out = append(out, ch.Key())
	}
	return out
}

func TestBucketTracksOrganization(t *testing.T) {
	ctx := context.Background()
	mem := library.NewMemory(false).Add(library.Definition{Key: "A"}, library.Definition{Key: "B"})
	c := catalog.New()
	root := c.AddLibrary(library.NewHandle("lib", "", mem, true), nil, false)
	re := New(c)
	g, res := re.CreateGroup(root, "G", "")
	require.True(t, res.OK())
	require.Equal(t, []string{"A", "B"}, bucketKeys(c, root))
	total := c.EntryCount()

	a, err := c.Lookup("lib/Uncategorized/A")
	require.NoError(t, err)
	require.True(t, re.Execute(ctx, PendingTransfer{Source: a, Effect: Move}, g).OK())
	assert.Equal(t, []string{"B"}, bucketKeys(c, root))

	res = re.Remove(ctx, a, false)
	require.True(t, res.OK(), res.String())
	assert.True(t, c.ContainsEntry(root, "A", true), "an entry removed from the organization stays reachable")
	assert.Equal(t, []string{"B", "A"}, bucketKeys(c, root))
	assert.Equal(t, total, c.EntryCount())

	b, err := c.Lookup("lib/Uncategorized/B")
	require.NoError(t, err)
	res = re.Execute(ctx, PendingTransfer{Source: b, Effect: Copy}, g)
	require.True(t, res.OK(), res.String())
	assert.Equal(t, []string{"A"}, bucketKeys(c, root), "a copy into the organization leaves the bucket")
	assert.True(t, c.ContainsEntry(g, "B", false))
	assert.Equal(t, total, c.EntryCount())

	require.True(t, re.Remove(ctx, g, false).OK())
	assert.Equal(t, []string{"A", "B"}, bucketKeys(c, root))
	assert.Equal(t, total, c.EntryCount())
}

func TestBucketTracksCrossLibraryMove(t *testing.T) {
	ctx := context.Background()
	src := library.NewMemory(false).Add(library.Definition{Key: "A"})
	dst := library.NewMemory(false).Add(library.Definition{Key: "A"})
	c := catalog.New()
	from := c.AddLibrary(library.NewHandle("from", "", src, true), &api.Organization{Root: api.Group{
		Name:   "from",
		Groups: []api.Group{{Name: "G", Members: []api.Member{{KeyName: "A"}}}},
	}}, false)
	to := c.AddLibrary(library.NewHandle("to", "", dst, true), &api.Organization{Root: api.Group{
		Name:   "to",
		Groups: []api.Group{{Name: "H"}},
	}}, false)
	re := New(c)
	assert.Empty(t, bucketKeys(c, from))
	assert.Equal(t, []string{"A"}, bucketKeys(c, to))

	a, err := c.Lookup("from/G/A")
	require.NoError(t, err)
	h, err := c.Lookup("to/H")
	require.NoError(t, err)
	res := re.Execute(ctx, PendingTransfer{Source: a, Effect: Move}, h)
	require.True(t, res.OK(), res.String())
	require.Equal(t, Move, res.Effect)

	assert.Equal(t, []string{"A"}, bucketKeys(c, from), "the source library still holds A")
	assert.Empty(t, bucketKeys(c, to))
	assert.Same(t, to, catalog.FileOf(a))
}

func TestExecute_RejectsDuplicateGroupName(t *testing.T) {
	f := newFixture(t)
	projects := f.lookup(t, "user/Projects")

	res := f.re.Execute(context.Background(), PendingTransfer{Source: projects, Effect: Copy}, f.user)
	assert.Equal(t, Rejected, res.Status)
	assert.Contains(t, res.Reason, "already has a group named Projects")

	inner, res := f.re.CreateGroup(projects, "Projects", "")
	require.True(t, res.OK())
	assert.False(t, f.re.Validate(PendingTransfer{Source: inner, Effect: Move}, f.user))

	_, res = f.re.CreateGroup(f.user, "Archive", "")
	require.True(t, res.OK())
	archive := f.lookup(t, "user/Archive")
	res = f.re.Execute(context.Background(), PendingTransfer{Source: archive, Effect: Move}, f.lookup(t, "user/Uncategorized/LOCAL-GRID"))
	assert.Equal(t, Rejected, res.Status, "entries in the bucket are not drop targets")

	require.True(t, f.re.Execute(context.Background(), PendingTransfer{Source: inner, Effect: Copy}, archive).OK())
	var names []string
	for _, ch := range f.user.Children() {
		names = append(names, ch.Name)
	}
	assert.Equal(t, []string{"Projects", "Archive", catalog.UncategorizedName}, names)
}

func TestResultString(t *testing.T) {
	f := newFixture(t)
	projects := f.lookup(t, "user/Projects")

	res := f.re.Rename(projects, "Current", "")
	require.True(t, res.OK())
	assert.Equal(t, "success", res.String())
	assert.False(t, res.Transfer)

	res = f.re.Remove(context.Background(), projects, false)
	require.True(t, res.OK())
	assert.Equal(t, "success", res.String())

	grid := f.lookup(t, "user/Uncategorized/LOCAL-GRID")
	res = f.re.Resolve(PendingTransfer{Source: grid, Effect: Copy}, f.favorites)
	assert.Equal(t, "success: copy", res.String())
	assert.True(t, res.Transfer)
}

func TestParseEffect(t *testing.T) {
	for in, want := range map[string]Effect{"move": Move, "": Move, "copy": Copy} {
		got, err := ParseEffect(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseEffect("link")
	assert.Error(t, err)
}

// Moves inside one library never change the number of entries in the
// catalog; copies add exactly the copied entries.
func TestTransferCountProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		mem := library.NewMemory(false)
		for i := 0; i < 6; i++ {
			mem.Add(library.Definition{Key: fmt.Sprintf("K%d", i)})
		}
		c := catalog.New()
		root := c.AddLibrary(library.NewHandle("lib", "", mem, true), nil, false)
		re := New(c)
		for i := 0; i < 3; i++ {
			_, res := re.CreateGroup(root, fmt.Sprintf("G%d", i), "")
			if !res.OK() {
				rt.Fatal(res.String())
			}
		}

		steps := rapid.IntRange(1, 15).Draw(rt, "steps")
		for s := 0; s < steps; s++ {
			c.PopulateAll(root)
			var nodes, groups []*catalog.Node
			catalog.Walk(root, func(n *catalog.Node) bool {
				if n != root {
					nodes = append(nodes, n)
				}
				if n.IsGroup() {
					groups = append(groups, n)
				}
				return true
			})
			src := rapid.SampledFrom(nodes).Draw(rt, "source")
			dst := rapid.SampledFrom(groups).Draw(rt, "target")
			effect := rapid.SampledFrom([]Effect{Move, Copy}).Draw(rt, "effect")

			before := c.EntryCount()
			added := 0
			// A copy out of the bucket organizes the key, so the bucket loses it.
			if effect == Copy && src.Parent().Kind != catalog.KindUncategorized {
				added = len(re.entriesOfAll(src))
			}
			res := re.Execute(context.Background(), PendingTransfer{Source: src, Effect: effect}, dst)
			after := c.EntryCount()
			switch {
			case !res.OK():
				if after != before {
					rt.Fatalf("rejected transfer changed count %d -> %d", before, after)
				}
			case res.Effect == Move && after != before:
				rt.Fatalf("move changed count %d -> %d", before, after)
			case res.Effect == Copy && after != before+added:
				rt.Fatalf("copy changed count %d -> %d, want +%d", before, after, added)
			}
		}
	})
}

// entriesOfAll counts member nodes under n including repeats.
func (r *Reorganizer) entriesOfAll(n *catalog.Node) []*catalog.Node {
	r.cat.PopulateAll(n)
	var out []*catalog.Node
	catalog.Walk(n, func(c *catalog.Node) bool {
		if c.Kind == catalog.KindMember {
			out = append(out, c)
		}
		return true
	})
	return out
}
