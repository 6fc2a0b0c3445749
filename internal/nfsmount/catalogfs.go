// Package nfsmount exports the catalog over NFS. Libraries and groups are
// directories, entries are read-only JSON documents, and with edits enabled
// mv, rm and mkdir reorganize the catalog.
package nfsmount

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"
	"github.com/sirupsen/logrus"

	"github.com/agentic-research/geocat/api"
	"github.com/agentic-research/geocat/internal/catalog"
	"github.com/agentic-research/geocat/internal/reorg"
	"github.com/agentic-research/geocat/internal/session"
)

var errReadOnly = fmt.Errorf("read-only filesystem")

const (
	entryExt    = ".json"
	catalogFile = "_catalog.json"
)

// CatalogFS adapts a catalog session to billy.Filesystem.
type CatalogFS struct {
	sess      *session.Session
	mountTime time.Time
	editable  bool
	log       logrus.FieldLogger
}

// Option configures a CatalogFS.
type Option func(*CatalogFS)

// WithEdits lets rename, remove and mkdir reorganize the catalog. Every
// successful edit is flushed to the organization documents.
func WithEdits() Option { return func(fs *CatalogFS) { fs.editable = true } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(fs *CatalogFS) { fs.log = l } }

// NewCatalogFS creates a billy.Filesystem over sess.
func NewCatalogFS(sess *session.Session, opts ...Option) *CatalogFS {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	fs := &CatalogFS{sess: sess, mountTime: time.Now(), log: discard}
	for _, o := range opts {
		o(fs)
	}
	return fs
}

// --- billy.Basic ---

func (fs *CatalogFS) Create(filename string) (billy.File, error) {
	return nil, errReadOnly
}

func (fs *CatalogFS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *CatalogFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	filename = cleanPath(filename)
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, errReadOnly
	}

	var (
		name string
		data []byte
	)
	err := fs.sess.Do(func(c *catalog.Catalog) error {
		if filename == "/"+catalogFile {
			name, data = catalogFile, catalogJSON(c)
			return nil
		}
		n, err := resolve(c, filename)
		if err != nil {
			return err
		}
		if n.IsGroup() {
			return fmt.Errorf("is a directory")
		}
		name, data = fileName(n), entryJSON(n)
		return nil
	})
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: filename, Err: err}
	}
	return &bytesFile{name: name, data: data}, nil
}

func (fs *CatalogFS) Stat(filename string) (os.FileInfo, error) {
	return fs.Lstat(filename)
}

// Rename within one directory renames a group. Across directories it moves
// the node into the destination directory's group.
func (fs *CatalogFS) Rename(oldpath, newpath string) error {
	if !fs.editable {
		return errReadOnly
	}
	oldpath, newpath = cleanPath(oldpath), cleanPath(newpath)
	return fs.edit("rename", oldpath, func(c *catalog.Catalog, r *reorg.Reorganizer) (reorg.Result, error) {
		src, err := resolve(c, oldpath)
		if err != nil {
			return reorg.Result{}, err
		}
		oldDir, newDir := path.Dir(oldpath), path.Dir(newpath)
		if oldDir == newDir {
			if !src.IsGroup() {
				return reorg.Result{}, fmt.Errorf("entries cannot be renamed")
			}
			return r.Rename(src, path.Base(newpath), src.Description), nil
		}
		// mv into an existing directory names that directory as newpath.
		dst, err := resolve(c, newpath)
		if err != nil || !dst.IsGroup() {
			dst, err = resolve(c, newDir)
			if err != nil {
				return reorg.Result{}, err
			}
		}
		res := r.Execute(context.Background(), reorg.PendingTransfer{Source: src, Effect: reorg.Move}, dst)
		if res.OK() {
			if root := catalog.FileOf(dst); root != nil && !root.IsFavorites() {
				fs.sess.Engine().Invalidate(root.Name)
			}
		}
		return res, nil
	})
}

// Remove takes an entry or group out of its organization. Library contents
// are never deleted through the mount.
func (fs *CatalogFS) Remove(filename string) error {
	if !fs.editable {
		return errReadOnly
	}
	filename = cleanPath(filename)
	return fs.edit("remove", filename, func(c *catalog.Catalog, r *reorg.Reorganizer) (reorg.Result, error) {
		n, err := resolve(c, filename)
		if err != nil {
			return reorg.Result{}, err
		}
		return r.Remove(context.Background(), n, false), nil
	})
}

func (fs *CatalogFS) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// edit runs fn under the session lock and flushes on success.
func (fs *CatalogFS) edit(op, p string, fn func(*catalog.Catalog, *reorg.Reorganizer) (reorg.Result, error)) error {
	var res reorg.Result
	err := fs.sess.Do(func(c *catalog.Catalog) error {
		var err error
		res, err = fn(c, fs.sess.Reorganizer())
		return err
	})
	if err != nil {
		return &os.PathError{Op: op, Path: p, Err: err}
	}
	if !res.OK() {
		fs.log.WithField("path", p).WithField("op", op).Info(res.String())
		return &os.PathError{Op: op, Path: p, Err: fmt.Errorf("%w: %s", os.ErrPermission, res.Reason)}
	}
	if err := fs.sess.Flush(); err != nil {
		fs.log.WithError(err).Warn("organization flush failed")
	}
	return nil
}

// --- billy.TempFile ---

func (fs *CatalogFS) TempFile(dir, prefix string) (billy.File, error) {
	return nil, billy.ErrNotSupported
}

// --- billy.Dir ---

func (fs *CatalogFS) ReadDir(dirname string) ([]os.FileInfo, error) {
	dirname = cleanPath(dirname)

	var infos []os.FileInfo
	err := fs.sess.Do(func(c *catalog.Catalog) error {
		if dirname == "/" {
			infos = append(infos, fs.fileInfo(catalogFile, int64(len(catalogJSON(c))), 0o444))
			for _, r := range c.Roots() {
				infos = append(infos, fs.nodeInfo(r))
			}
			return nil
		}
		n, err := resolve(c, dirname)
		if err != nil {
			return err
		}
		if !n.IsGroup() {
			return fmt.Errorf("not a directory")
		}
		c.Populate(n)
		for _, ch := range n.Children() {
			infos = append(infos, fs.nodeInfo(ch))
		}
		return nil
	})
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: dirname, Err: err}
	}
	return infos, nil
}

// MkdirAll creates a group. Only the last path element may be missing.
func (fs *CatalogFS) MkdirAll(filename string, perm os.FileMode) error {
	if !fs.editable {
		return errReadOnly
	}
	filename = cleanPath(filename)
	return fs.edit("mkdir", filename, func(c *catalog.Catalog, r *reorg.Reorganizer) (reorg.Result, error) {
		if n, err := resolve(c, filename); err == nil && n.IsGroup() {
			return reorg.Result{Status: reorg.Success}, nil
		}
		parent, err := resolve(c, path.Dir(filename))
		if err != nil {
			return reorg.Result{}, err
		}
		_, res := r.CreateGroup(parent, path.Base(filename), "")
		return res, nil
	})
}

// --- billy.Symlink ---

func (fs *CatalogFS) Lstat(filename string) (os.FileInfo, error) {
	filename = cleanPath(filename)
	if filename == "/" {
		return fs.fileInfo("/", 0, os.ModeDir|0o555), nil
	}

	var info os.FileInfo
	err := fs.sess.Do(func(c *catalog.Catalog) error {
		if filename == "/"+catalogFile {
			info = fs.fileInfo(catalogFile, int64(len(catalogJSON(c))), 0o444)
			return nil
		}
		n, err := resolve(c, filename)
		if err != nil {
			return err
		}
		info = fs.nodeInfo(n)
		return nil
	})
	if err != nil {
		return nil, &os.PathError{Op: "lstat", Path: filename, Err: err}
	}
	return info, nil
}

func (fs *CatalogFS) Symlink(target, link string) error {
	return billy.ErrNotSupported
}

func (fs *CatalogFS) Readlink(link string) (string, error) {
	return "", billy.ErrNotSupported
}

// --- billy.Chroot ---

func (fs *CatalogFS) Chroot(p string) (billy.Filesystem, error) {
	return chroot.New(fs, p), nil
}

func (fs *CatalogFS) Root() string {
	return "/"
}

// --- billy.Capable ---

func (fs *CatalogFS) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

// --- internals ---

// resolve maps a mount path to a catalog node. Directory segments match
// groups; a last segment ending in .json matches an entry.
func resolve(c *catalog.Catalog, p string) (*catalog.Node, error) {
	segs := catalog.SplitPath(p)
	if len(segs) == 0 {
		return nil, os.ErrNotExist
	}
	cur := c.Root(segs[0])
	if cur == nil {
		return nil, os.ErrNotExist
	}
	for i, seg := range segs[1:] {
		last := i == len(segs)-2
		var next *catalog.Node
		c.Populate(cur)
		for _, ch := range cur.Children() {
			if ch.IsGroup() && catalog.Segment(ch) == seg {
				next = ch
				break
			}
			if last && !ch.IsGroup() && fileName(ch) == seg {
				next = ch
				break
			}
		}
		if next == nil {
			return nil, os.ErrNotExist
		}
		cur = next
	}
	return cur, nil
}

func fileName(n *catalog.Node) string {
	if n.IsGroup() {
		return catalog.Segment(n)
	}
	return catalog.Segment(n) + entryExt
}

func entryJSON(n *catalog.Node) []byte {
	b, _ := json.MarshalIndent(n.Entry.Info(), "", "  ")
	return append(b, '\n')
}

func catalogJSON(c *catalog.Catalog) []byte {
	var infos []api.LibraryInfo
	for _, r := range c.Roots() {
		infos = append(infos, catalog.Info(r))
	}
	b, _ := json.MarshalIndent(infos, "", "  ")
	return append(b, '\n')
}

func (fs *CatalogFS) nodeInfo(n *catalog.Node) os.FileInfo {
	if n.IsGroup() {
		mode := os.FileMode(os.ModeDir | 0o555)
		if root := catalog.FileOf(n); fs.editable && root != nil && !root.OrganizationReadOnly() {
			mode = os.ModeDir | 0o755
		}
		return fs.fileInfo(fileName(n), 0, mode)
	}
	return fs.fileInfo(fileName(n), int64(len(entryJSON(n))), 0o444)
}

func (fs *CatalogFS) fileInfo(name string, size int64, mode os.FileMode) os.FileInfo {
	return &staticFileInfo{name: name, size: size, mode: mode, modTime: fs.mountTime}
}

// cleanPath normalizes a billy path to a clean absolute path.
func cleanPath(p string) string {
	p = filepath.Clean("/" + p)
	if p == "." {
		return "/"
	}
	return strings.ReplaceAll(p, string(filepath.Separator), "/")
}

// staticFileInfo implements os.FileInfo with static values.
type staticFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *staticFileInfo) Name() string       { return fi.name }
func (fi *staticFileInfo) Size() int64        { return fi.size }
func (fi *staticFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *staticFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *staticFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *staticFileInfo) Sys() interface{}   { return nil }

var (
	_ billy.Filesystem = (*CatalogFS)(nil)
	_ billy.Capable    = (*CatalogFS)(nil)
	_ billy.File       = (*bytesFile)(nil)
)
