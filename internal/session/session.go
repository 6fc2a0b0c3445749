// Package session wires a configuration into a live catalog: it opens the
// libraries, loads their organization documents and serializes every access
// to the resulting tree.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/agentic-research/geocat/internal/catalog"
	"github.com/agentic-research/geocat/internal/config"
	"github.com/agentic-research/geocat/internal/library"
	"github.com/agentic-research/geocat/internal/persist"
	"github.com/agentic-research/geocat/internal/reorg"
	"github.com/agentic-research/geocat/internal/search"
	"github.com/sirupsen/logrus"
)

// Session owns a catalog and the services built on it. The catalog is not
// safe for concurrent use, so every surface goes through Do.
type Session struct {
	mu      sync.Mutex
	cat     *catalog.Catalog
	engine  *search.Engine
	reorg   *reorg.Reorganizer
	log     logrus.FieldLogger
	closers []io.Closer
}

// Open builds a session from cfg. Libraries that fail to open abort the
// whole session; a missing organization document does not.
func Open(cfg *config.Config, log logrus.FieldLogger) (*Session, error) {
	s := &Session{log: log}
	s.cat = catalog.New(catalog.WithLogger(log))

	for _, lc := range cfg.Libraries {
		h, err := s.openLibrary(lc)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("library %s: %w", lc.Name, err)
		}
		doc, err := persist.Load(h.Organization)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("library %s: %w", lc.Name, err)
		}
		orgReadOnly := h.Organization == "" || persist.ReadOnly(h.Organization)
		s.cat.AddLibrary(h, doc, orgReadOnly)
		log.WithFields(logrus.Fields{
			"library":      h.Name,
			"kind":         lc.Kind,
			"organization": h.Organization,
			"org_readonly": orgReadOnly,
		}).Debug("library opened")
	}

	if cfg.Favorites != "" {
		doc, err := persist.Load(cfg.Favorites)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("favorites: %w", err)
		}
		s.cat.SetFavorites(library.NewFavorites(cfg.Favorites), doc, persist.ReadOnly(cfg.Favorites))
	}

	s.engine = search.New(s.cat.Libraries(), search.WithLogger(log))
	s.reorg = reorg.New(s.cat, reorg.WithLogger(log))
	return s, nil
}

// New wraps an already assembled catalog.
func New(c *catalog.Catalog, log logrus.FieldLogger) *Session {
	return &Session{
		cat:    c,
		engine: search.New(c.Libraries(), search.WithLogger(log)),
		reorg:  reorg.New(c, reorg.WithLogger(log)),
		log:    log,
	}
}

func (s *Session) openLibrary(lc config.LibraryConfig) (*library.Handle, error) {
	var (
		store library.Store
		err   error
	)
	switch lc.Kind {
	case config.KindJSON:
		store, err = library.LoadJSON(lc.Path, lc.Selector)
	case config.KindSQLite:
		var db *library.SQLiteLibrary
		db, err = library.OpenSQLite(lc.Path, lc.ReadOnly || lc.System)
		if err == nil {
			s.closers = append(s.closers, db)
			store = db
		}
	case config.KindMemory:
		store = library.NewMemory(lc.ReadOnly || lc.System)
	default:
		err = fmt.Errorf("unknown kind %q", lc.Kind)
	}
	if err != nil {
		return nil, err
	}
	h := library.NewHandle(lc.Name, lc.Path, store, !lc.System)
	if lc.Organization != "" {
		h.Organization = lc.Organization
	}
	return h, nil
}

// Do runs fn with exclusive access to the catalog.
func (s *Session) Do(fn func(*catalog.Catalog) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.cat)
}

// Catalog returns the catalog. Callers outside Do must not use it while
// other goroutines may.
func (s *Session) Catalog() *catalog.Catalog { return s.cat }

// Engine returns the search engine.
func (s *Session) Engine() *search.Engine { return s.engine }

// Reorganizer returns the reorganizer. Use it only inside Do.
func (s *Session) Reorganizer() *reorg.Reorganizer { return s.reorg }

// Search runs q. The engine keeps its own cache and reads libraries only, so
// it does not take the catalog lock.
func (s *Session) Search(ctx context.Context, q search.Query) ([]search.Hit, error) {
	return s.engine.Search(ctx, q)
}

// Transfer moves or copies the node at src onto the node at dst. Paths are
// catalog paths such as "system/UTM/UTM84-10N".
func (s *Session) Transfer(ctx context.Context, src, dst string, effect reorg.Effect) (reorg.Result, error) {
	var res reorg.Result
	err := s.Do(func(c *catalog.Catalog) error {
		from, err := c.Lookup(src)
		if err != nil {
			return err
		}
		to, err := c.Lookup(dst)
		if err != nil {
			return err
		}
		res = s.reorg.Execute(ctx, reorg.PendingTransfer{Source: from, Effect: effect}, to)
		if res.OK() {
			if root := catalog.FileOf(to); root != nil && !root.IsFavorites() {
				s.engine.Invalidate(root.Name)
			}
		}
		return nil
	})
	return res, err
}

// Plan reports what Transfer would do without changing anything.
func (s *Session) Plan(src, dst string, effect reorg.Effect) (reorg.Result, error) {
	var res reorg.Result
	err := s.Do(func(c *catalog.Catalog) error {
		from, err := c.Lookup(src)
		if err != nil {
			return err
		}
		to, err := c.Lookup(dst)
		if err != nil {
			return err
		}
		res = s.reorg.Resolve(reorg.PendingTransfer{Source: from, Effect: effect}, to)
		return nil
	})
	return res, err
}

// Description returns the description of the group at path.
func (s *Session) Description(path string) (string, error) {
	var desc string
	err := s.Do(func(c *catalog.Catalog) error {
		n, err := c.Lookup(path)
		if err != nil {
			return err
		}
		desc = n.Description
		return nil
	})
	return desc, err
}

// Remove drops the node at path from its organization, and with
// deleteFromLibrary also from its library.
func (s *Session) Remove(ctx context.Context, path string, deleteFromLibrary bool) (reorg.Result, error) {
	var res reorg.Result
	err := s.Do(func(c *catalog.Catalog) error {
		n, err := c.Lookup(path)
		if err != nil {
			return err
		}
		root := catalog.FileOf(n)
		res = s.reorg.Remove(ctx, n, deleteFromLibrary)
		if res.OK() && deleteFromLibrary && root != nil {
			s.engine.Invalidate(root.Name)
		}
		return nil
	})
	return res, err
}

// CreateGroup adds a group named name under the group at parent.
func (s *Session) CreateGroup(parent, name, description string) (reorg.Result, error) {
	var res reorg.Result
	err := s.Do(func(c *catalog.Catalog) error {
		p, err := c.Lookup(parent)
		if err != nil {
			return err
		}
		_, res = s.reorg.CreateGroup(p, name, description)
		return nil
	})
	return res, err
}

// Rename renames the group at path.
func (s *Session) Rename(path, name, description string) (reorg.Result, error) {
	var res reorg.Result
	err := s.Do(func(c *catalog.Catalog) error {
		g, err := c.Lookup(path)
		if err != nil {
			return err
		}
		res = s.reorg.Rename(g, name, description)
		return nil
	})
	return res, err
}

// Flush writes every changed organization document.
func (s *Session) Flush() error {
	return s.Do(func(c *catalog.Catalog) error {
		return persist.FlushAll(c, s.log)
	})
}

// Close flushes pending organization changes and closes the libraries.
func (s *Session) Close() error {
	var errs []error
	if s.cat != nil {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
