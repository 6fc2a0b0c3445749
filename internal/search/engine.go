// Package search ranks catalog entries against free-text queries.
package search

import (
	"context"
	"fmt"
	"io"
	"sort"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/agentic-research/geocat/internal/catalog"
	"github.com/agentic-research/geocat/internal/library"
)

// ProgressFunc receives the scan progress in percent. Returning true cancels
// the scan; the hits collected so far are still returned.
type ProgressFunc func(percent int) (cancel bool)

// progressSteps is how many progress callbacks a full scan makes.
const progressSteps = 20

// Query describes one search.
type Query struct {
	// Libraries limits the search to the named libraries. Empty means all.
	Libraries []string
	Terms     []string
	MatchAny  bool
	Progress  ProgressFunc
}

// Hit is one ranked result. Entry is owned by the caller.
type Hit struct {
	Entry *catalog.Entry
	Score int
}

// Engine searches a fixed set of libraries. The flattened entry set of each
// library is cached until Invalidate is called for it.
type Engine struct {
	libs  []*library.Handle
	cache *gocache.Cache
	log   logrus.FieldLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l logrus.FieldLogger) Option { return func(e *Engine) { e.log = l } }

// New returns an engine over libs. Favorites handles are ignored since they
// hold no content of their own.
func New(libs []*library.Handle, opts ...Option) *Engine {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	e := &Engine{
		cache: gocache.New(gocache.NoExpiration, 0),
		log:   discard,
	}
	for _, h := range libs {
		if h != nil && !h.Favorites {
			e.libs = append(e.libs, h)
		}
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Invalidate drops the cached universe of the named library.
func (e *Engine) Invalidate(name string) {
	e.cache.Delete(name)
}

// InvalidateAll drops every cached universe.
func (e *Engine) InvalidateAll() {
	e.cache.Flush()
}

func (e *Engine) universe(h *library.Handle) *universe {
	if v, ok := e.cache.Get(h.Name); ok {
		if u, ok := v.(*universe); ok {
			return u
		}
	}
	u := buildUniverse(h, e.log.WithField("library", h.Name))
	e.cache.Set(h.Name, u, gocache.NoExpiration)
	return u
}

func (e *Engine) targets(names []string) ([]*library.Handle, error) {
	if len(names) == 0 {
		return e.libs, nil
	}
	out := make([]*library.Handle, 0, len(names))
	for _, n := range names {
		var found *library.Handle
		for _, h := range e.libs {
			if h.Name == n {
				found = h
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("unknown library %q", n)
		}
		out = append(out, found)
	}
	return out, nil
}

// Search ranks the entries of the targeted libraries by descending score,
// breaking ties by key. Cancellation through q.Progress or ctx is not an
// error: the hits found so far are returned.
func (e *Engine) Search(ctx context.Context, q Query) ([]Hit, error) {
	libs, err := e.targets(q.Libraries)
	if err != nil {
		return nil, err
	}
	mixed, upper := splitTerms(q.Terms)
	if len(mixed) == 0 {
		return nil, nil
	}

	type scan struct {
		u    *universe
		cand []uint32
	}
	scans := make([]scan, 0, len(libs))
	total := 0
	for _, h := range libs {
		u := e.universe(h)
		cand := u.candidateSet(upper, q.MatchAny).ToArray()
		scans = append(scans, scan{u: u, cand: cand})
		total += len(cand)
	}

	step := total / progressSteps
	if step == 0 {
		step = 1
	}

	var hits []Hit
	done := 0
scanLoop:
	for _, s := range scans {
		for _, id := range s.cand {
			if done%step == 0 {
				if ctx.Err() != nil {
					break scanLoop
				}
				if q.Progress != nil && q.Progress(done*100/total) {
					break scanLoop
				}
			}
			done++
			score := Match(s.u.fields[id], s.u.upper[id], mixed, upper, q.MatchAny)
			if score > 0 {
				hits = append(hits, Hit{Entry: s.u.entries[id].Clone(), Score: score})
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Entry.Key < hits[j].Entry.Key
	})
	return hits, nil
}
