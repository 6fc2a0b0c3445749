package search

import (
	"strings"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentic-research/geocat/internal/catalog"
	"github.com/agentic-research/geocat/internal/library"
	"github.com/sirupsen/logrus"
)

// universe is the flattened, pre-folded entry set of one library plus a
// trigram index over the upper-cased searchable text.
type universe struct {
	entries []*catalog.Entry
	fields  [][8]string
	upper   [][8]string
	grams   map[string]*roaring.Bitmap
	all     *roaring.Bitmap
}

func buildUniverse(h *library.Handle, log logrus.FieldLogger) *universe {
	u := &universe{grams: make(map[string]*roaring.Bitmap), all: roaring.New()}
	if h.Store == nil {
		return u
	}
	caser := cases.Upper(language.Und)
	for key := range h.Store.Enumerate() {
		e, err := catalog.NewEntry(h, key)
		if err != nil {
			log.WithField("key", key).WithError(err).Debug("dropping entry from search universe")
			continue
		}
		id := uint32(len(u.entries))
		f := e.Def.SearchFields()
		var up [8]string
		for i, s := range f {
			up[i] = caser.String(s)
		}
		u.entries = append(u.entries, e)
		u.fields = append(u.fields, f)
		u.upper = append(u.upper, up)
		u.all.Add(id)
		for _, s := range up {
			for _, g := range trigrams(s) {
				bm, ok := u.grams[g]
				if !ok {
					bm = roaring.New()
					u.grams[g] = bm
				}
				bm.Add(id)
			}
		}
	}
	return u
}

// candidates returns the entries whose folded text contains every trigram
// of the folded term. Terms shorter than a trigram match everything.
func (u *universe) candidates(upperTerm string) *roaring.Bitmap {
	grams := trigrams(upperTerm)
	if len(grams) == 0 {
		return u.all.Clone()
	}
	var out *roaring.Bitmap
	for _, g := range grams {
		bm, ok := u.grams[g]
		if !ok {
			return roaring.New()
		}
		if out == nil {
			out = bm.Clone()
		} else {
			out.And(bm)
		}
	}
	return out
}

// candidateSet combines per-term candidates: union when any term may match,
// intersection when all must.
func (u *universe) candidateSet(upperTerms []string, matchAny bool) *roaring.Bitmap {
	sets := make([]*roaring.Bitmap, 0, len(upperTerms))
	for _, t := range upperTerms {
		sets = append(sets, u.candidates(t))
	}
	if len(sets) == 0 {
		return roaring.New()
	}
	if matchAny {
		return roaring.FastOr(sets...)
	}
	return roaring.FastAnd(sets...)
}

func trigrams(s string) []string {
	r := []rune(s)
	if len(r) < 3 {
		return nil
	}
	seen := make(map[string]struct{}, len(r)-2)
	out := make([]string, 0, len(r)-2)
	for i := 0; i+3 <= len(r); i++ {
		g := string(r[i : i+3])
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

// splitTerms breaks the raw query into words and folds a copy of each.
func splitTerms(raw []string) (mixed, upper []string) {
	caser := cases.Upper(language.Und)
	for _, r := range raw {
		for _, w := range strings.Fields(r) {
			mixed = append(mixed, w)
			upper = append(upper, caser.String(w))
		}
	}
	return mixed, upper
}
