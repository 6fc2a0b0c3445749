package search

import "strings"

// fieldWeights follows library.Definition.SearchFields: key, description,
// epsg, datum, ellipsoid, group, location, source.
var fieldWeights = [8]int{8, 4, 3, 2, 2, 1, 1, 1}

const epsgField = 2

// Match scores one entry against the query. fields and upperFields are the
// entry's searchable attributes as stored and upper-cased; mixed and upper
// are the query terms as typed and upper-cased, most important first.
//
// A term matching a field as typed earns twice the field weight, a match
// that needs case folding earns the weight once, and the EPSG code only
// matches exactly. Term i of n is worth (n-i) times its field score. With
// matchAny false any term without a match zeroes the score.
func Match(fields, upperFields [8]string, mixed, upper []string, matchAny bool) int {
	n := len(mixed)
	total := 0
	for i := range mixed {
		ts := termScore(fields, upperFields, mixed[i], upper[i])
		if ts == 0 {
			if !matchAny {
				return 0
			}
			continue
		}
		total += ts * (n - i)
	}
	return total
}

func termScore(fields, upperFields [8]string, mixed, upper string) int {
	score := 0
	for f, w := range fieldWeights {
		if fields[f] == "" {
			continue
		}
		if f == epsgField {
			if fields[f] == mixed {
				score += 2 * w
			}
			continue
		}
		switch {
		case strings.Contains(fields[f], mixed):
			score += 2 * w
		case strings.Contains(upperFields[f], upper):
			score += w
		}
	}
	return score
}
