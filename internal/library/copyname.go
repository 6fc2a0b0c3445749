package library

import "fmt"

// maxKeyLen is the longest key a library accepts.
const maxKeyLen = 23

// maxCopyAttempts bounds the numbered Copy_N- candidates.
const maxCopyAttempts = 98

// CopyName picks a key for a copy of source. It tries "Copy-<source>" and then
// "Copy_<n>-<source>" for n in 1..98, each truncated to the key length limit,
// returning the first one for which taken reports false.
func CopyName(source string, taken func(string) bool) (string, error) {
	candidate := truncateKey("Copy-" + source)
	for n := 1; taken(candidate); n++ {
		if n > maxCopyAttempts {
			return "", fmt.Errorf("copy of %s: %w", source, ErrNoUniqueName)
		}
		candidate = truncateKey(fmt.Sprintf("Copy_%d-%s", n, source))
	}
	return candidate, nil
}

func truncateKey(key string) string {
	r := []rune(key)
	if len(r) > maxKeyLen {
		return string(r[:maxKeyLen])
	}
	return key
}

// createKey resolves the key a new definition modelled on templateKey gets.
func createKey(templateKey string, taken func(string) bool) (string, error) {
	if templateKey != "" && !taken(templateKey) {
		return templateKey, nil
	}
	return CopyName(templateKey, taken)
}
