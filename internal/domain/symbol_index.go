package domain

import "strings"

// SymbolIndex maps the first character of a symbol name to the last
// character of that name to the dotted paths ending in such a symbol.
//
// The two-character key is a coarse pre-filter. Unrelated names sharing first
// and last characters land in the same bucket; lookups must filter by the
// exact final segment.
type SymbolIndex map[string]map[string][]ImportEntry

// NewSymbolIndex returns an empty index.
func NewSymbolIndex() SymbolIndex {
	return make(SymbolIndex)
}

// Record appends path to the bucket of its final segment. Paths whose final
// segment is empty are ignored. Duplicates are kept.
func (idx SymbolIndex) Record(path string) bool {
	entity := lastSegment(path)
	if entity == "" {
		return false
	}
	first, last := firstChar(entity), lastChar(entity)

	byLast, ok := idx[first]
	if !ok {
		byLast = make(map[string][]ImportEntry)
		idx[first] = byLast
	}
	byLast[last] = append(byLast[last], path)
	return true
}

// Bucket returns the entries stored under symbol's first and last characters.
func (idx SymbolIndex) Bucket(symbol string) []ImportEntry {
	if symbol == "" {
		return nil
	}
	return idx[firstChar(symbol)][lastChar(symbol)]
}

// Lookup returns entries whose final segment equals symbol exactly.
func (idx SymbolIndex) Lookup(symbol string) []ImportEntry {
	var out []ImportEntry
	for _, path := range idx.Bucket(symbol) {
		if lastSegment(path) == symbol {
			out = append(out, path)
		}
	}
	return out
}

// Len returns the number of stored entries, duplicates included.
func (idx SymbolIndex) Len() int {
	n := 0
	for _, byLast := range idx {
		for _, entries := range byLast {
			n += len(entries)
		}
	}
	return n
}

// Each calls fn for every entry in bucket order.
func (idx SymbolIndex) Each(fn func(path ImportEntry)) {
	for _, byLast := range idx {
		for _, entries := range byLast {
			for _, e := range entries {
				fn(e)
			}
		}
	}
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// firstChar and lastChar work on runes so non-ASCII identifiers produce
// valid one-character keys.
func firstChar(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}

func lastChar(s string) string {
	r := []rune(s)
	return string(r[len(r)-1])
}
