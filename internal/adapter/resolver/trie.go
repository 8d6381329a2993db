package resolver

import (
	"strings"

	"github.com/dghubble/trie"
	"pyrock/internal/domain"
)

// Resolver answers longest-indexed-prefix queries over dotted import paths.
type Resolver struct {
	known *trie.PathTrie
	size  int
}

// New builds a resolver over every entry of idx.
func New(idx domain.SymbolIndex) *Resolver {
	r := &Resolver{
		known: trie.NewPathTrieWithConfig(&trie.PathTrieConfig{
			Segmenter: importSegmenter,
		}),
	}
	idx.Each(func(p domain.ImportEntry) {
		if r.known.Put(p, p) {
			r.size++
		}
	})
	return r
}

// Len returns the number of distinct paths.
func (r *Resolver) Len() int {
	return r.size
}

// Longest returns the longest indexed path that is a segment-wise prefix of
// dotted, e.g. "os.path" for "os.path.nothing".
func (r *Resolver) Longest(dotted string) (string, bool) {
	var last interface{}
	r.known.WalkPath(dotted, func(key string, value interface{}) error {
		if value != nil {
			last = value
		}
		return nil
	})
	if last == nil {
		return "", false
	}
	return last.(string), true
}

// Has reports whether dotted is itself indexed.
func (r *Resolver) Has(dotted string) bool {
	return r.known.Get(dotted) != nil
}

// Split splits a dotted reference into its module part and final segment.
// The module part is empty for undotted names.
func Split(dotted string) (module, symbol string) {
	i := strings.LastIndexByte(dotted, '.')
	if i < 0 {
		return "", dotted
	}
	return dotted[:i], dotted[i+1:]
}

// importSegmenter segments string key paths by dot separators. For example,
// ".a.b.c" -> (".a", 2), (".b", 4), (".c", -1) in successive calls. It does
// not allocate any heap memory.
func importSegmenter(path string, start int) (segment string, next int) {
	if len(path) == 0 || start < 0 || start > len(path)-1 {
		return "", -1
	}
	end := strings.IndexRune(path[start+1:], '.') // next '.' after 0th rune
	if end == -1 {
		return path[start:], -1
	}
	return path[start : start+end+1], start + end + 1
}
