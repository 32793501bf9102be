package manager

import (
	"cmp"
	"iter"
	"slices"
	"strings"
	"time"
)

// Entry is one ranked proxy of the working set
type Entry struct {
	Score float64 `json:"score"`
	Key   string  `json:"key"`
}

// snapshot is an immutable working set. It is swapped whole on every rebuild
// and never modified after publication.
type snapshot struct {
	entries   []Entry
	scanned   int
	malformed int
	builtAt   time.Time
}

// sortEntries orders by score descending, equal scores by key ascending
func sortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(b.Key, a.Key)
	})
}

// protocolPrefix turns "HTTPS" into "https:" so https never matches an http filter
func protocolPrefix(protocol string) string {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	if protocol == "" {
		return ""
	}
	return protocol + ":"
}

// Cursor makes one pass over a working set snapshot in rank order, yielding
// only keys of the requested protocol. A Cursor belongs to a single caller and
// is not safe for concurrent use; call Select again for another pass.
type Cursor struct {
	entries []Entry
	prefix  string
	idx     int
}

func newCursor(entries []Entry, protocol string) *Cursor {
	return &Cursor{entries: entries, prefix: protocolPrefix(protocol)}
}

// Next returns the next matching key. The second value is false once the
// snapshot is exhausted, which is the normal end of a pass.
func (c *Cursor) Next() (string, bool) {
	for c.idx < len(c.entries) {
		entry := c.entries[c.idx]
		c.idx++
		if strings.HasPrefix(entry.Key, c.prefix) {
			return entry.Key, true
		}
	}
	return "", false
}

// All ranges over the rest of the pass
func (c *Cursor) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			key, ok := c.Next()
			if !ok || !yield(key) {
				return
			}
		}
	}
}

// Remaining reports how many entries of the snapshot have not been visited
func (c *Cursor) Remaining() int {
	return len(c.entries) - c.idx
}

// Reset rewinds this cursor to the top of its snapshot
func (c *Cursor) Reset() {
	c.idx = 0
}
