package aggregate

import (
	"cmp"
	"slices"
)

type entry[K comparable] struct {
	key   K
	count int
}

// tally counts keys and remembers the order each key was first seen.
type tally[K comparable] struct {
	pos     map[K]int
	entries []entry[K]
}

func newTally[K comparable]() *tally[K] {
	return &tally[K]{pos: make(map[K]int)}
}

func (t *tally[K]) add(k K) {
	if i, ok := t.pos[k]; ok {
		t.entries[i].count++
		return
	}
	t.pos[k] = len(t.entries)
	t.entries = append(t.entries, entry[K]{key: k, count: 1})
}

func (t *tally[K]) size() int {
	return len(t.entries)
}

// byCount orders by descending count; equal counts keep encounter order.
func (t *tally[K]) byCount() []entry[K] {
	out := slices.Clone(t.entries)
	slices.SortStableFunc(out, func(a, b entry[K]) int {
		return cmp.Compare(b.count, a.count)
	})
	return out
}

// top returns at most n entries of byCount.
func (t *tally[K]) top(n int) []entry[K] {
	out := t.byCount()
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// byKey orders by key using compare.
func (t *tally[K]) byKey(compare func(a, b K) int) []entry[K] {
	out := slices.Clone(t.entries)
	slices.SortStableFunc(out, func(a, b entry[K]) int {
		return compare(a.key, b.key)
	})
	return out
}

type pair struct {
	a, b string
}

func comparePair(x, y pair) int {
	if c := cmp.Compare(x.a, y.a); c != 0 {
		return c
	}
	return cmp.Compare(x.b, y.b)
}
