// Package listview holds the filter, sort and grouping helpers the list
// screens apply to fully fetched collections.
package listview

import (
	"cmp"
	"net/url"
	"slices"
	"strings"
)

// Direction is a sort order.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection defaults to Desc for anything but "asc".
func ParseDirection(s string) Direction {
	if strings.EqualFold(s, string(Asc)) {
		return Asc
	}
	return Desc
}

// Sort is the sort state of one list screen.
type Sort struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// Toggle flips the direction when field is already the sort field and
// otherwise switches to field, descending.
func (s Sort) Toggle(field string) Sort {
	if s.Field == field {
		if s.Direction == Asc {
			return Sort{Field: field, Direction: Desc}
		}
		return Sort{Field: field, Direction: Asc}
	}
	return Sort{Field: field, Direction: Desc}
}

// Filter keeps items where any of fields contains term, case-insensitively.
// An empty term keeps everything.
func Filter[T any](items []T, term string, fields ...func(T) string) []T {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return slices.Clone(items)
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f(it)), term) {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

// Where keeps items matching pred.
func Where[T any](items []T, pred func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if pred(it) {
			out = append(out, it)
		}
	}
	return out
}

// Equals keeps items whose key equals want; want of "" or "all" keeps all.
func Equals[T any](items []T, want string, key func(T) string) []T {
	if want == "" || strings.EqualFold(want, "all") {
		return slices.Clone(items)
	}
	return Where(items, func(it T) bool { return key(it) == want })
}

// SortBy returns a stably sorted copy. cmpFn orders ascending.
func SortBy[T any](items []T, cmpFn func(a, b T) int, dir Direction) []T {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b T) int {
		if dir == Desc {
			return cmpFn(b, a)
		}
		return cmpFn(a, b)
	})
	return out
}

// ByString builds a case-insensitive comparator from a string key.
func ByString[T any](key func(T) string) func(a, b T) int {
	return func(a, b T) int {
		return cmp.Compare(strings.ToLower(key(a)), strings.ToLower(key(b)))
	}
}

// ByKey builds a comparator from an ordered key.
func ByKey[T any, K cmp.Ordered](key func(T) K) func(a, b T) int {
	return func(a, b T) int { return cmp.Compare(key(a), key(b)) }
}

// Group is one bucket of a grouped list.
type Group[T any] struct {
	Key   string `json:"key"`
	Items []T    `json:"items"`
}

// GroupBy buckets items by key, keeping buckets in order of first
// appearance. Empty keys fall into fallback.
func GroupBy[T any](items []T, key func(T) string, fallback string) []Group[T] {
	idx := map[string]int{}
	var out []Group[T]
	for _, it := range items {
		k := key(it)
		if k == "" {
			k = fallback
		}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Group[T]{Key: k})
		}
		out[i].Items = append(out[i].Items, it)
	}
	return out
}

// NestedGroup is a two-level bucket.
type NestedGroup[T any] struct {
	Key    string     `json:"key"`
	Groups []Group[T] `json:"groups"`
}

// GroupNested buckets by outer then inner key.
func GroupNested[T any](items []T, outer, inner func(T) string, fallback string) []NestedGroup[T] {
	top := GroupBy(items, outer, fallback)
	out := make([]NestedGroup[T], len(top))
	for i, g := range top {
		out[i] = NestedGroup[T]{Key: g.Key, Groups: GroupBy(g.Items, inner, fallback)}
	}
	return out
}

// Distinct returns the sorted non-empty values of key.
func Distinct[T any](items []T, key func(T) string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, it := range items {
		k := key(it)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// CountBy tallies items per key.
func CountBy[T any](items []T, key func(T) string) map[string]int {
	out := map[string]int{}
	for _, it := range items {
		out[key(it)]++
	}
	return out
}

// Count tallies items matching pred.
func Count[T any](items []T, pred func(T) bool) int {
	n := 0
	for _, it := range items {
		if pred(it) {
			n++
		}
	}
	return n
}

// Query is the list-screen state carried on a request's query string.
type Query struct {
	Search   string
	Sort     Sort
	Group    string
	Status   string
	Category string
	Filter   string
}

// ParseQuery reads search, sort, order, group, status, category and filter.
// defaultSort applies when no sort field is given.
func ParseQuery(v url.Values, defaultSort Sort) Query {
	q := Query{
		Search:   strings.TrimSpace(v.Get("search")),
		Group:    v.Get("group"),
		Status:   v.Get("status"),
		Category: v.Get("category"),
		Filter:   v.Get("filter"),
		Sort:     defaultSort,
	}
	if f := v.Get("sort"); f != "" {
		q.Sort = Sort{Field: f, Direction: ParseDirection(v.Get("order"))}
	} else if o := v.Get("order"); o != "" {
		q.Sort.Direction = ParseDirection(o)
	}
	return q
}
