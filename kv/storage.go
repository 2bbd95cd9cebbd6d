// Package kv provides an ordered, case-insensitive multimap used for
// request and response headers, and anywhere else a small set of
// string pairs needs lookup without the overhead of a real map.
package kv

import (
	"github.com/indigo-web/iter"
	"github.com/indigo-web/utils/strcomp"
)

// Pair is a single key-value entry.
type Pair struct {
	Key, Value string
}

// Storage is a linear-scan, insertion-ordered multimap of string pairs.
// On the header counts a single HTTP message carries (usually under
// twenty), a linear scan consistently beats a real map once allocation
// and hashing costs are accounted for, and it preserves wire order for
// anything that cares (Set-Cookie, Vary, ...).
type Storage struct {
	pairs      []Pair
	uniqueBuff []string
	valuesBuff []string
}

// New returns an empty Storage.
func New() *Storage {
	return new(Storage)
}

// NewPreAlloc returns an empty Storage with room for n pairs.
func NewPreAlloc(n int) *Storage {
	return &Storage{pairs: make([]Pair, 0, n)}
}

// NewFromMap builds a Storage from a map[string][]string, e.g. when
// adapting a net/url.Values.
func NewFromMap(m map[string][]string) *Storage {
	s := NewPreAlloc(len(m))
	for key, values := range m {
		for _, value := range values {
			s.Add(key, value)
		}
	}

	return s
}

// Add appends a new pair. Existing pairs under the same key are kept;
// use this for repeated headers (e.g. multiple Set-Cookie lines).
func (s *Storage) Add(key, value string) *Storage {
	s.pairs = append(s.pairs, Pair{Key: key, Value: value})
	return s
}

// Get returns the first value stored under key, case-insensitively.
func (s *Storage) Get(key string) (string, bool) {
	for _, pair := range s.pairs {
		if strcomp.EqualFold(key, pair.Key) {
			return pair.Value, true
		}
	}

	return "", false
}

// Value returns the first value under key, or "" if absent.
func (s *Storage) Value(key string) string {
	return s.ValueOr(key, "")
}

// ValueOr returns the first value under key, or the given fallback.
func (s *Storage) ValueOr(key, or string) string {
	if v, ok := s.Get(key); ok {
		return v
	}

	return or
}

// Values returns every value stored under key, in insertion order.
//
// WARNING: the returned slice is reused across calls; copy it if it
// must outlive the next call to Values.
func (s *Storage) Values(key string) []string {
	s.valuesBuff = s.valuesBuff[:0]

	for _, pair := range s.pairs {
		if strcomp.EqualFold(pair.Key, key) {
			s.valuesBuff = append(s.valuesBuff, pair.Value)
		}
	}

	if len(s.valuesBuff) == 0 {
		return nil
	}

	return s.valuesBuff
}

// Has reports whether key is present.
func (s *Storage) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Keys returns every unique key, in first-seen order.
//
// WARNING: the returned slice is reused across calls.
func (s *Storage) Keys() []string {
	s.uniqueBuff = s.uniqueBuff[:0]

	for _, pair := range s.pairs {
		if contains(s.uniqueBuff, pair.Key) {
			continue
		}

		s.uniqueBuff = append(s.uniqueBuff, pair.Key)
	}

	return s.uniqueBuff
}

// Iter returns an iterator over every stored pair, in insertion order.
func (s *Storage) Iter() iter.Iterator[Pair] {
	return iter.Slice(s.pairs)
}

// Len returns the number of stored pairs.
func (s *Storage) Len() int {
	return len(s.pairs)
}

// Unwrap exposes the underlying slice. Prefer the accessor methods;
// this exists for callers (like the serializer) that need to stream
// every pair without per-key scans.
func (s *Storage) Unwrap() []Pair {
	return s.pairs
}

// Clear empties the storage without releasing its backing array, so it
// can be reused for the next request without reallocating.
func (s *Storage) Clear() {
	s.pairs = s.pairs[:0]
}

// AddList merges values from a Connection-style comma-separated header
// occurrence into discrete pairs under the same key, so multi-valued
// headers folded onto one line behave the same as repeated lines.
func (s *Storage) AddList(key string, values []string) *Storage {
	for _, v := range values {
		s.Add(key, v)
	}

	return s
}

func contains(haystack []string, key string) bool {
	for _, item := range haystack {
		if strcomp.EqualFold(item, key) {
			return true
		}
	}

	return false
}
