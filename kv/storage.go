package kv

import (
	"iter"

	"github.com/indigo-web/utils/strcomp"
)

// Pair is a single header entry. Key holds the canonical lowercased name once
// the storage went through normalization; Raw keeps the spelling as received
// or provided by the user, and stays empty while the two coincide.
type Pair struct {
	Key, Value string
	Raw        string
}

// RawKey returns the wire spelling of the name.
func (p Pair) RawKey() string {
	if len(p.Raw) != 0 {
		return p.Raw
	}

	return p.Key
}

// Storage is an associative structure for storing (string, string) pairs in
// insertion order. It acts as a map but uses linear search instead, which
// proves to be more efficient on relatively low amount of entries, which
// often enough is the case for header blocks.
type Storage struct {
	pairs      []Pair
	uniqueBuff []string
	valuesBuff []string
}

func New() *Storage {
	return new(Storage)
}

// NewPrealloc returns an instance of Storage with pre-allocated underlying storage.
func NewPrealloc(n int) *Storage {
	return &Storage{
		pairs: make([]Pair, 0, n),
	}
}

// NewFromPairs returns an instance of Storage with the given pairs appended
// in order. Keys keep the provided spelling.
func NewFromPairs(pairs ...Pair) *Storage {
	s := NewPrealloc(len(pairs))
	s.pairs = append(s.pairs, pairs...)

	return s
}

// Add adds a new pair of key and value.
func (s *Storage) Add(key, value string) *Storage {
	s.pairs = append(s.pairs, Pair{
		Key:   key,
		Value: value,
	})
	return s
}

// AddPair appends a fully specified pair, raw spelling included.
func (s *Storage) AddPair(pair Pair) *Storage {
	s.pairs = append(s.pairs, pair)
	return s
}

// Value returns the first value, corresponding to the key. Otherwise, empty string is returned.
func (s *Storage) Value(key string) string {
	return s.ValueOr(key, "")
}

// ValueOr returns either the first value corresponding to the key or custom value, defined
// via the second parameter.
func (s *Storage) ValueOr(key, or string) string {
	value, found := s.Get(key)
	if !found {
		return or
	}

	return value
}

// Get returns a value and a bool, indicating whether the value was found. The lookup
// is case-insensitive.
func (s *Storage) Get(key string) (value string, found bool) {
	for _, pair := range s.pairs {
		if strcomp.EqualFold(key, pair.Key) {
			return pair.Value, true
		}
	}

	return "", false
}

// Values returns all values by the key. Returns nil if key doesn't exist.
//
// WARNING: calling it twice will override values, returned by the first call. Consider
// copying the returned slice for safe use.
func (s *Storage) Values(key string) (values []string) {
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

// Keys returns all unique presented keys.
//
// WARNING: calling it twice will override values, returned by the first call. Consider
// copying the returned slice for safe use.
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

// Iter returns an iterator over the pairs, yielding the canonical key and
// the value.
func (s *Storage) Iter() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, pair := range s.pairs {
			if !yield(pair.Key, pair.Value) {
				break
			}
		}
	}
}

// Has indicates, whether there's an entry of the key.
func (s *Storage) Has(key string) bool {
	_, found := s.Get(key)
	return found
}

// Count returns the number of entries carrying the key.
func (s *Storage) Count(key string) (n int) {
	for _, pair := range s.pairs {
		if strcomp.EqualFold(pair.Key, key) {
			n++
		}
	}

	return n
}

// Delete removes every entry carrying the key and reports whether at least
// one was removed.
func (s *Storage) Delete(key string) (deleted bool) {
	kept := s.pairs[:0]

	for _, pair := range s.pairs {
		if strcomp.EqualFold(pair.Key, key) {
			deleted = true
			continue
		}

		kept = append(kept, pair)
	}

	s.pairs = kept
	return deleted
}

// Truncate cuts the storage down to its first n pairs.
func (s *Storage) Truncate(n int) {
	if n < len(s.pairs) {
		s.pairs = s.pairs[:n]
	}
}

// Len returns a number of stored pairs.
func (s *Storage) Len() int {
	return len(s.pairs)
}

func (s *Storage) Empty() bool {
	return s.Len() == 0
}

// Clone creates a deep copy, which may be used later or stored somewhere safely. However,
// it comes at cost of an allocation.
func (s *Storage) Clone() *Storage {
	return &Storage{
		pairs: clone(s.pairs),
	}
}

// Expose exposes the underlying pairs slice.
func (s *Storage) Expose() []Pair {
	return s.pairs
}

// Clear all the entries. However, all the allocated space won't be freed.
func (s *Storage) Clear() *Storage {
	s.pairs = s.pairs[:0]
	return s
}

func contains(collection []string, key string) bool {
	for _, element := range collection {
		if strcomp.EqualFold(element, key) {
			return true
		}
	}

	return false
}

func clone[T any](source []T) []T {
	if len(source) == 0 {
		return nil
	}

	newSlice := make([]T, len(source))
	copy(newSlice, source)

	return newSlice
}
