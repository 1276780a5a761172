// Package memory provides an in-memory kv.Store for tests and ephemeral
// chains.
package memory

import (
	"sort"

	"github.com/louisbranch/accord/internal/kv"
)

// Store keeps all entries in a map.
type Store struct {
	entries map[string][]byte
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{entries: make(map[string][]byte)}
}

// Get implements kv.Store.
func (s *Store) Get(key []byte) ([]byte, error) {
	value, ok := s.entries[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

// Set implements kv.Store.
func (s *Store) Set(key, value []byte) error {
	s.entries[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete implements kv.Store.
func (s *Store) Delete(key []byte) error {
	delete(s.entries, string(key))
	return nil
}

// Iterate implements kv.Store.
func (s *Store) Iterate(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		if kv.HasPrefix([]byte(key), prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		cont, err := fn([]byte(key), s.entries[key])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	return len(s.entries)
}
