package kv

// PrefixStore namespaces every key under a fixed prefix. The runtime
// hands each contract a PrefixStore over the chain store so contracts
// cannot read or write each other's state.
type PrefixStore struct {
	parent Store
	prefix []byte
}

// NewPrefixStore wraps parent so all keys live under prefix.
func NewPrefixStore(parent Store, prefix []byte) *PrefixStore {
	return &PrefixStore{parent: parent, prefix: append([]byte(nil), prefix...)}
}

func (s *PrefixStore) key(key []byte) []byte {
	full := make([]byte, 0, len(s.prefix)+len(key))
	full = append(full, s.prefix...)
	return append(full, key...)
}

// Get implements Store.
func (s *PrefixStore) Get(key []byte) ([]byte, error) {
	return s.parent.Get(s.key(key))
}

// Set implements Store.
func (s *PrefixStore) Set(key, value []byte) error {
	return s.parent.Set(s.key(key), value)
}

// Delete implements Store.
func (s *PrefixStore) Delete(key []byte) error {
	return s.parent.Delete(s.key(key))
}

// Iterate implements Store, stripping the namespace prefix from visited keys.
func (s *PrefixStore) Iterate(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	return s.parent.Iterate(s.key(prefix), func(key, value []byte) (bool, error) {
		return fn(key[len(s.prefix):], value)
	})
}
