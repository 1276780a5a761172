package kv

import "sort"

// Cache buffers writes over a parent store. Reads see buffered writes
// first and fall through to the parent. Commit flushes the buffer to the
// parent in key order; Discard drops it.
//
// The runtime opens one Cache per message execution and nests one more
// per sub-message, which is what makes a failed sub-message revert only
// its own writes while a failed top-level invocation leaves no durable
// state at all.
type Cache struct {
	parent  Store
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewCache layers an empty write buffer over parent.
func NewCache(parent Store) *Cache {
	return &Cache{
		parent:  parent,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Get implements Store.
func (c *Cache) Get(key []byte) ([]byte, error) {
	if value, ok := c.writes[string(key)]; ok {
		return append([]byte(nil), value...), nil
	}
	if _, ok := c.deletes[string(key)]; ok {
		return nil, nil
	}
	return c.parent.Get(key)
}

// Set implements Store.
func (c *Cache) Set(key, value []byte) error {
	delete(c.deletes, string(key))
	c.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete implements Store.
func (c *Cache) Delete(key []byte) error {
	delete(c.writes, string(key))
	c.deletes[string(key)] = struct{}{}
	return nil
}

// Iterate implements Store, merging buffered writes with parent entries.
func (c *Cache) Iterate(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	merged := make(map[string][]byte)
	err := c.parent.Iterate(prefix, func(key, value []byte) (bool, error) {
		merged[string(key)] = append([]byte(nil), value...)
		return true, nil
	})
	if err != nil {
		return err
	}
	for key := range c.deletes {
		delete(merged, key)
	}
	for key, value := range c.writes {
		if HasPrefix([]byte(key), prefix) {
			merged[key] = value
		}
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		cont, err := fn([]byte(key), merged[key])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// Commit flushes buffered writes and deletes to the parent store.
func (c *Cache) Commit() error {
	keys := make([]string, 0, len(c.deletes))
	for key := range c.deletes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := c.parent.Delete([]byte(key)); err != nil {
			return err
		}
	}
	keys = keys[:0]
	for key := range c.writes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := c.parent.Set([]byte(key), c.writes[key]); err != nil {
			return err
		}
	}
	c.Discard()
	return nil
}

// Discard drops all buffered writes and deletes.
func (c *Cache) Discard() {
	c.writes = make(map[string][]byte)
	c.deletes = make(map[string]struct{})
}
