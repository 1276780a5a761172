// Package kv defines the key-value state substrate contracts run against.
//
// Stores are synchronous and single-writer: the runtime processes one
// message at a time, so implementations need no internal locking beyond
// what their backing medium requires. Transactionality is layered on top
// with Cache, which buffers writes and either commits them to its parent
// or discards them wholesale.
package kv

import "bytes"

// Store is ordered byte-keyed storage.
type Store interface {
	// Get returns the value for key, or nil when absent.
	Get(key []byte) ([]byte, error)
	// Set stores value under key.
	Set(key, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key []byte) error
	// Iterate visits entries with the given prefix in ascending key
	// order. Returning false from fn stops the iteration early.
	Iterate(prefix []byte, fn func(key, value []byte) (bool, error)) error
}

// PrefixEnd returns the smallest key greater than every key with the
// given prefix, or nil when the prefix is all 0xff bytes.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// HasPrefix reports whether key starts with prefix.
func HasPrefix(key, prefix []byte) bool {
	return bytes.HasPrefix(key, prefix)
}
