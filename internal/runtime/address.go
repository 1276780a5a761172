package runtime

import (
	"encoding/binary"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"

	"github.com/louisbranch/accord/internal/objects"
)

// DeriveAddress computes the deterministic address for the nth instance
// of a code id. Addresses are the first 20 bytes of a blake2b-256 hash,
// base58-encoded, so replaying the same deploy sequence on a fresh store
// yields the same addresses.
func DeriveAddress(codeID CodeID, instanceSeq uint64) objects.Address {
	var preimage [16]byte
	binary.BigEndian.PutUint64(preimage[0:8], uint64(codeID))
	binary.BigEndian.PutUint64(preimage[8:16], instanceSeq)
	sum := blake2b.Sum256(preimage[:])
	return objects.Address(base58.Encode(sum[:20]))
}
