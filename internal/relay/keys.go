package relay

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// NewMnemonic generates a fresh BIP-39 mnemonic for a relayer key.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("derive mnemonic: %w", err)
	}
	return mnemonic, nil
}

// KeyFromMnemonic deterministically derives the relayer grant signing
// key from a BIP-39 mnemonic. The same mnemonic always yields the same
// keypair, so relayers can be restored from their seed phrase.
func KeyFromMnemonic(mnemonic, passphrase string) (ed25519.PrivateKey, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("mnemonic is not a valid BIP-39 phrase")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize]), nil
}

// EncodeKey renders key material for manifests and env configuration.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
