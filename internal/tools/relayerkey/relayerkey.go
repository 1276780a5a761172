// Package relayerkey generates relayer grant keypairs from BIP-39
// mnemonics.
package relayerkey

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"

	"github.com/louisbranch/accord/internal/relay"
)

// Run derives a relayer keypair and writes exports. With an empty
// mnemonic a fresh one is generated and printed so it can be stored.
func Run(out io.Writer, mnemonic, passphrase string) error {
	if out == nil {
		return errors.New("output is required")
	}
	generated := false
	if mnemonic == "" {
		fresh, err := relay.NewMnemonic()
		if err != nil {
			return err
		}
		mnemonic = fresh
		generated = true
	}
	key, err := relay.KeyFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return err
	}
	if generated {
		if _, err := fmt.Fprintf(out, "# mnemonic (store securely):\n# %s\n", mnemonic); err != nil {
			return err
		}
	}
	pub := key.Public().(ed25519.PublicKey)
	if _, err := fmt.Fprintf(out, "export ACCORD_RELAYER_MNEMONIC=%q\n", mnemonic); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "# grant_public_key for counterparty manifests:\n%s\n", relay.EncodeKey(pub)); err != nil {
		return err
	}
	return nil
}
