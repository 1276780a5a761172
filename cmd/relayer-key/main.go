// Package main provides a one-shot utility for relayer key generation.
//
// It derives the ed25519 keypair signing packet delivery grants from a
// BIP-39 mnemonic, generating a fresh mnemonic when none is given.
package main

import (
	"flag"
	"os"

	"github.com/louisbranch/accord/internal/platform/config"
	"github.com/louisbranch/accord/internal/tools/relayerkey"
)

var (
	mnemonic   = flag.String("mnemonic", "", "BIP-39 mnemonic (generated when empty)")
	passphrase = flag.String("passphrase", "", "Optional BIP-39 passphrase")
)

func main() {
	flag.Parse()
	if err := relayerkey.Run(os.Stdout, *mnemonic, *passphrase); err != nil {
		config.Exitf("generate relayer key: %v", err)
	}
}
