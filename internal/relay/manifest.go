package relay

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/louisbranch/accord/internal/objects"
)

// Counterparty names a chain the local host accepts packets from, plus
// the public key verifying that chain's delivery grants.
type Counterparty struct {
	Chain          objects.ChainName `yaml:"chain"`
	GrantPublicKey string            `yaml:"grant_public_key"`
}

// Manifest describes the local chain and its trusted counterparties.
type Manifest struct {
	Chain          objects.ChainName `yaml:"chain"`
	Counterparties []Counterparty    `yaml:"counterparties"`
}

// LoadManifest reads and validates a chain manifest from a YAML file.
func LoadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read chain manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse chain manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks chain names and key material.
func (m Manifest) Validate() error {
	if err := m.Chain.Validate(); err != nil {
		return fmt.Errorf("manifest chain: %w", err)
	}
	seen := make(map[objects.ChainName]bool, len(m.Counterparties))
	for _, cp := range m.Counterparties {
		if err := cp.Chain.Validate(); err != nil {
			return fmt.Errorf("counterparty chain: %w", err)
		}
		if cp.Chain == m.Chain {
			return fmt.Errorf("counterparty %s duplicates the local chain", cp.Chain)
		}
		if seen[cp.Chain] {
			return fmt.Errorf("counterparty %s is listed twice", cp.Chain)
		}
		seen[cp.Chain] = true
		if _, err := decodeGrantKey(cp.GrantPublicKey); err != nil {
			return fmt.Errorf("counterparty %s: %w", cp.Chain, err)
		}
	}
	return nil
}

// GrantKey returns the verification key for a counterparty chain.
func (m Manifest) GrantKey(chain objects.ChainName) (ed25519.PublicKey, bool) {
	for _, cp := range m.Counterparties {
		if cp.Chain == chain {
			key, err := decodeGrantKey(cp.GrantPublicKey)
			if err != nil {
				return nil, false
			}
			return key, true
		}
	}
	return nil, false
}

func decodeGrantKey(value string) (ed25519.PublicKey, error) {
	if value == "" {
		return nil, fmt.Errorf("grant public key is required")
	}
	raw, err := base64.RawStdEncoding.DecodeString(value)
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(value)
	}
	if err != nil {
		return nil, fmt.Errorf("decode grant public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("grant public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
