package relay

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/louisbranch/accord/internal/objects"
	"github.com/louisbranch/accord/internal/platform/errors"
)

// MintGrant signs a delivery grant for packets flowing source -> dest.
// The source chain's relayer key signs; the destination verifies with
// the public key from its chain manifest.
func MintGrant(key ed25519.PrivateKey, source, dest objects.ChainName, ttl time.Duration, now time.Time) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("relayer key must be %d bytes", ed25519.PrivateKeySize)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("grant ttl must be positive")
	}
	id, err := grantID()
	if err != nil {
		return "", err
	}
	claims := jwt.RegisteredClaims{
		Issuer:    string(source),
		Audience:  jwt.ClaimStrings{string(dest)},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        id,
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
}

// VerifyGrant checks a delivery grant against the expected route and the
// source chain's public key.
func VerifyGrant(grant string, source, dest objects.ChainName, key ed25519.PublicKey, now time.Time) error {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return errors.New(errors.CodePacketGrantInvalid, "delivery grant is required")
	}
	if len(key) != ed25519.PublicKeySize {
		return fmt.Errorf("grant verifier key must be %d bytes", ed25519.PublicKeySize)
	}

	var parsed jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != string(source) {
		return errors.WithMetadata(errors.CodePacketGrantInvalid,
			"delivery grant issuer mismatch",
			map[string]string{"Field": "issuer"})
	}
	if !audienceContains(parsed.Audience, string(dest)) {
		return errors.WithMetadata(errors.CodePacketGrantInvalid,
			"delivery grant audience mismatch",
			map[string]string{"Field": "audience"})
	}
	if parsed.ExpiresAt == nil {
		return errors.New(errors.CodePacketGrantInvalid, "delivery grant exp is required")
	}
	if !parsed.ExpiresAt.Time.UTC().After(now.UTC()) {
		return errors.New(errors.CodePacketGrantExpired, "delivery grant is expired")
	}
	if parsed.NotBefore != nil && now.UTC().Before(parsed.NotBefore.Time.UTC()) {
		return errors.New(errors.CodePacketGrantInvalid, "delivery grant not active yet")
	}
	return nil
}

// mapJWTError translates jwt library errors to packet grant errors.
func mapJWTError(err error) error {
	if stderrors.Is(err, jwt.ErrTokenSignatureInvalid) || stderrors.Is(err, jwt.ErrEd25519Verification) {
		return errors.New(errors.CodePacketGrantInvalid, "delivery grant signature is invalid")
	}
	if stderrors.Is(err, jwt.ErrTokenUnverifiable) {
		return errors.New(errors.CodePacketGrantInvalid, "delivery grant alg is invalid")
	}
	return errors.New(errors.CodePacketGrantInvalid, "delivery grant is invalid")
}

func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func grantID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate grant id: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}
