// Package sign implements the node's authentication layer: Ed25519
// detached signatures over serialized envelopes, with key material
// resolved per participant from a key store.
package sign

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/kilianp07/usef/core/model"
)

// Version is the version of the signature scheme implementation this
// node links against. Nodes refuse to start against an implementation
// older than the configured minimum.
const Version = "1.2.0"

// PublicBlobPrefix identifies the crypto-scheme encoding of a combined
// public-key blob. The blob is the prefix followed by Base64 of the
// 32-byte signing key concatenated with a 32-byte reserved segment,
// zero-filled in scheme version 1.
const PublicBlobPrefix = "cs1."

const reservedSegmentLen = 32

// KeyStore resolves key material per participant role and domain.
type KeyStore interface {
	// PrivateKey returns the Base64-encoded Ed25519 private key of a
	// local participant.
	PrivateKey(p model.Participant) (string, error)
	// PublicBlob returns the cs1. combined public-key blob of a
	// counterpart.
	PublicBlob(p model.Participant) (string, error)
}

// Signer signs outgoing payloads and verifies inbound signatures.
type Signer struct {
	keys KeyStore
}

// New creates a Signer after checking the linked scheme version against
// the configured minimum. The check runs here, at construction, so a
// version mismatch fails the node before any message is exchanged.
func New(keys KeyStore, minVersion string) (*Signer, error) {
	older, err := versionOlder(Version, minVersion)
	if err != nil {
		return nil, fmt.Errorf("minimum signature version %q: %w", minVersion, err)
	}
	if older {
		return nil, fmt.Errorf("signature scheme version %s is older than required minimum %s", Version, minVersion)
	}
	return &Signer{keys: keys}, nil
}

// Sign produces a detached Ed25519 signature of payload using the
// Base64-encoded private key.
func Sign(payload []byte, privateKeyB64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(privateKeyB64)
	if err != nil {
		return nil, fmt.Errorf("private key is not valid base64: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key is %d bytes, want %d", len(raw), ed25519.PrivateKeySize)
	}
	return ed25519.Sign(ed25519.PrivateKey(raw), payload), nil
}

// Verify checks a detached signature against the cs1. public-key blob.
// Any malformed input or mismatch yields an error.
func Verify(payload, signature []byte, publicBlob string) error {
	pub, err := DecodePublicBlob(publicBlob)
	if err != nil {
		return err
	}
	if len(signature) != ed25519.SignatureSize {
		return fmt.Errorf("signature is %d bytes, want %d", len(signature), ed25519.SignatureSize)
	}
	if !ed25519.Verify(pub, payload, signature) {
		return fmt.Errorf("signature does not match payload")
	}
	return nil
}

// SignFor signs payload with the private key of the given local
// participant.
func (s *Signer) SignFor(p model.Participant, payload []byte) ([]byte, error) {
	key, err := s.keys.PrivateKey(p)
	if err != nil {
		return nil, fmt.Errorf("resolve private key of %s: %w", p, err)
	}
	return Sign(payload, key)
}

// VerifyFrom verifies payload against the public key registered for the
// sending participant.
func (s *Signer) VerifyFrom(p model.Participant, payload, signature []byte) error {
	blob, err := s.keys.PublicBlob(p)
	if err != nil {
		return fmt.Errorf("resolve public key of %s: %w", p, err)
	}
	return Verify(payload, signature, blob)
}

// GenerateKeyPair derives a deterministic key pair from the seed and
// returns the Base64 private key and the cs1. public blob. An empty
// seed is rejected; operational key generation always supplies one.
func GenerateKeyPair(seed []byte) (privateKeyB64, publicBlob string, err error) {
	if len(seed) == 0 {
		return "", "", fmt.Errorf("seed must not be empty")
	}
	digest := sha256.Sum256(seed)
	priv := ed25519.NewKeyFromSeed(digest[:])
	pub := priv.Public().(ed25519.PublicKey)
	return base64.StdEncoding.EncodeToString(priv), EncodePublicBlob(pub), nil
}

// EncodePublicBlob builds the cs1. combined blob for a signing key.
func EncodePublicBlob(pub ed25519.PublicKey) string {
	combined := make([]byte, 0, ed25519.PublicKeySize+reservedSegmentLen)
	combined = append(combined, pub...)
	combined = append(combined, make([]byte, reservedSegmentLen)...)
	return PublicBlobPrefix + base64.StdEncoding.EncodeToString(combined)
}

// DecodePublicBlob extracts the usable signing key from a cs1. blob.
func DecodePublicBlob(blob string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(blob, PublicBlobPrefix) {
		return nil, fmt.Errorf("public key blob does not start with %q", PublicBlobPrefix)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(blob, PublicBlobPrefix))
	if err != nil {
		return nil, fmt.Errorf("public key blob is not valid base64: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize+reservedSegmentLen {
		return nil, fmt.Errorf("public key blob is %d bytes, want %d", len(raw), ed25519.PublicKeySize+reservedSegmentLen)
	}
	if !bytes.Equal(raw[ed25519.PublicKeySize:], make([]byte, reservedSegmentLen)) {
		return nil, fmt.Errorf("reserved key segment is not zero-filled")
	}
	return ed25519.PublicKey(raw[:ed25519.PublicKeySize]), nil
}

// versionOlder reports whether version a precedes b in dotted-integer
// ordering.
func versionOlder(a, b string) (bool, error) {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		av, bv := 0, 0
		var err error
		if i < len(as) {
			if av, err = strconv.Atoi(as[i]); err != nil {
				return false, fmt.Errorf("segment %q: %w", as[i], err)
			}
		}
		if i < len(bs) {
			if bv, err = strconv.Atoi(bs[i]); err != nil {
				return false, fmt.Errorf("segment %q: %w", bs[i], err)
			}
		}
		if av != bv {
			return av < bv, nil
		}
	}
	return false, nil
}
