package chain

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/sota-zk-labs/jayce/internal/core/domain"
)

// =============================================================================
// Signer Errors
// =============================================================================

var (
	// ErrBadPrivateKey is returned when the key material cannot be decoded.
	ErrBadPrivateKey = errors.New("invalid private key")
)

// Address derivation scheme bytes, appended to the hashed preimage.
const (
	schemeEd25519    = 0x00
	schemeObjectSeed = 0xFE
)

// =============================================================================
// Signer
// =============================================================================

// Signer holds the deployer's ed25519 key and derives its account address.
type Signer struct {
	priv ed25519.PrivateKey
	addr domain.Address
}

// NewSigner parses a hex-encoded ed25519 seed. Accepts the raw 32-byte seed
// with optional "0x" or "ed25519-priv-" prefixes, as produced by common
// wallet tooling.
func NewSigner(privateKey string) (*Signer, error) {
	h := strings.TrimSpace(privateKey)
	h = strings.TrimPrefix(h, "ed25519-priv-")
	h = strings.TrimPrefix(h, "0x")

	seed, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("%w: not hex encoded", ErrBadPrivateKey)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrBadPrivateKey, ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{
		priv: priv,
		addr: deriveAddress(priv.Public().(ed25519.PublicKey)),
	}, nil
}

// NewRandomSigner generates a fresh ed25519 key. Used for throwaway accounts
// on networks with a faucet, when no private key is configured.
func NewRandomSigner() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPrivateKey, err)
	}
	return &Signer{
		priv: priv,
		addr: deriveAddress(priv.Public().(ed25519.PublicKey)),
	}, nil
}

// Address returns the deployer's account address: the sha3-256 of the public
// key followed by the single-key scheme byte.
func (s *Signer) Address() domain.Address {
	return s.addr
}

// PublicKeyHex returns the 0x-prefixed public key.
func (s *Signer) PublicKeyHex() string {
	return "0x" + hex.EncodeToString(s.priv.Public().(ed25519.PublicKey))
}

// Sign signs the sha3-256 digest of msg and returns the hex signature.
func (s *Signer) Sign(msg []byte) string {
	digest := sha3.Sum256(msg)
	return "0x" + hex.EncodeToString(ed25519.Sign(s.priv, digest[:]))
}

func deriveAddress(pub ed25519.PublicKey) domain.Address {
	h := sha3.New256()
	h.Write(pub)
	h.Write([]byte{schemeEd25519})

	var addr domain.Address
	copy(addr[:], h.Sum(nil))
	return addr
}

// =============================================================================
// Object Address Derivation
// =============================================================================

// DeriveObjectAddress computes the address of the object a package publishes
// under: sha3-256 of the creator address, the seed, and the object-from-seed
// scheme byte. Deterministic, so dependents can be given the address before
// confirmation is even polled.
func DeriveObjectAddress(creator domain.Address, seed string) domain.Address {
	h := sha3.New256()
	h.Write(creator[:])
	h.Write([]byte(seed))
	h.Write([]byte{schemeObjectSeed})

	var addr domain.Address
	copy(addr[:], h.Sum(nil))
	return addr
}
